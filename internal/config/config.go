package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the ragdex configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	WorkDir   string          `yaml:"work_dir"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Index     IndexConfig     `yaml:"index"`
	Reindex   ReindexConfig   `yaml:"reindex"`
	Sanitize  SanitizeConfig  `yaml:"sanitize"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds the reindex trigger credentials.
type AuthConfig struct {
	// ReindexToken enables Bearer auth on POST /reindex. Empty restricts the
	// route to loopback callers.
	ReindexToken string `yaml:"reindex_token"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CorpusConfig says where source documents come from.
type CorpusConfig struct {
	Driver string `yaml:"driver"` // local, store
	// Dir is the source directory for the local driver.
	Dir string `yaml:"dir"`
	// Prefix is the key prefix inside the blob store for the store driver.
	Prefix string `yaml:"prefix"`
	// Subdir must exist in the snapshot; only it is indexed.
	Subdir string `yaml:"subdir"`
}

// StoreConfig holds the artifact store backend.
type StoreConfig struct {
	Driver    string     `yaml:"driver"` // local, memory, s3, minio
	Dir       string     `yaml:"dir"`
	Bucket    string     `yaml:"bucket"`
	Prefix    string     `yaml:"prefix"`
	Region    string     `yaml:"region"`
	Endpoint  string     `yaml:"endpoint"`
	AccessKey string     `yaml:"access_key"`
	SecretKey string     `yaml:"secret_key"`
	UseSSL    bool       `yaml:"use_ssl"`
	Refs      RefsConfig `yaml:"refs"`
}

// RefsConfig selects where the HEAD pointer lives.
type RefsConfig struct {
	Driver string `yaml:"driver"` // blob, dynamodb
	Table  string `yaml:"table"`
	Repo   string `yaml:"repo"`
}

// DatabaseConfig holds Redis connection settings. Only needed for the redis
// lock driver and the build-time embedding cache.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Cache stores chunk embeddings in Redis between builds.
	Cache bool `yaml:"cache"`
}

// ChunkingConfig holds chunker parameters.
type ChunkingConfig struct {
	ChunkChars int `yaml:"chunk_chars"`
	Overlap    int `yaml:"overlap"`
}

// IndexConfig holds artifact and serving settings.
type IndexConfig struct {
	ArtifactsPrefix string `yaml:"artifacts_prefix"`
	Codec           string `yaml:"codec"` // raw, lz4, zstd
	ReloadPollSec   int    `yaml:"reload_poll_sec"`
	CacheSize       int    `yaml:"cache_size"`
	QueryTimeoutSec int    `yaml:"query_timeout_sec"`
	SyncIntervalSec int    `yaml:"sync_interval_sec"`
	SyncTimeoutSec  int    `yaml:"sync_timeout_sec"`
}

// ReindexConfig holds rebuild coordination settings.
type ReindexConfig struct {
	// EverySec schedules periodic rebuilds; <= 0 disables the scheduler.
	EverySec        int    `yaml:"every_sec"`
	BuildTimeoutSec int    `yaml:"build_timeout_sec"`
	LockDriver      string `yaml:"lock_driver"` // file, redis
	LockKey         string `yaml:"lock_key"`
	LockStaleSec    int    `yaml:"lock_stale_sec"`
	LogMaxBytes     int    `yaml:"log_max_bytes"`
	// InProcess runs the build as a goroutine instead of a child process.
	InProcess bool `yaml:"in_process"`
}

// SanitizeConfig holds corpus sanitizing settings.
type SanitizeConfig struct {
	Enabled           bool     `yaml:"enabled"`
	SofficeBinary     string   `yaml:"soffice_binary"`
	DeleteOriginalDoc bool     `yaml:"delete_original_doc"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.WorkDir == "" {
		c.WorkDir = "data"
	}
	if c.Corpus.Driver == "" {
		c.Corpus.Driver = "local"
	}
	if c.Corpus.Subdir == "" {
		c.Corpus.Subdir = "docs_rag"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "local"
	}
	if c.Store.Driver == "local" && c.Store.Dir == "" {
		c.Store.Dir = filepath.Join(c.WorkDir, "store")
	}
	if c.Store.Refs.Driver == "" {
		c.Store.Refs.Driver = "blob"
	}
	if c.Store.Refs.Repo == "" {
		c.Store.Refs.Repo = "ragdex"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Chunking.ChunkChars <= 0 {
		c.Chunking.ChunkChars = 1200
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 200
	}
	if c.Index.ArtifactsPrefix == "" {
		c.Index.ArtifactsPrefix = "artifacts"
	}
	if c.Index.Codec == "" {
		c.Index.Codec = "zstd"
	}
	if c.Index.ReloadPollSec <= 0 {
		c.Index.ReloadPollSec = 30
	}
	if c.Index.CacheSize <= 0 {
		c.Index.CacheSize = 256
	}
	if c.Index.QueryTimeoutSec <= 0 {
		c.Index.QueryTimeoutSec = 10
	}
	if c.Index.SyncIntervalSec == 0 {
		c.Index.SyncIntervalSec = 60
	}
	if c.Index.SyncTimeoutSec <= 0 {
		c.Index.SyncTimeoutSec = 300
	}
	if c.Reindex.BuildTimeoutSec <= 0 {
		c.Reindex.BuildTimeoutSec = 3600
	}
	if c.Reindex.LockDriver == "" {
		c.Reindex.LockDriver = "file"
	}
	if c.Reindex.LockStaleSec <= 0 {
		c.Reindex.LockStaleSec = 7200
	}
	if c.Reindex.LogMaxBytes <= 0 {
		c.Reindex.LogMaxBytes = 200000
	}
	if c.Sanitize.SofficeBinary == "" {
		c.Sanitize.SofficeBinary = "soffice"
	}
	if len(c.Sanitize.AllowedExtensions) == 0 {
		c.Sanitize.AllowedExtensions = []string{".pdf", ".docx"}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Chunking.Overlap <= 0 || c.Chunking.Overlap >= c.Chunking.ChunkChars {
		return fmt.Errorf("chunking requires 0 < overlap < chunk_chars, got overlap=%d chunk_chars=%d",
			c.Chunking.Overlap, c.Chunking.ChunkChars)
	}
	switch c.Corpus.Driver {
	case "local":
		if c.Corpus.Dir == "" {
			return fmt.Errorf("corpus.dir is required for the local corpus driver")
		}
	case "store":
	default:
		return fmt.Errorf("corpus.driver must be \"local\" or \"store\", got %q", c.Corpus.Driver)
	}
	switch c.Store.Driver {
	case "local", "memory":
	case "s3", "minio":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for the %s driver", c.Store.Driver)
		}
		if c.Store.Driver == "minio" && c.Store.Endpoint == "" {
			return fmt.Errorf("store.endpoint is required for the minio driver")
		}
	default:
		return fmt.Errorf("store.driver must be one of local, memory, s3, minio, got %q", c.Store.Driver)
	}
	switch c.Store.Refs.Driver {
	case "blob":
	case "dynamodb":
		if c.Store.Refs.Table == "" {
			return fmt.Errorf("store.refs.table is required for the dynamodb refs driver")
		}
	default:
		return fmt.Errorf("store.refs.driver must be \"blob\" or \"dynamodb\", got %q", c.Store.Refs.Driver)
	}
	switch c.Reindex.LockDriver {
	case "file":
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis lock driver")
		}
	default:
		return fmt.Errorf("reindex.lock_driver must be \"file\" or \"redis\", got %q", c.Reindex.LockDriver)
	}
	if c.Embedding.Cache && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required when embedding.cache is enabled")
	}
	if !slices.Contains([]string{"raw", "lz4", "zstd"}, c.Index.Codec) {
		return fmt.Errorf("index.codec must be one of raw, lz4, zstd, got %q", c.Index.Codec)
	}
	return nil
}

// NeedsDatabase reports whether any component uses Redis.
func (c *Config) NeedsDatabase() bool {
	return c.Reindex.LockDriver == "redis" || c.Embedding.Cache
}

// ArtifactsDir is where synced artifacts are served from.
func (c *Config) ArtifactsDir() string { return filepath.Join(c.WorkDir, "artifacts") }

// LockPath is the file lock location.
func (c *Config) LockPath() string { return filepath.Join(c.WorkDir, "reindex.lock") }

// LogPath is the rolling reindex log location.
func (c *Config) LogPath() string { return filepath.Join(c.WorkDir, "logs", "reindex.log") }

// Seconds converts a config value to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
