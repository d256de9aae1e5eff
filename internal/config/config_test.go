package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{Corpus: CorpusConfig{Dir: "/srv/corpus"}}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Chunking.ChunkChars != 1200 || cfg.Chunking.Overlap != 200 {
		t.Errorf("expected chunking 1200/200, got %d/%d", cfg.Chunking.ChunkChars, cfg.Chunking.Overlap)
	}
	if cfg.Index.ReloadPollSec != 30 {
		t.Errorf("expected reload poll 30, got %d", cfg.Index.ReloadPollSec)
	}
	if cfg.Index.CacheSize != 256 {
		t.Errorf("expected cache size 256, got %d", cfg.Index.CacheSize)
	}
	if cfg.Index.QueryTimeoutSec != 10 {
		t.Errorf("expected query timeout 10, got %d", cfg.Index.QueryTimeoutSec)
	}
	if cfg.Index.SyncTimeoutSec != 300 {
		t.Errorf("expected sync timeout 300, got %d", cfg.Index.SyncTimeoutSec)
	}
	if cfg.Reindex.LockStaleSec != 7200 {
		t.Errorf("expected stale lock 7200, got %d", cfg.Reindex.LockStaleSec)
	}
	if cfg.Reindex.LogMaxBytes != 200000 {
		t.Errorf("expected log tail 200000, got %d", cfg.Reindex.LogMaxBytes)
	}
	if cfg.Reindex.EverySec != 0 {
		t.Errorf("expected scheduler disabled, got %d", cfg.Reindex.EverySec)
	}
	if cfg.Reindex.BuildTimeoutSec != 3600 {
		t.Errorf("expected build timeout 3600, got %d", cfg.Reindex.BuildTimeoutSec)
	}
	if cfg.Corpus.Subdir != "docs_rag" {
		t.Errorf("expected subdir docs_rag, got %q", cfg.Corpus.Subdir)
	}
	if cfg.Store.Dir != filepath.Join("data", "store") {
		t.Errorf("expected local store under work dir, got %q", cfg.Store.Dir)
	}
	if cfg.Index.Codec != "zstd" {
		t.Errorf("expected zstd codec, got %q", cfg.Index.Codec)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 9090},
		WorkDir:  "/var/lib/ragdex",
		Chunking: ChunkingConfig{ChunkChars: 500, Overlap: 50},
		Reindex:  ReindexConfig{EverySec: 600, LockDriver: "redis"},
		Index:    IndexConfig{Codec: "lz4"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Chunking.ChunkChars != 500 || cfg.Chunking.Overlap != 50 {
		t.Errorf("expected chunking 500/50, got %d/%d", cfg.Chunking.ChunkChars, cfg.Chunking.Overlap)
	}
	if cfg.Reindex.EverySec != 600 {
		t.Errorf("expected every 600, got %d", cfg.Reindex.EverySec)
	}
	if cfg.Reindex.LockDriver != "redis" {
		t.Errorf("expected redis lock driver, got %q", cfg.Reindex.LockDriver)
	}
	if cfg.Index.Codec != "lz4" {
		t.Errorf("expected lz4 codec, got %q", cfg.Index.Codec)
	}
	if cfg.Store.Dir != filepath.Join("/var/lib/ragdex", "store") {
		t.Errorf("expected store dir under custom work dir, got %q", cfg.Store.Dir)
	}
	if cfg.ArtifactsDir() != filepath.Join("/var/lib/ragdex", "artifacts") {
		t.Errorf("unexpected artifacts dir %q", cfg.ArtifactsDir())
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidChunking(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"overlap equals size", 200, 200},
		{"overlap larger than size", 100, 200},
		{"negative overlap", 100, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Chunking = ChunkingConfig{ChunkChars: tt.size, Overlap: tt.overlap}
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error for invalid chunking")
			}
			if !strings.Contains(err.Error(), "overlap") {
				t.Errorf("expected overlap error, got: %v", err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	for _, port := range []int{-1, 70000} {
		cfg := validConfig()
		cfg.HTTP.Port = port
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for port %d", port)
		}
	}
}

func TestValidate_UnknownDrivers(t *testing.T) {
	cases := map[string]func(*Config){
		"corpus":  func(c *Config) { c.Corpus.Driver = "ftp" },
		"store":   func(c *Config) { c.Store.Driver = "gcs" },
		"refs":    func(c *Config) { c.Store.Refs.Driver = "etcd" },
		"lock":    func(c *Config) { c.Reindex.LockDriver = "zookeeper" },
		"codec":   func(c *Config) { c.Index.Codec = "gzip" },
		"no_dir":  func(c *Config) { c.Corpus.Dir = "" },
		"minio":   func(c *Config) { c.Store.Driver = "minio"; c.Store.Bucket = "b" },
		"s3":      func(c *Config) { c.Store.Driver = "s3" },
		"dynamo":  func(c *Config) { c.Store.Refs.Driver = "dynamodb" },
		"cache":   func(c *Config) { c.Embedding.Cache = true },
		"redislk": func(c *Config) { c.Reindex.LockDriver = "redis" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestValidate_RedisLockWithAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Reindex.LockDriver = "redis"
	cfg.Database.Addrs = []string{"localhost:6379"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.NeedsDatabase() {
		t.Error("redis lock should need the database")
	}
}

func TestValidate_StoreCorpusNeedsNoDir(t *testing.T) {
	cfg := validConfig()
	cfg.Corpus = CorpusConfig{Driver: "store", Prefix: "corpus", Subdir: "docs_rag"}
	cfg.Store = StoreConfig{Driver: "s3", Bucket: "ragdex", Refs: RefsConfig{Driver: "dynamodb", Table: "refs", Repo: "ragdex"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("RAGDEX_TEST_TOKEN", "s3cret")
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	body := `
http:
  port: ${RAGDEX_TEST_PORT:-9191}
auth:
  reindex_token: ${RAGDEX_TEST_TOKEN}
work_dir: ` + dir + `
corpus:
  dir: ` + dir + `
reindex:
  every_sec: 300
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != 9191 {
		t.Errorf("expected default port from expression, got %d", cfg.HTTP.Port)
	}
	if cfg.Auth.ReindexToken != "s3cret" {
		t.Errorf("expected token from env, got %q", cfg.Auth.ReindexToken)
	}
	if Seconds(cfg.Reindex.EverySec) != 5*time.Minute {
		t.Errorf("expected 5m schedule, got %v", Seconds(cfg.Reindex.EverySec))
	}
	if cfg.LockPath() != filepath.Join(dir, "reindex.lock") {
		t.Errorf("unexpected lock path %q", cfg.LockPath())
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("chunking:\n  chunk_chars: 100\n  overlap: 150\ncorpus:\n  dir: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected invalid config error")
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("expected local, got %q", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("expected prod, got %q", got)
	}
}
