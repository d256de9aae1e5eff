// Package runtime serves similarity search from the locally synced artifacts.
//
// A Runtime starts unloaded and becomes loaded on the first successful Load.
// It never unloads: a failed reload keeps the previous generation serving.
// All state lives behind one mutex; query embedding runs outside it.
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/vectorindex"
)

// Defaults.
const (
	DefaultReloadPoll   = 30 * time.Second
	DefaultCacheSize    = 256
	DefaultQueryTimeout = 10 * time.Second
)

// Options configures a Runtime.
type Options struct {
	// Dir holds vectors.index, meta.json and manifest.json.
	Dir          string
	ReloadPoll   time.Duration
	CacheSize    int
	QueryTimeout time.Duration
}

// Status is a point-in-time view of the runtime.
type Status struct {
	Loaded        bool      `json:"loaded"`
	Revision      string    `json:"revision,omitempty"`
	EmbedModel    string    `json:"embed_model,omitempty"`
	NumChunks     int       `json:"num_chunks"`
	Generation    uint64    `json:"generation"`
	LoadedAt      time.Time `json:"loaded_at,omitzero"`
	ArtifactMtime time.Time `json:"artifact_mtime,omitzero"`
	CacheEntries  int       `json:"cache_entries"`
}

// Runtime owns the in-memory index generation.
type Runtime struct {
	embedder domain.Embedder
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	// loadMu serializes loads so two reloads never read artifacts at once.
	loadMu sync.Mutex

	mu         sync.Mutex
	index      *vectorindex.Index
	meta       []domain.Chunk
	manifest   *domain.Manifest
	generation uint64
	loadedAt   time.Time
	lastMtime  time.Time
	lastCheck  time.Time
	checked    bool
	cache      *queryCache
}

// New creates an unloaded Runtime.
func New(embedder domain.Embedder, opts Options, logger *zap.Logger) *Runtime {
	if opts.ReloadPoll <= 0 {
		opts.ReloadPoll = DefaultReloadPoll
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Runtime{
		embedder: embedder,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		cache:    newQueryCache(opts.CacheSize),
	}
}

// WithClock overrides the time source used for reload polling.
func (r *Runtime) WithClock(now func() time.Time) *Runtime {
	r.now = now
	return r
}

func (r *Runtime) indexPath() string    { return filepath.Join(r.opts.Dir, domain.IndexFile) }
func (r *Runtime) metaPath() string     { return filepath.Join(r.opts.Dir, domain.MetaFile) }
func (r *Runtime) manifestPath() string { return filepath.Join(r.opts.Dir, domain.ManifestFile) }

// Exists reports whether both the index and the metadata artifact are present.
func (r *Runtime) Exists() bool {
	return fileExists(r.indexPath()) && fileExists(r.metaPath())
}

// Load reads the artifacts and swaps them in. The query cache is cleared.
// On any error the previous generation stays in place.
func (r *Runtime) Load() error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	err := r.load()
	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.IndexReloadsTotal.WithLabelValues(result).Inc()
	return err
}

func (r *Runtime) load() error {
	info, err := os.Stat(r.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return domain.ErrIndexNotBuilt
	}
	if err != nil {
		return fmt.Errorf("stat index: %w", err)
	}

	manifest, err := r.readManifest()
	if err != nil {
		return err
	}
	if manifest != nil && manifest.EmbedModel != r.embedder.Model() {
		return fmt.Errorf("artifacts built with %q, runtime uses %q: %w",
			manifest.EmbedModel, r.embedder.Model(), domain.ErrModelMismatch)
	}

	indexBytes, err := os.ReadFile(r.indexPath())
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	metaBytes, err := os.ReadFile(r.metaPath())
	if errors.Is(err, os.ErrNotExist) {
		return domain.ErrIndexNotBuilt
	}
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	if manifest != nil {
		if err := verify(domain.IndexFile, indexBytes, manifest.Checksums.Index); err != nil {
			return err
		}
		if err := verify(domain.MetaFile, metaBytes, manifest.Checksums.Meta); err != nil {
			return err
		}
	}

	ix, err := vectorindex.Unmarshal(indexBytes)
	if err != nil {
		return err
	}
	var meta []domain.Chunk
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("decode metadata: %w: %w", domain.ErrIndexCorrupt, err)
	}
	if len(meta) != ix.Len() {
		return fmt.Errorf("%d vectors but %d metadata entries: %w", ix.Len(), len(meta), domain.ErrIndexCorrupt)
	}

	r.mu.Lock()
	r.index = ix
	r.meta = meta
	r.manifest = manifest
	r.generation++
	r.loadedAt = r.now()
	r.lastMtime = info.ModTime()
	r.cache.clear()
	gen := r.generation
	r.mu.Unlock()

	metrics.IndexChunks.Set(float64(len(meta)))
	fields := []zap.Field{zap.Int("chunks", len(meta)), zap.Uint64("generation", gen)}
	if manifest != nil {
		fields = append(fields, zap.String("revision", manifest.Revision))
	}
	r.logger.Info("index loaded", fields...)
	return nil
}

// readManifest returns nil when no manifest sits next to the artifacts.
func (r *Runtime) readManifest() (*domain.Manifest, error) {
	data, err := os.ReadFile(r.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("no manifest next to artifacts, skipping model and checksum checks")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := domain.ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexCorrupt, err)
	}
	return m, nil
}

// EnsureLoaded fails with domain.ErrIndexNotBuilt when no artifacts exist and
// loads them on first use.
func (r *Runtime) EnsureLoaded() error {
	if !r.Exists() {
		return domain.ErrIndexNotBuilt
	}
	r.mu.Lock()
	loaded := r.index != nil
	r.mu.Unlock()
	if loaded {
		return nil
	}
	return r.Load()
}

// MaybeReload loads newer artifacts at most once per poll interval. It is a
// no-op inside the interval and when the index file has not changed.
func (r *Runtime) MaybeReload() error {
	r.mu.Lock()
	now := r.now()
	if r.checked && now.Sub(r.lastCheck) < r.opts.ReloadPoll {
		r.mu.Unlock()
		return nil
	}
	r.checked = true
	r.lastCheck = now
	loaded := r.index != nil
	last := r.lastMtime
	r.mu.Unlock()

	info, err := os.Stat(r.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat index: %w", err)
	}
	if loaded && !info.ModTime().After(last) {
		return nil
	}

	if err := r.Load(); err != nil {
		r.logger.Error("reload failed, keeping previous index", zap.Error(err))
		return err
	}
	return nil
}

// Search embeds query and returns up to k hits, best first.
func (r *Runtime) Search(ctx context.Context, query string, k int) ([]domain.Hit, error) {
	if err := r.EnsureLoaded(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.Hit{}, nil
	}

	vec, err := r.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	results, err := r.index.Search(vec, k)
	if err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(results))
	for _, res := range vectorindex.Matched(results) {
		hits = append(hits, domain.NewHit(r.meta[res.Position], res.Score))
	}
	return hits, nil
}

// queryVector returns the cached embedding or computes it without holding the
// lock. A result computed across a reload is not cached.
func (r *Runtime) queryVector(ctx context.Context, query string) ([]float32, error) {
	r.mu.Lock()
	vec, ok := r.cache.get(query)
	gen := r.generation
	r.mu.Unlock()
	if ok {
		metrics.QueryCacheTotal.WithLabelValues("hit").Inc()
		return vec, nil
	}
	metrics.QueryCacheTotal.WithLabelValues("miss").Inc()

	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()
	vec, err := domain.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, domain.WrapTimeout("embed query", err)
	}

	r.mu.Lock()
	if r.generation == gen {
		r.cache.put(query, vec)
	}
	r.mu.Unlock()
	return vec, nil
}

// Status returns a snapshot of the runtime state.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		Loaded:        r.index != nil,
		NumChunks:     len(r.meta),
		Generation:    r.generation,
		LoadedAt:      r.loadedAt,
		ArtifactMtime: r.lastMtime,
		CacheEntries:  r.cache.len(),
	}
	if r.manifest != nil {
		s.Revision = r.manifest.Revision
		s.EmbedModel = r.manifest.EmbedModel
	}
	return s
}

func verify(name string, data []byte, want string) error {
	if want == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != want {
		return fmt.Errorf("%s: %w", name, domain.ErrChecksumMismatch)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
