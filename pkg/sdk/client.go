package ragdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/runtime"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
)

// Internal interface for substitution in tests.
type searchRuntime interface {
	Load() error
	MaybeReload() error
	Search(ctx context.Context, query string, k int) ([]domain.Hit, error)
	Status() runtime.Status
}

// Client is the ragdex SDK entry point.
type Client struct {
	rt        searchRuntime
	healthSvc healthUseCase
	obs       *observer
}

// Open creates a Client over a local artifacts directory. The index is
// loaded lazily on the first Search, or eagerly with Load.
func Open(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.dir == "" {
		return nil, errors.New("ragdex: artifacts dir required (use WithArtifactsDir)")
	}
	if cfg.embedder == nil || cfg.model == "" {
		return nil, errors.New("ragdex: embedder and model required (use WithEmbedder)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	emb := &embedderAdapter{inner: cfg.embedder, model: cfg.model}
	rt := runtime.New(emb, runtime.Options{
		Dir:          cfg.dir,
		ReloadPoll:   cfg.reloadPoll,
		CacheSize:    cfg.cacheSize,
		QueryTimeout: cfg.queryTimeout,
	}, zap.NewNop())

	// Pass nil interface (not typed nil pointer!) if the embedder cannot be probed.
	var embCheck healthuc.EmbeddingChecker
	if hc, ok := cfg.embedder.(domain.HealthChecker); ok {
		embCheck = hc
	}

	return &Client{
		rt:        rt,
		healthSvc: healthuc.New(rt, nil, embCheck),
		obs:       obs,
	}, nil
}

// Load reads the artifacts now instead of on first use.
func (c *Client) Load() (err error) {
	start := time.Now()
	defer func() { c.obs.observe("load", start, err) }()

	if err = c.rt.Load(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return nil
}

// Search returns up to k chunks nearest to query, best first. Newer
// artifacts are picked up first when the reload interval has passed; a
// failed reload keeps the current index serving.
func (c *Client) Search(ctx context.Context, query string, k int) (hits []Hit, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err, "k", k, "hits", len(hits)) }()

	c.obs.reloadFailed(c.rt.MaybeReload())

	found, err := c.rt.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits = make([]Hit, len(found))
	for i, h := range found {
		hits[i] = Hit{
			Text:       h.Text,
			SourcePath: h.SourcePath,
			ChunkID:    h.ChunkID,
			Score:      h.Score,
		}
	}
	return hits, nil
}

// Status reports the loaded index generation.
func (c *Client) Status() Status {
	s := c.rt.Status()
	return Status{
		Loaded:       s.Loaded,
		Revision:     s.Revision,
		EmbedModel:   s.EmbedModel,
		NumChunks:    s.NumChunks,
		Generation:   s.Generation,
		LoadedAt:     s.LoadedAt,
		CacheEntries: s.CacheEntries,
	}
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
	model string
}

func (a *embedderAdapter) Model() string { return a.model }

func (a *embedderAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if be, ok := a.inner.(BatchEmbedder); ok && len(texts) > 1 {
		r, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		return r.Embeddings, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		r, err := a.inner.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		out = append(out, r.Embedding)
	}
	return out, nil
}
