package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// DefaultMaxAPIBatchSize is the maximum number of texts in one API request.
const DefaultMaxAPIBatchSize = 64

// InstrumentedEmbedder splits large inputs into API-sized batches, paces
// requests with a token bucket and logs each batch.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	provider  string
	batchSize int
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Options configure an InstrumentedEmbedder.
type Options struct {
	Provider  string
	BatchSize int
	// RequestsPerSecond limits API requests; zero disables limiting.
	RequestsPerSecond float64
}

// NewInstrumentedEmbedder wraps an embedder with batching, rate limiting and observability.
func NewInstrumentedEmbedder(inner domain.Embedder, opts Options, logger *zap.Logger) *InstrumentedEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultMaxAPIBatchSize
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &InstrumentedEmbedder{
		inner:     inner,
		provider:  opts.Provider,
		batchSize: opts.BatchSize,
		limiter:   limiter,
		logger:    logger,
	}
}

// Model implements domain.Embedder.
func (p *InstrumentedEmbedder) Model() string { return p.inner.Model() }

// Embed implements domain.Embedder.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	out := make([][]float32, 0, len(texts))

	for offset := 0; offset < len(texts); offset += p.batchSize {
		end := min(offset+p.batchSize, len(texts))
		chunk := texts[offset:end]

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, domain.WrapTimeout("embed rate limit", fmt.Errorf("rate limiter: %w", err))
		}

		vecs, err := p.inner.Embed(ctx, chunk)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.inner.Model()),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("batch embed: %w", err)
		}
		if len(vecs) != len(chunk) {
			return nil, fmt.Errorf("expected %d embeddings, got %d: %w",
				len(chunk), len(vecs), domain.ErrEmbeddingProviderError)
		}
		out = append(out, vecs...)
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.inner.Model()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
	)

	return out, nil
}
