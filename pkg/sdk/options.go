package ragdex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	dir string

	embedder Embedder
	model    string

	cacheSize    int
	queryTimeout time.Duration
	reloadPoll   time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithArtifactsDir sets the directory holding the synced index artifacts.
// Required.
func WithArtifactsDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.dir = dir
	})
}

// WithEmbedder sets the query embedding provider and its model id. The model
// id must match the one recorded in the index manifest. Required.
func WithEmbedder(model string, e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.model = model
		c.embedder = e
	})
}

// WithQueryCache sets how many query embeddings are kept. Default: 256.
func WithQueryCache(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheSize = size
	})
}

// WithQueryTimeout bounds a single query embedding call. Default: 10s.
func WithQueryTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.queryTimeout = d
	})
}

// WithReloadPoll sets how often Search checks for newer artifacts.
// Default: 30s.
func WithReloadPoll(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.reloadPoll = d
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
