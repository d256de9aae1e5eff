package health

import "context"

// IndexChecker reports whether the serving index can answer queries.
type IndexChecker interface {
	Exists() bool
}

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
