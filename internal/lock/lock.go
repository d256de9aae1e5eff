// Package lock provides the single-flight reindex lock.
//
// A lock is a marker stamped with its creation time. A marker older than the
// staleness threshold belongs to a crashed build and may be reclaimed.
package lock

import (
	"context"
	"strings"
	"time"
)

// DefaultStaleAfter is the age after which a held lock is presumed abandoned.
const DefaultStaleAfter = 2 * time.Hour

// Lock guards the build+publish path.
type Lock interface {
	// Acquire takes the lock or returns domain.ErrAlreadyRunning.
	Acquire(ctx context.Context) error
	// Release drops the lock. Failures are logged, never returned.
	Release(ctx context.Context)
}

// stamp renders a lock timestamp.
func stamp(t time.Time) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano))
}

// isStale reports whether a lock stamped with data is older than staleAfter.
// fallback dates a marker whose stamp cannot be parsed.
func isStale(data []byte, fallback, now time.Time, staleAfter time.Duration) bool {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		ts = fallback
	}
	return now.Sub(ts) >= staleAfter
}
