// Package reindex coordinates single-flight index rebuilds.
//
// Any number of triggers (HTTP, the scheduler, the CLI) go through one
// Coordinator. The build itself runs as an isolated Job and talks to the
// serving runtime only through the artifact store.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/lock"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// LockedMessage is returned to triggers that lose the race for the lock.
const LockedMessage = "LOCKED: reindex already running"

// Coordinator runs Jobs under a Lock.
type Coordinator struct {
	lock    lock.Lock
	job     Job
	log     *RollingLog
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewCoordinator creates a Coordinator. timeout bounds each job (0 = none).
func NewCoordinator(l lock.Lock, job Job, log *RollingLog, timeout time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{lock: l, job: job, log: log, timeout: timeout, logger: logger, now: time.Now}
}

// Log exposes the rolling job log.
func (c *Coordinator) Log() *RollingLog { return c.log }

// Run acquires the lock, runs the job and releases the lock. It returns
// domain.ErrAlreadyRunning without running anything when the lock is held.
// A job that exits non-zero is reported through the outcome, not an error.
func (c *Coordinator) Run(ctx context.Context) (Outcome, error) {
	if err := c.lock.Acquire(ctx); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			metrics.ReindexRunsTotal.WithLabelValues("locked").Inc()
			c.logger.Info("reindex skipped, lock held")
			return Outcome{}, err
		}
		metrics.ReindexRunsTotal.WithLabelValues("failed").Inc()
		return Outcome{}, fmt.Errorf("acquire reindex lock: %w", err)
	}
	defer c.lock.Release(context.WithoutCancel(ctx))

	jobCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := c.now()
	c.logger.Info("reindex started")
	out := c.job.Run(jobCtx)

	metrics.ReindexDuration.Observe(out.Duration.Seconds())
	result := "ok"
	if !out.OK() {
		result = "failed"
	}
	metrics.ReindexRunsTotal.WithLabelValues(result).Inc()
	c.logger.Info("reindex finished",
		zap.Int("exit_code", out.ExitCode),
		zap.Duration("duration", out.Duration),
	)

	entry := fmt.Sprintf("=== reindex %s ===\n%s\n", started.UTC().Format(time.RFC3339), out.String())
	if err := c.log.Append(entry); err != nil {
		c.logger.Warn("write reindex log", zap.Error(err))
	}
	return out, nil
}

// Trigger runs the coordinated build and renders the reply text for callers
// that only want a message.
func (c *Coordinator) Trigger(ctx context.Context) (string, error) {
	out, err := c.Run(ctx)
	if errors.Is(err, domain.ErrAlreadyRunning) {
		return LockedMessage, err
	}
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
