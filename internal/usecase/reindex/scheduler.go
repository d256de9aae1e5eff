package reindex

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Scheduler triggers the coordinator every interval. An interval <= 0
// disables it.
type Scheduler struct {
	coord    *Coordinator
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(coord *Coordinator, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{coord: coord, interval: interval, logger: logger}
}

// Enabled reports whether Run does anything.
func (s *Scheduler) Enabled() bool { return s.interval > 0 }

// Run blocks until ctx is done, running a build immediately and then once per
// interval. Build failures are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("scheduler disabled")
		return
	}
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		out, err := s.coord.Run(ctx)
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			s.logger.Info("scheduled reindex skipped, already running")
		case err != nil:
			s.logger.Error("scheduled reindex failed", zap.Error(err))
		case !out.OK():
			s.logger.Error("scheduled reindex exited non-zero", zap.Int("exit_code", out.ExitCode))
		default:
			s.logger.Info("scheduled reindex done", zap.Duration("duration", out.Duration))
		}
		timer.Reset(s.interval)
	}
}
