package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// FileLock is a lock file holding its creation time. A sibling flock guard
// serializes the check-reclaim-create sequence between processes.
type FileLock struct {
	mu         sync.Mutex
	path       string
	guard      *flock.Flock
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewFileLock creates a FileLock at path.
func NewFileLock(path string, staleAfter time.Duration, logger *zap.Logger) *FileLock {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &FileLock{
		path:       path,
		guard:      flock.New(path + ".guard"),
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock overrides the time source.
func (l *FileLock) WithClock(now func() time.Time) *FileLock {
	l.now = now
	return l
}

// Path is the lock file location.
func (l *FileLock) Path() string { return l.path }

// Acquire implements Lock.
func (l *FileLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	locked, err := l.guard.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock guard: %w", err)
	}
	if !locked {
		return domain.ErrAlreadyRunning
	}
	defer func() { _ = l.guard.Unlock() }()

	err = l.create()
	if !errors.Is(err, os.ErrExist) {
		return err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read lock: %w", err)
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return fmt.Errorf("stat lock: %w", err)
	}
	if !isStale(data, info.ModTime(), l.now(), l.staleAfter) {
		return domain.ErrAlreadyRunning
	}

	l.logger.Warn("reclaiming stale reindex lock", zap.String("path", l.path), zap.ByteString("stamp", data))
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	if err := l.create(); err != nil {
		if errors.Is(err, os.ErrExist) {
			return domain.ErrAlreadyRunning
		}
		return err
	}
	return nil
}

func (l *FileLock) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.Write(stamp(l.now()))
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock: %w", err)
	}
	return nil
}

// Release implements Lock.
func (l *FileLock) Release(context.Context) {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("release reindex lock", zap.String("path", l.path), zap.Error(err))
	}
}
