package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

// DefaultRedisKey is where the distributed lock lives.
const DefaultRedisKey = "ragdex:reindex:lock"

// RedisLock keeps the lock in a key-value store so that several hosts sharing
// one artifact store also share one build slot.
type RedisLock struct {
	kv         db.KVStore
	key        string
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewRedisLock creates a RedisLock stored at key.
func NewRedisLock(kv db.KVStore, key string, staleAfter time.Duration, logger *zap.Logger) *RedisLock {
	if key == "" {
		key = DefaultRedisKey
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &RedisLock{kv: kv, key: key, staleAfter: staleAfter, now: time.Now, logger: logger}
}

// WithClock overrides the time source.
func (l *RedisLock) WithClock(now func() time.Time) *RedisLock {
	l.now = now
	return l
}

// Acquire implements Lock.
func (l *RedisLock) Acquire(ctx context.Context) error {
	ok, err := l.kv.SetNX(ctx, l.key, stamp(l.now()))
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if ok {
		return nil
	}

	data, err := l.kv.Get(ctx, l.key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		// Released between SET NX and GET.
		return l.retry(ctx)
	case err != nil:
		return fmt.Errorf("read lock: %w", err)
	}

	// A value without a stamp was not written by Acquire; reclaim it.
	if !isStale(data, time.Time{}, l.now(), l.staleAfter) {
		return domain.ErrAlreadyRunning
	}

	l.logger.Warn("reclaiming stale reindex lock", zap.String("key", l.key), zap.ByteString("stamp", data))
	// Only the stamp we judged stale may go: another contender may have
	// reclaimed it already and written its own.
	deleted, err := l.kv.DelIfValue(ctx, l.key, data)
	if err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	if !deleted {
		return domain.ErrAlreadyRunning
	}
	return l.retry(ctx)
}

func (l *RedisLock) retry(ctx context.Context) error {
	ok, err := l.kv.SetNX(ctx, l.key, stamp(l.now()))
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return domain.ErrAlreadyRunning
	}
	return nil
}

// Release implements Lock.
func (l *RedisLock) Release(ctx context.Context) {
	if err := l.kv.Del(ctx, l.key); err != nil {
		l.logger.Warn("release reindex lock", zap.String("key", l.key), zap.Error(err))
	}
}
