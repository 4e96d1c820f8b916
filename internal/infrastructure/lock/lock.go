// Package lock provides the apply lock that keeps two pipeline applies from
// running at the same time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scout/backend/internal/domain/shared"
)

// RedisLocker holds locks in Redis so that applies are serialized across
// every instance sharing the Redis database.
type RedisLocker struct {
	client    *redislock.Client
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisLocker creates a locker whose locks expire after ttl if never
// released. ttl must outlast the longest apply.
func NewRedisLocker(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:    redislock.New(client),
		ttl:       ttl,
		keyPrefix: keyPrefix + "lock:",
		logger:    logger,
	}
}

// Acquire obtains the lock without waiting. A held lock is
// shared.ErrApplyInProgress.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	lk, err := l.client.Obtain(ctx, l.keyPrefix+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, shared.ErrApplyInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	l.logger.Debug("apply lock obtained", zap.String("key", key), zap.Duration("ttl", l.ttl))
	return func(ctx context.Context) error {
		err := lk.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("apply lock expired before release", zap.String("key", key))
			return nil
		}
		return err
	}, nil
}

// LocalLocker serializes applies within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire marks key as held. A held key is shared.ErrApplyInProgress.
func (l *LocalLocker) Acquire(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, shared.ErrApplyInProgress
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
