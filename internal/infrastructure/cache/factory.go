package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/infrastructure/config"
)

// PreviewStoreFactory picks the preview session store for the configuration.
type PreviewStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	cleanupInterval       time.Duration
}

// PreviewStoreFactoryOption is a functional option for configuring the factory
type PreviewStoreFactoryOption func(*PreviewStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) PreviewStoreFactoryOption {
	return func(f *PreviewStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory store. Default is true.
func WithInMemoryFallback(allow bool) PreviewStoreFactoryOption {
	return func(f *PreviewStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithCleanupInterval sets how often the in-memory store evicts expired previews.
func WithCleanupInterval(d time.Duration) PreviewStoreFactoryOption {
	return func(f *PreviewStoreFactory) {
		f.cleanupInterval = d
	}
}

// NewPreviewStoreFactory creates a new factory
func NewPreviewStoreFactory(cfg config.RedisConfig, opts ...PreviewStoreFactoryOption) *PreviewStoreFactory {
	f := &PreviewStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		cleanupInterval:       time.Minute,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// PreviewStore is the selected store plus the Redis client backing it, nil
// when the store is in memory.
type PreviewStore struct {
	pipeline.PreviewSessionStore
	Client *redis.Client
	close  func() error
}

// Close releases the store and its Redis client.
func (s *PreviewStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// CreateStore returns a Redis store when Redis is enabled and reachable.
// Otherwise it returns an in-memory store, unless Redis is enabled and
// fallback was disabled.
func (f *PreviewStoreFactory) CreateStore(ctx context.Context) (*PreviewStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory preview sessions")
		return f.inMemory(), nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis preview sessions", zap.String("addr", f.redisConfig.Addr()))
		return &PreviewStore{
			PreviewSessionStore: NewRedisPreviewStore(client, f.redisConfig.KeyPrefix),
			Client:              client,
			close:               client.Close,
		}, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for preview sessions but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory preview sessions. "+
		"Previews will not be shared between instances.",
		zap.Error(err),
	)
	return f.inMemory(), nil
}

func (f *PreviewStoreFactory) inMemory() *PreviewStore {
	store := NewInMemoryPreviewStore(f.cleanupInterval)
	return &PreviewStore{
		PreviewSessionStore: store,
		close:               store.Close,
	}
}
