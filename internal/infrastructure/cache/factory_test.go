package cache

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/scout/backend/internal/infrastructure/config"
)

func TestPreviewStoreFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("redis disabled", func(t *testing.T) {
		store, err := NewPreviewStoreFactory(config.RedisConfig{}).CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()

		assert.IsType(t, &InMemoryPreviewStore{}, store.PreviewSessionStore)
		assert.Nil(t, store.Client)
	})

	t.Run("redis reachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		port, err := strconv.Atoi(mr.Port())
		require.NoError(t, err)

		store, err := NewPreviewStoreFactory(config.RedisConfig{
			Enabled:   true,
			Host:      mr.Host(),
			Port:      port,
			KeyPrefix: "scout:",
		}).CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()

		assert.IsType(t, &RedisPreviewStore{}, store.PreviewSessionStore)
		assert.NotNil(t, store.Client)
	})

	unreachable := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	t.Run("falls back when redis is down", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		store, err := NewPreviewStoreFactory(unreachable, WithLogger(zap.New(core))).CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()

		assert.IsType(t, &InMemoryPreviewStore{}, store.PreviewSessionStore)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("fails without fallback", func(t *testing.T) {
		_, err := NewPreviewStoreFactory(unreachable, WithInMemoryFallback(false)).CreateStore(ctx)
		assert.Error(t, err)
	})
}
