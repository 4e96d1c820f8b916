package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
)

func TestInMemoryPreviewStore(t *testing.T) {
	store := NewInMemoryPreviewStore(time.Hour)
	defer store.Close()

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	preview := samplePreview()
	require.NoError(t, store.Save(ctx, preview, 10*time.Minute))

	t.Run("returns saved preview", func(t *testing.T) {
		got, err := store.Get(ctx, preview.ID)
		require.NoError(t, err)
		assert.Same(t, preview, got)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		now = now.Add(10 * time.Minute)
		_, err := store.Get(ctx, preview.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		assert.Equal(t, 1, store.Size())
		store.cleanup()
		assert.Equal(t, 0, store.Size())
	})

	t.Run("delete", func(t *testing.T) {
		p := samplePreview()
		require.NoError(t, store.Save(ctx, p, time.Minute))
		require.NoError(t, store.Delete(ctx, p.ID))
		_, err := store.Get(ctx, p.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		assert.NoError(t, store.Delete(ctx, uuid.New()))
	})

	t.Run("rejects preview without id", func(t *testing.T) {
		err := store.Save(ctx, &pipeline.Preview{}, time.Minute)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestInMemoryPreviewStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryPreviewStore(time.Millisecond)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
