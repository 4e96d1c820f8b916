package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
)

const previewKeySegment = "preview:"

// RedisPreviewStore keeps previews in Redis as JSON so every instance behind
// a load balancer can apply a preview built by another.
type RedisPreviewStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisPreviewStore creates a store that namespaces keys with keyPrefix.
func NewRedisPreviewStore(client redis.Cmdable, keyPrefix string) *RedisPreviewStore {
	return &RedisPreviewStore{
		client:    client,
		keyPrefix: keyPrefix + previewKeySegment,
	}
}

func (s *RedisPreviewStore) key(id uuid.UUID) string {
	return s.keyPrefix + id.String()
}

// Save stores the preview under its id for ttl.
func (s *RedisPreviewStore) Save(ctx context.Context, preview *pipeline.Preview, ttl time.Duration) error {
	if preview == nil || preview.ID == uuid.Nil {
		return shared.ErrInvalidInput.WithMessage("preview has no id")
	}
	data, err := json.Marshal(preview)
	if err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	if err := s.client.Set(ctx, s.key(preview.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store preview: %w", err)
	}
	return nil
}

// Get returns shared.ErrNotFound for unknown and expired previews.
func (s *RedisPreviewStore) Get(ctx context.Context, id uuid.UUID) (*pipeline.Preview, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preview: %w", err)
	}

	var preview pipeline.Preview
	if err := json.Unmarshal(data, &preview); err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}
	return &preview, nil
}

// Delete removes the preview. Deleting an unknown id is not an error.
func (s *RedisPreviewStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete preview: %w", err)
	}
	return nil
}

var _ pipeline.PreviewSessionStore = (*RedisPreviewStore)(nil)
