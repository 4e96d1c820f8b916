package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
)

type previewEntry struct {
	preview   *pipeline.Preview
	expiresAt time.Time
}

// InMemoryPreviewStore keeps previews in process memory. It suits a single
// instance deployment and tests. Stored previews are shared, not copied, so
// callers must treat them as read-only.
type InMemoryPreviewStore struct {
	mu        sync.RWMutex
	entries   map[uuid.UUID]previewEntry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryPreviewStore creates the store and starts a goroutine that
// evicts expired previews every cleanupInterval.
func NewInMemoryPreviewStore(cleanupInterval time.Duration) *InMemoryPreviewStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &InMemoryPreviewStore{
		entries:  make(map[uuid.UUID]previewEntry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop(cleanupInterval)

	return s
}

// Save stores the preview under its id for ttl.
func (s *InMemoryPreviewStore) Save(_ context.Context, preview *pipeline.Preview, ttl time.Duration) error {
	if preview == nil || preview.ID == uuid.Nil {
		return shared.ErrInvalidInput.WithMessage("preview has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[preview.ID] = previewEntry{
		preview:   preview,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Get returns shared.ErrNotFound for unknown and expired previews.
func (s *InMemoryPreviewStore) Get(_ context.Context, id uuid.UUID) (*pipeline.Preview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, shared.ErrNotFound
	}
	return e.preview, nil
}

// Delete removes the preview. Deleting an unknown id is not an error.
func (s *InMemoryPreviewStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryPreviewStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryPreviewStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryPreviewStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// Size returns the number of entries, expired ones included until cleanup.
func (s *InMemoryPreviewStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ pipeline.PreviewSessionStore = (*InMemoryPreviewStore)(nil)
