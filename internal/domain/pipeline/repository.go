package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DealRepository is the authoritative deal store.
type DealRepository interface {
	FindAll(ctx context.Context) ([]*Deal, error)
	// FindByID returns shared.ErrNotFound when the deal does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*Deal, error)
	// FindByMatchKey returns shared.ErrNotFound when no deal has the key.
	FindByMatchKey(ctx context.Context, matchKey string) (*Deal, error)
	// Create returns shared.ErrAlreadyExists when the match key is taken.
	Create(ctx context.Context, deal *Deal) error
	// SaveWithLock persists a deal whose version was incremented once since
	// it was loaded. It returns shared.ErrConcurrencyConflict when the stored
	// version moved in between.
	SaveWithLock(ctx context.Context, deal *Deal) error
	// Delete returns shared.ErrNotFound when the deal does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountRepository stores the accounts deals belong to.
type AccountRepository interface {
	// FindByName looks an account up by normalized name and returns
	// shared.ErrNotFound when there is none.
	FindByName(ctx context.Context, name string) (*Account, error)
	// Create returns shared.ErrAlreadyExists when the name is taken.
	Create(ctx context.Context, account *Account) error
	SaveWithLock(ctx context.Context, account *Account) error
}

// PreviewSessionStore keeps previews between the preview and apply calls.
type PreviewSessionStore interface {
	Save(ctx context.Context, preview *Preview, ttl time.Duration) error
	// Get returns shared.ErrNotFound when the preview is unknown or expired.
	Get(ctx context.Context, id uuid.UUID) (*Preview, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
