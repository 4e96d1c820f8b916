package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
)

func TestGormAccountRepository(t *testing.T) {
	repo := NewGormAccountRepository(setupTestDB(t))
	ctx := context.Background()

	account, err := pipeline.NewProspectAccount("Acme Corp", str("Retail"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, account))

	t.Run("finds by normalized name", func(t *testing.T) {
		found, err := repo.FindByName(ctx, "  acme   CORP ")
		require.NoError(t, err)
		assert.Equal(t, account.ID, found.ID)
		assert.Equal(t, "Acme Corp", found.Name)
		assert.Equal(t, pipeline.AccountTypeProspect, found.AccountType)
		assert.Equal(t, "Retail", *found.Vertical)
		assert.Nil(t, found.SalesManager)
		assert.Equal(t, 1, found.Version)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := repo.FindByName(ctx, "Globex")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate name", func(t *testing.T) {
		dup, err := pipeline.NewProspectAccount("ACME corp", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)
	})

	t.Run("owner assignment round trip", func(t *testing.T) {
		loaded, err := repo.FindByName(ctx, "Acme Corp")
		require.NoError(t, err)

		changed := loaded.AssignOwners(pipeline.OwnerAssignment{
			AccountName:    "Acme Corp",
			SalesManager:   pipeline.Some("Riley"),
			AccountManager: pipeline.Some("Sam"),
		})
		require.True(t, changed)
		require.NoError(t, repo.SaveWithLock(ctx, loaded))

		saved, err := repo.FindByName(ctx, "Acme Corp")
		require.NoError(t, err)
		assert.Equal(t, 2, saved.Version)
		assert.Equal(t, "Riley", *saved.SalesManager)
		assert.Equal(t, "Sam", *saved.AccountManager)
	})

	t.Run("stale save conflicts", func(t *testing.T) {
		stale, err := repo.FindByName(ctx, "Acme Corp")
		require.NoError(t, err)
		stale.Version = 1
		stale.AssignOwners(pipeline.OwnerAssignment{
			AccountName:  "Acme Corp",
			SalesManager: pipeline.Null[string](),
		})
		assert.ErrorIs(t, repo.SaveWithLock(ctx, stale), shared.ErrConcurrencyConflict)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.True(t, isUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "idx_deals_match_key" (SQLSTATE 23505)`)))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: accounts.name_key")))
}
