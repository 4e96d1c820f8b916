package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
)

func TestGormDealRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDealRepository(db)
	ctx := context.Background()

	accountID := uuid.New()
	deal := newTestDeal(t, accountID, "Platform Renewal", "Acme Corp")
	require.NoError(t, repo.Create(ctx, deal))

	t.Run("by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, deal.ID)
		require.NoError(t, err)

		assert.Equal(t, deal.ID, found.ID)
		assert.Equal(t, accountID, found.AccountID)
		assert.Equal(t, 1, found.Version)
		assert.Equal(t, "Platform Renewal", found.DealName)
		assert.Equal(t, "Acme Corp", found.AccountName)
		assert.Equal(t, pipeline.StageProposal, found.Stage)
		require.NotNil(t, found.Value)
		assert.True(t, money("1500.50").Equal(*found.Value))
		require.NotNil(t, found.WeightedValue)
		assert.True(t, money("600.20").Equal(*found.WeightedValue))
		assert.Equal(t, "Dana", *found.Owner)
		assert.Equal(t, "Q1 2026", *found.Quarter)
		assert.Equal(t, pipeline.DealTypeRenewal, *found.DealType)
		require.NotNil(t, found.CloseDate)
		assert.Equal(t, "2026-03-31", found.CloseDate.String())
		assert.Equal(t, "Retail", *found.Vertical)
		assert.Equal(t, 40, *found.Probability)
		assert.Nil(t, found.ConfirmedValue)
		assert.Empty(t, found.GetDomainEvents())
	})

	t.Run("by match key ignores case and spacing", func(t *testing.T) {
		found, err := repo.FindByMatchKey(ctx, pipeline.MatchKey("platform  renewal", "ACME corp"))
		require.NoError(t, err)
		assert.Equal(t, deal.ID, found.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("unknown match key", func(t *testing.T) {
		_, err := repo.FindByMatchKey(ctx, pipeline.MatchKey("Other", "Acme Corp"))
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate match key", func(t *testing.T) {
		dup := newTestDeal(t, accountID, "platform renewal", "ACME Corp")
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

func TestGormDealRepository_FindAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDealRepository(db)
	ctx := context.Background()

	deals, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, deals)

	accountID := uuid.New()
	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, repo.Create(ctx, newTestDeal(t, accountID, name, "Acme")))
	}

	deals, err = repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, deals, 3)
	for i := 1; i < len(deals); i++ {
		assert.Less(t, deals[i-1].ID.String(), deals[i].ID.String())
	}
}

func TestGormDealRepository_SaveWithLock(t *testing.T) {
	ctx := context.Background()

	t.Run("writes changes and clears fields", func(t *testing.T) {
		repo := NewGormDealRepository(setupTestDB(t))
		deal := newTestDeal(t, uuid.New(), "Expansion", "Globex")
		require.NoError(t, repo.Create(ctx, deal))

		loaded, err := repo.FindByID(ctx, deal.ID)
		require.NoError(t, err)

		next := loaded.Snapshot()
		next.Stage = pipeline.StageClosedWon
		next.Owner = nil
		next.Probability = intPtr(100)
		require.NoError(t, loaded.ApplyChanges(next))
		require.Equal(t, 2, loaded.Version)
		require.NoError(t, repo.SaveWithLock(ctx, loaded))

		saved, err := repo.FindByID(ctx, deal.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, saved.Version)
		assert.Equal(t, pipeline.StageClosedWon, saved.Stage)
		assert.Nil(t, saved.Owner)
		assert.Equal(t, 100, *saved.Probability)
		require.NotNil(t, saved.ConfirmedValue)
		assert.True(t, money("1500.50").Equal(*saved.ConfirmedValue))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		repo := NewGormDealRepository(setupTestDB(t))
		deal := newTestDeal(t, uuid.New(), "Expansion", "Globex")
		require.NoError(t, repo.Create(ctx, deal))

		first, err := repo.FindByID(ctx, deal.ID)
		require.NoError(t, err)
		second, err := repo.FindByID(ctx, deal.ID)
		require.NoError(t, err)

		s := first.Snapshot()
		s.Owner = str("Lee")
		require.NoError(t, first.ApplyChanges(s))
		require.NoError(t, repo.SaveWithLock(ctx, first))

		s = second.Snapshot()
		s.Owner = str("Kim")
		require.NoError(t, second.ApplyChanges(s))
		err = repo.SaveWithLock(ctx, second)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

		saved, err := repo.FindByID(ctx, deal.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lee", *saved.Owner)
	})

	t.Run("close lost keeps the row", func(t *testing.T) {
		repo := NewGormDealRepository(setupTestDB(t))
		deal := newTestDeal(t, uuid.New(), "Expansion", "Globex")
		require.NoError(t, repo.Create(ctx, deal))

		deal.CloseLost()
		require.NoError(t, repo.SaveWithLock(ctx, deal))

		saved, err := repo.FindByID(ctx, deal.ID)
		require.NoError(t, err)
		assert.Equal(t, pipeline.StageClosedLost, saved.Stage)
	})
}

func TestGormDealRepository_Delete(t *testing.T) {
	repo := NewGormDealRepository(setupTestDB(t))
	ctx := context.Background()

	deal := newTestDeal(t, uuid.New(), "Pilot", "Initech")
	require.NoError(t, repo.Create(ctx, deal))

	require.NoError(t, repo.Delete(ctx, deal.ID))
	_, err := repo.FindByID(ctx, deal.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = repo.Delete(ctx, deal.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormDealRepository_DatabaseErrors(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("connection reset")

	t.Run("find by id propagates errors", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormDealRepository(db)

		id := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "deals" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(id, 1).
			WillReturnError(dbErr)

		_, err := repo.FindByID(ctx, id)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("find all propagates errors", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormDealRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "deals" ORDER BY id ASC`).
			WillReturnError(dbErr)

		_, err := repo.FindAll(ctx)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("save with lock reports conflict when no row matches", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormDealRepository(db)

		deal := newTestDeal(t, uuid.New(), "Pilot", "Initech")
		deal.IncrementVersion()

		mock.ExpectExec(`UPDATE "deals" SET .* WHERE \(id = \$\d+ AND version = \$\d+\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(ctx, deal)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete propagates errors", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		repo := NewGormDealRepository(db)

		id := uuid.New()
		mock.ExpectExec(`DELETE FROM "deals" WHERE id = \$1`).
			WithArgs(id).
			WillReturnError(dbErr)

		err := repo.Delete(ctx, id)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
