package persistence

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/infrastructure/config"
	"github.com/scout/backend/internal/infrastructure/persistence/models"
)

// setupTestDB opens an in-memory SQLite database with the pipeline tables.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(sqlite.Open(":memory:"), &config.DatabaseConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.DB.AutoMigrate(&models.AccountModel{}, &models.DealModel{}))
	return db.DB
}

// newMockGormDB wires GORM to sqlmock with the postgres dialector.
func newMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func money(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func str(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func newTestDeal(t *testing.T, accountID uuid.UUID, name, account string) *pipeline.Deal {
	t.Helper()
	closeDate := pipeline.NewDate(2026, 3, 31)
	dealType := pipeline.DealTypeRenewal
	d, err := pipeline.NewDeal(accountID, pipeline.DealSnapshot{
		DealName:      name,
		AccountName:   account,
		Stage:         pipeline.StageProposal,
		Value:         money("1500.50"),
		Owner:         str("Dana"),
		Quarter:       str("Q1 2026"),
		DealType:      &dealType,
		CloseDate:     &closeDate,
		Vertical:      str("Retail"),
		Probability:   intPtr(40),
		WeightedValue: money("600.20"),
	})
	require.NoError(t, err)
	d.ClearDomainEvents()
	return d
}
