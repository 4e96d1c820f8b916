package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
	"github.com/scout/backend/internal/infrastructure/persistence/models"
)

// GormAccountRepository implements pipeline.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByName finds an account by name, ignoring case and extra whitespace
func (r *GormAccountRepository) FindByName(ctx context.Context, name string) (*pipeline.Account, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).
		Where("name_key = ?", pipeline.NormalizeName(name)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new account
func (r *GormAccountRepository) Create(ctx context.Context, account *pipeline.Account) error {
	model := models.AccountModelFromDomain(account)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists.WithMessage("an account with this name already exists")
		}
		return err
	}
	return nil
}

// SaveWithLock saves an account with optimistic locking (version check)
func (r *GormAccountRepository) SaveWithLock(ctx context.Context, account *pipeline.Account) error {
	model := models.AccountModelFromDomain(account)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", account.ID, account.Version-1).
		Select("*").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

var _ pipeline.AccountRepository = (*GormAccountRepository)(nil)
