package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
	"github.com/scout/backend/internal/infrastructure/persistence/models"
)

// GormDealRepository implements pipeline.DealRepository using GORM
type GormDealRepository struct {
	db *gorm.DB
}

// NewGormDealRepository creates a new GormDealRepository
func NewGormDealRepository(db *gorm.DB) *GormDealRepository {
	return &GormDealRepository{db: db}
}

// FindAll returns every stored deal ordered by id.
func (r *GormDealRepository) FindAll(ctx context.Context) ([]*pipeline.Deal, error) {
	var rows []models.DealModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	deals := make([]*pipeline.Deal, len(rows))
	for i := range rows {
		deals[i] = rows[i].ToDomain()
	}
	return deals, nil
}

// FindByID finds a deal by its ID
func (r *GormDealRepository) FindByID(ctx context.Context, id uuid.UUID) (*pipeline.Deal, error) {
	var model models.DealModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByMatchKey finds a deal by its normalized deal and account names
func (r *GormDealRepository) FindByMatchKey(ctx context.Context, matchKey string) (*pipeline.Deal, error) {
	var model models.DealModel
	if err := r.db.WithContext(ctx).Where("match_key = ?", matchKey).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new deal
func (r *GormDealRepository) Create(ctx context.Context, deal *pipeline.Deal) error {
	model := models.DealModelFromDomain(deal)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists.WithMessage("a deal with this name already exists on the account")
		}
		return err
	}
	return nil
}

// SaveWithLock saves a deal with optimistic locking (version check).
// Every column is written so that cleared fields become NULL.
func (r *GormDealRepository) SaveWithLock(ctx context.Context, deal *pipeline.Deal) error {
	model := models.DealModelFromDomain(deal)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", deal.ID, deal.Version-1).
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

// Delete deletes a deal
func (r *GormDealRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.DealModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ pipeline.DealRepository = (*GormDealRepository)(nil)
