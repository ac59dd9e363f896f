package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Batch, error)
	UpdateCounts(ctx context.Context, tenantID, id string, success, failure int, status domain.BatchStatus) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) UpdateCounts(ctx context.Context, tenantID, id string, success, failure int, status domain.BatchStatus) error {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"success_count": success,
			"failure_count": failure,
			"status":        status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
