package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DispatchAttempt) error
	GetByJobID(ctx context.Context, tenantID, jobID string) ([]domain.DispatchAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DispatchAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormAttemptRepo) GetByJobID(ctx context.Context, tenantID, jobID string) ([]domain.DispatchAttempt, error) {
	var models []DispatchAttemptModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND job_id = ?", tenantID, jobID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.DispatchAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}
