package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

type ListParams struct {
	Status   *domain.JobStatus
	Channel  *domain.Channel
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type StatusCount struct {
	Status domain.JobStatus `gorm:"column:status"`
	Count  int64            `gorm:"column:count"`
}

type JobRepository interface {
	Create(ctx context.Context, j *domain.NotificationJob) error
	CreateBatch(ctx context.Context, jobs []*domain.NotificationJob) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.NotificationJob, error)
	GetByDedupKey(ctx context.Context, tenantID, dedupKey string) (*domain.NotificationJob, error)
	List(ctx context.Context, tenantID string, params ListParams) ([]domain.NotificationJob, int64, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status domain.JobStatus) error
	ScheduleRetry(ctx context.Context, tenantID, id string, nextRetryAt time.Time) error
	MarkSent(ctx context.Context, tenantID, id, providerName, providerMsgID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, tenantID, id, reason string) error
	MarkFailedDelivery(ctx context.Context, tenantID, id, reason string) error
	Cancel(ctx context.Context, tenantID, id string) error
	LockForSending(ctx context.Context, tenantID, id string) (*domain.NotificationJob, error)
	GetDueForRetry(ctx context.Context, limit int) ([]domain.NotificationJob, error)
	GetDueScheduled(ctx context.Context, limit int) ([]domain.NotificationJob, error)
	ClearNextRetryAt(ctx context.Context, tenantID, id string) error
	ClearScheduledAt(ctx context.Context, tenantID, id string) error
	CountByStatus(ctx context.Context, tenantID string) ([]StatusCount, error)
	GetBatchSummary(ctx context.Context, tenantID, batchID string) ([]StatusCount, error)
}

type GormJobRepo struct {
	db *gorm.DB
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

func (r *GormJobRepo) Create(ctx context.Context, j *domain.NotificationJob) error {
	model := jobModelFromDomain(j)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	if j != nil {
		*j = *jobModelToDomain(model)
	}
	return nil
}

func (r *GormJobRepo) CreateBatch(ctx context.Context, jobs []*domain.NotificationJob) error {
	models := make([]JobModel, 0, len(jobs))
	modelIndexes := make([]int, 0, len(jobs))
	for i, j := range jobs {
		model := jobModelFromDomain(j)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(jobs) && jobs[idx] != nil {
			*jobs[idx] = *jobModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormJobRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.NotificationJob, error) {
	var model JobModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormJobRepo) GetByDedupKey(ctx context.Context, tenantID, dedupKey string) (*domain.NotificationJob, error) {
	var model JobModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND dedup_key = ?", tenantID, dedupKey).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormJobRepo) List(ctx context.Context, tenantID string, params ListParams) ([]domain.NotificationJob, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ?", tenantID)

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []JobModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]domain.NotificationJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, total, nil
}

func (r *GormJobRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.JobStatus) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormJobRepo) ScheduleRetry(ctx context.Context, tenantID, id string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"next_retry_at": nextRetryAt,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormJobRepo) MarkSent(ctx context.Context, tenantID, id, providerName, providerMsgID string, sentAt time.Time) error {
	updates := map[string]any{
		"status":        domain.StatusSent,
		"provider_name": providerName,
		"sent_at":       sentAt,
	}
	if providerMsgID != "" {
		updates["provider_msg_id"] = providerMsgID
	}

	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormJobRepo) MarkFailed(ctx context.Context, tenantID, id, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailedDelivery ends a job after a failed delivery cycle. Unlike
// MarkFailed it counts the cycle, so an exhausted job ends with
// retry_count equal to its max_retries.
func (r *GormJobRepo) MarkFailedDelivery(ctx context.Context, tenantID, id, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": reason,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormJobRepo) Cancel(ctx context.Context, tenantID, id string) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, domain.StatusPending).
		Update("status", domain.StatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormJobRepo) LockForSending(ctx context.Context, tenantID, id string) (*domain.NotificationJob, error) {
	// Single conditional update so two workers racing on the same job can
	// never both claim it. Exactly one statement flips PENDING to SENDING.
	claim := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, domain.StatusPending).
		Update("status", domain.StatusSending)
	if claim.Error != nil {
		return nil, claim.Error
	}

	if claim.RowsAffected == 0 {
		var model JobModel
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND id = ?", tenantID, id).
			First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		// Already claimed or in a terminal state.
		return nil, nil
	}

	var model JobModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormJobRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.NotificationJob, error) {
	var models []JobModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.StatusPending, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.NotificationJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, nil
}

func (r *GormJobRepo) GetDueScheduled(ctx context.Context, limit int) ([]domain.NotificationJob, error) {
	var models []JobModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ? AND next_retry_at IS NULL", domain.StatusPending, time.Now()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.NotificationJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, nil
}

func (r *GormJobRepo) ClearNextRetryAt(ctx context.Context, tenantID, id string) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("next_retry_at", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormJobRepo) ClearScheduledAt(ctx context.Context, tenantID, id string) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("scheduled_at", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormJobRepo) CountByStatus(ctx context.Context, tenantID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Select("status, COUNT(*) as count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func (r *GormJobRepo) GetBatchSummary(ctx context.Context, tenantID, batchID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Select("status, COUNT(*) as count").
		Where("tenant_id = ? AND batch_id = ?", tenantID, batchID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
