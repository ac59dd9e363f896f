package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

type MessageListParams struct {
	Status   *domain.MessageStatus
	IsOrder  *bool
	Page     int
	PageSize int
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.EmailMessage) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.EmailMessage, error)
	GetByMessageID(ctx context.Context, tenantID, messageID string) (*domain.EmailMessage, error)
	List(ctx context.Context, tenantID string, params MessageListParams) ([]domain.EmailMessage, int64, error)
	SetOutcome(ctx context.Context, tenantID, id string, isOrder bool, companyID *string, status domain.MessageStatus) error
	UpdateStatus(ctx context.Context, tenantID, id string, status domain.MessageStatus) error
	GetAttachment(ctx context.Context, tenantID, attachmentID string) (*domain.EmailAttachment, error)
}

type GormMessageRepo struct {
	db *gorm.DB
}

func NewGormMessageRepo(db *gorm.DB) *GormMessageRepo {
	return &GormMessageRepo{db: db}
}

func (r *GormMessageRepo) Create(ctx context.Context, msg *domain.EmailMessage) error {
	model := messageModelFromDomain(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	if msg != nil {
		*msg = *messageModelToDomain(model)
	}
	return nil
}

func (r *GormMessageRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.EmailMessage, error) {
	var model EmailMessageModel
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return messageModelToDomain(&model), nil
}

func (r *GormMessageRepo) GetByMessageID(ctx context.Context, tenantID, messageID string) (*domain.EmailMessage, error) {
	var model EmailMessageModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND message_id = ?", tenantID, messageID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return messageModelToDomain(&model), nil
}

func (r *GormMessageRepo) List(ctx context.Context, tenantID string, params MessageListParams) ([]domain.EmailMessage, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&EmailMessageModel{}).
		Where("tenant_id = ?", tenantID)

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.IsOrder != nil {
		query = query.Where("is_order = ?", *params.IsOrder)
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

	var models []EmailMessageModel
	err := query.
		Order("received_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	messages := make([]domain.EmailMessage, 0, len(models))
	for i := range models {
		messages = append(messages, *messageModelToDomain(&models[i]))
	}

	return messages, total, nil
}

func (r *GormMessageRepo) SetOutcome(ctx context.Context, tenantID, id string, isOrder bool, companyID *string, status domain.MessageStatus) error {
	result := r.db.WithContext(ctx).
		Model(&EmailMessageModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{
			"is_order":   isOrder,
			"company_id": companyID,
			"status":     status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormMessageRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.MessageStatus) error {
	result := r.db.WithContext(ctx).
		Model(&EmailMessageModel{}).
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

func (r *GormMessageRepo) GetAttachment(ctx context.Context, tenantID, attachmentID string) (*domain.EmailAttachment, error) {
	var model EmailAttachmentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, attachmentID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.EmailAttachment{
		ID:           model.ID,
		TenantID:     model.TenantID,
		MessageRowID: model.MessageRowID,
		Filename:     model.Filename,
		ContentType:  model.ContentType,
		SizeBytes:    model.SizeBytes,
		MailboxUID:   model.MailboxUID,
		CreatedAt:    model.CreatedAt,
	}, nil
}
