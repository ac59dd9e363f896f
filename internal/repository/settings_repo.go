package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

// SettingsRepository reads the tenant configuration tables owned by the
// external settings layer: partners, delivery rules, holidays, templates,
// mailbox connections, keyword sets and channel routes. These tables map
// straight onto their domain structs, so no persistence models are needed.
type SettingsRepository interface {
	ListActivePartners(ctx context.Context, tenantID string) ([]domain.Partner, error)
	GetPartner(ctx context.Context, tenantID, partnerID string) (*domain.Partner, error)
	GetDeliveryRule(ctx context.Context, tenantID, region string) (*domain.DeliveryRule, error)
	ListHolidays(ctx context.Context, tenantID string) ([]domain.Holiday, error)
	GetTemplate(ctx context.Context, tenantID, name string) (*domain.MessageTemplate, error)
	ListActiveMailboxes(ctx context.Context) ([]domain.MailboxSettings, error)
	GetKeywordConfig(ctx context.Context, tenantID string) (*domain.KeywordConfig, error)
	GetChannelRoute(ctx context.Context, tenantID string, channel domain.Channel) (*domain.ChannelRoute, error)
}

type GormSettingsRepo struct {
	db *gorm.DB
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db}
}

func (r *GormSettingsRepo) ListActivePartners(ctx context.Context, tenantID string) ([]domain.Partner, error) {
	var partners []domain.Partner
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("name ASC").
		Find(&partners).Error
	if err != nil {
		return nil, err
	}
	return partners, nil
}

func (r *GormSettingsRepo) GetPartner(ctx context.Context, tenantID, partnerID string) (*domain.Partner, error) {
	var partner domain.Partner
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, partnerID).
		First(&partner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *GormSettingsRepo) GetDeliveryRule(ctx context.Context, tenantID, region string) (*domain.DeliveryRule, error) {
	var rule domain.DeliveryRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND region = ? AND active = ?", tenantID, region, true).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListHolidays returns the tenant's own holidays plus global ones.
func (r *GormSettingsRepo) ListHolidays(ctx context.Context, tenantID string) ([]domain.Holiday, error) {
	var holidays []domain.Holiday
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? OR tenant_id IS NULL", tenantID).
		Order("date ASC").
		Find(&holidays).Error
	if err != nil {
		return nil, err
	}
	return holidays, nil
}

func (r *GormSettingsRepo) GetTemplate(ctx context.Context, tenantID, name string) (*domain.MessageTemplate, error) {
	var tpl domain.MessageTemplate
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ? AND active = ?", tenantID, name, true).
		First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *GormSettingsRepo) ListActiveMailboxes(ctx context.Context) ([]domain.MailboxSettings, error) {
	var boxes []domain.MailboxSettings
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&boxes).Error
	if err != nil {
		return nil, err
	}
	return boxes, nil
}

func (r *GormSettingsRepo) GetKeywordConfig(ctx context.Context, tenantID string) (*domain.KeywordConfig, error) {
	var cfg domain.KeywordConfig
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *GormSettingsRepo) GetChannelRoute(ctx context.Context, tenantID string, channel domain.Channel) (*domain.ChannelRoute, error) {
	var route domain.ChannelRoute
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ?", tenantID, channel).
		First(&route).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &route, nil
}
