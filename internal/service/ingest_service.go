package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kursadbilgin/order-relay/internal/deliverydate"
	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/mailbox"
	"github.com/kursadbilgin/order-relay/internal/match"
	"github.com/kursadbilgin/order-relay/internal/observability"
	"github.com/kursadbilgin/order-relay/internal/repository"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

// OrderConfirmationTemplate is the template every matched order renders.
const OrderConfirmationTemplate = "order_confirmation"

// settingsCache is the hot-path cache in front of the settings tables.
// Implemented by the Redis settings cache; any error is treated as a miss.
type settingsCache interface {
	GetPartners(ctx context.Context, tenantID string) ([]domain.Partner, error)
	SetPartners(ctx context.Context, tenantID string, partners []domain.Partner) error
	GetKeywordConfig(ctx context.Context, tenantID string) (*domain.KeywordConfig, error)
	SetKeywordConfig(ctx context.Context, tenantID string, cfg *domain.KeywordConfig) error
	GetDeliveryRule(ctx context.Context, tenantID, region string) (*domain.DeliveryRule, error)
	SetDeliveryRule(ctx context.Context, tenantID string, rule *domain.DeliveryRule) error
}

// IngestService turns parsed inbound mail into stored messages, order
// matches and enqueued confirmation notifications. HandleMail is the
// mailbox monitor's handler: returning an error leaves the message unseen
// for the next sweep, returning nil lets the monitor mark it seen.
type IngestService struct {
	messages   repository.MessageRepository
	settings   repository.SettingsRepository
	cache      settingsCache
	matcher    *match.Matcher
	calculator *deliverydate.Calculator
	dispatch   *DispatchService
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewIngestService(
	messages repository.MessageRepository,
	settings repository.SettingsRepository,
	cache settingsCache,
	dispatch *DispatchService,
	logger *zap.Logger,
) (*IngestService, error) {
	if messages == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if dispatch == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestService{
		messages:   messages,
		settings:   settings,
		cache:      cache,
		matcher:    match.NewMatcher(),
		calculator: deliverydate.NewCalculator(),
		dispatch:   dispatch,
		logger:     logger,
	}, nil
}

func (s *IngestService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// HandleMail processes one inbound message end to end. Duplicate deliveries
// of the same Message-ID resolve to the stored row and succeed without a
// second notification. Configuration gaps fail closed: the message is
// stored as FAILED and no delivery date is promised.
func (s *IngestService) HandleMail(ctx context.Context, tn tenant.Tenant, in *mailbox.InboundMail) error {
	if in == nil {
		return fmt.Errorf("%w: inbound mail is required", domain.ErrValidation)
	}

	if existing, err := s.messages.GetByMessageID(ctx, tn.ID, in.MessageID); err == nil {
		s.logger.Debug("message already ingested",
			zap.String("tenantId", tn.ID),
			zap.String("messageId", in.MessageID),
			zap.String("status", existing.Status.String()),
		)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to check message idempotency: %w", err)
	}

	msg := s.buildMessage(tn, in)
	if err := msg.Validate(); err != nil {
		// Unparseable sender or missing identifiers: store nothing, mark
		// seen, move on.
		s.logger.Warn("dropping invalid inbound message",
			zap.String("tenantId", tn.ID),
			zap.String("messageId", in.MessageID),
			zap.Error(err),
		)
		return nil
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// A concurrent sweep won the insert race.
			return nil
		}
		return fmt.Errorf("failed to store message: %w", err)
	}
	if msg.DecodeDegraded {
		s.metrics.IncDecodeDegraded(tn.ID)
	}

	partners, err := s.loadPartners(ctx, tn)
	if err != nil {
		return fmt.Errorf("failed to load partners: %w", err)
	}
	keywords, err := s.loadKeywordConfig(ctx, tn)
	if err != nil {
		return fmt.Errorf("failed to load keyword config: %w", err)
	}

	outcome := s.matcher.Match(msg, partners, keywords)
	if !outcome.IsOrder {
		status := domain.MessageIgnored
		if outcome.Partner != nil {
			// Known sender, no keyword hit: processed but not an order.
			status = domain.MessageProcessed
		}
		if err := s.setOutcome(ctx, tn, msg, outcome, status); err != nil {
			return err
		}
		s.metrics.IncMailMessage(tn.ID, status.String())
		return nil
	}

	s.metrics.IncOrderMatched(tn.ID)

	if err := s.confirmOrder(ctx, tn, msg, outcome.Partner); err != nil {
		s.logger.Error("order confirmation failed",
			zap.String("tenantId", tn.ID),
			zap.String("messageId", msg.MessageID),
			zap.String("partnerId", outcome.Partner.ID),
			zap.Error(err),
		)
		if markErr := s.setOutcome(ctx, tn, msg, outcome, domain.MessageFailed); markErr != nil {
			return markErr
		}
		s.metrics.IncMailMessage(tn.ID, domain.MessageFailed.String())
		// The message stays seen: re-fetching cannot fix a configuration
		// gap, and operators see the FAILED row.
		return nil
	}

	if err := s.setOutcome(ctx, tn, msg, outcome, domain.MessageMatched); err != nil {
		return err
	}
	s.metrics.IncMailMessage(tn.ID, domain.MessageMatched.String())
	return nil
}

// TriggerOrder runs the confirmation flow for a partner without an inbound
// message, as if an order arrived now. Used for manual re-sends.
func (s *IngestService) TriggerOrder(ctx context.Context, tn tenant.Tenant, partnerID string, orderedAt time.Time) (*domain.NotificationJob, deliverydate.Result, error) {
	partner, err := s.settings.GetPartner(ctx, tn.ID, partnerID)
	if err != nil {
		return nil, deliverydate.Result{}, err
	}
	if !partner.Active {
		return nil, deliverydate.Result{}, fmt.Errorf("%w: partner %s is inactive", domain.ErrValidation, partnerID)
	}

	promise, err := s.promiseFor(ctx, tn, partner, orderedAt)
	if err != nil {
		return nil, deliverydate.Result{}, err
	}

	job, err := s.enqueueConfirmation(ctx, tn, partner, promise, "manual:"+uuid.NewString(), nil)
	if err != nil {
		return nil, deliverydate.Result{}, err
	}
	return job, promise, nil
}

// ListMessages pages through stored inbound messages for operator review.
func (s *IngestService) ListMessages(ctx context.Context, tn tenant.Tenant, params repository.MessageListParams) ([]domain.EmailMessage, int64, error) {
	return s.messages.List(ctx, tn.ID, params)
}

func (s *IngestService) GetMessage(ctx context.Context, tn tenant.Tenant, id string) (*domain.EmailMessage, error) {
	return s.messages.GetByID(ctx, tn.ID, id)
}

func (s *IngestService) confirmOrder(ctx context.Context, tn tenant.Tenant, msg *domain.EmailMessage, partner *domain.Partner) error {
	promise, err := s.promiseFor(ctx, tn, partner, msg.ReceivedAt)
	if err != nil {
		return err
	}

	_, err = s.enqueueConfirmation(ctx, tn, partner, promise, msg.MessageID, &msg.MessageID)
	return err
}

func (s *IngestService) promiseFor(ctx context.Context, tn tenant.Tenant, partner *domain.Partner, orderedAt time.Time) (deliverydate.Result, error) {
	rule, err := s.loadDeliveryRule(ctx, tn, partner.Region)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return deliverydate.Result{}, fmt.Errorf("%w: no delivery rule for region %q", domain.ErrConfiguration, partner.Region)
		}
		return deliverydate.Result{}, err
	}

	holidays, err := s.settings.ListHolidays(ctx, tn.ID)
	if err != nil {
		return deliverydate.Result{}, fmt.Errorf("failed to load holidays: %w", err)
	}

	return s.calculator.Promise(tn, orderedAt, rule, holidays)
}

func (s *IngestService) enqueueConfirmation(ctx context.Context, tn tenant.Tenant, partner *domain.Partner, promise deliverydate.Result, trigger string, messageID *string) (*domain.NotificationJob, error) {
	if partner.ContactPhone == nil || *partner.ContactPhone == "" {
		return nil, fmt.Errorf("%w: partner %s has no contact phone", domain.ErrConfiguration, partner.ID)
	}

	return s.dispatch.Enqueue(ctx, tn, EnqueueRequest{
		Channel:      domain.ChannelSMS,
		Recipient:    *partner.ContactPhone,
		TemplateName: OrderConfirmationTemplate,
		Variables: map[string]string{
			"partner_name":   partner.Name,
			"delivery_date":  promise.Date.Format("2006-01-02"),
			"delivery_label": promise.Label.String(),
		},
		Trigger:   trigger,
		MessageID: messageID,
	})
}

func (s *IngestService) setOutcome(ctx context.Context, tn tenant.Tenant, msg *domain.EmailMessage, outcome match.Outcome, status domain.MessageStatus) error {
	var companyID *string
	if outcome.Partner != nil {
		companyID = &outcome.Partner.ID
	}
	if err := s.messages.SetOutcome(ctx, tn.ID, msg.ID, outcome.IsOrder, companyID, status); err != nil {
		return fmt.Errorf("failed to record message outcome: %w", err)
	}
	msg.IsOrder = outcome.IsOrder
	msg.CompanyID = companyID
	msg.Status = status
	return nil
}

func (s *IngestService) buildMessage(tn tenant.Tenant, in *mailbox.InboundMail) *domain.EmailMessage {
	rowID := uuid.NewString()

	attachments := make([]domain.EmailAttachment, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		attachments = append(attachments, domain.EmailAttachment{
			ID:           uuid.NewString(),
			TenantID:     tn.ID,
			MessageRowID: rowID,
			Filename:     a.Filename,
			ContentType:  a.ContentType,
			SizeBytes:    a.SizeBytes,
			MailboxUID:   in.UID,
		})
	}

	return &domain.EmailMessage{
		ID:             rowID,
		TenantID:       tn.ID,
		UID:            in.UID,
		MessageID:      in.MessageID,
		FromAddress:    in.FromAddress,
		FromName:       in.FromName,
		Subject:        in.Subject,
		TextBody:       in.TextBody,
		HTMLBody:       in.HTMLBody,
		ReceivedAt:     in.ReceivedAt,
		Status:         domain.MessageReceived,
		DecodeDegraded: in.DecodeDegraded,
		Attachments:    attachments,
	}
}

func (s *IngestService) loadPartners(ctx context.Context, tn tenant.Tenant) ([]domain.Partner, error) {
	if s.cache != nil {
		if partners, err := s.cache.GetPartners(ctx, tn.ID); err == nil {
			return partners, nil
		}
	}

	partners, err := s.settings.ListActivePartners(ctx, tn.ID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetPartners(ctx, tn.ID, partners); err != nil {
			s.logger.Debug("failed to cache partners", zap.String("tenantId", tn.ID), zap.Error(err))
		}
	}
	return partners, nil
}

func (s *IngestService) loadKeywordConfig(ctx context.Context, tn tenant.Tenant) (*domain.KeywordConfig, error) {
	if s.cache != nil {
		if cfg, err := s.cache.GetKeywordConfig(ctx, tn.ID); err == nil {
			return cfg, nil
		}
	}

	cfg, err := s.settings.GetKeywordConfig(ctx, tn.ID)
	if errors.Is(err, domain.ErrNotFound) {
		// No keyword row means keyword filtering is off for the tenant.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetKeywordConfig(ctx, tn.ID, cfg); err != nil {
			s.logger.Debug("failed to cache keyword config", zap.String("tenantId", tn.ID), zap.Error(err))
		}
	}
	return cfg, nil
}

func (s *IngestService) loadDeliveryRule(ctx context.Context, tn tenant.Tenant, region string) (*domain.DeliveryRule, error) {
	if s.cache != nil {
		if rule, err := s.cache.GetDeliveryRule(ctx, tn.ID, region); err == nil {
			return rule, nil
		}
	}

	rule, err := s.settings.GetDeliveryRule(ctx, tn.ID, region)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetDeliveryRule(ctx, tn.ID, rule); err != nil {
			s.logger.Debug("failed to cache delivery rule", zap.String("tenantId", tn.ID), zap.Error(err))
		}
	}
	return rule, nil
}
