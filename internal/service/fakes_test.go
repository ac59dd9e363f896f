package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/provider"
	"github.com/kursadbilgin/order-relay/internal/queue"
	"github.com/kursadbilgin/order-relay/internal/repository"
)

type fakeJobRepo struct {
	createFn           func(ctx context.Context, j *domain.NotificationJob) error
	createBatchFn      func(ctx context.Context, jobs []*domain.NotificationJob) error
	getByIDFn          func(ctx context.Context, tenantID, id string) (*domain.NotificationJob, error)
	getByDedupKeyFn    func(ctx context.Context, tenantID, dedupKey string) (*domain.NotificationJob, error)
	listFn             func(ctx context.Context, tenantID string, params repository.ListParams) ([]domain.NotificationJob, int64, error)
	updateStatusFn     func(ctx context.Context, tenantID, id string, status domain.JobStatus) error
	scheduleRetryFn    func(ctx context.Context, tenantID, id string, nextRetryAt time.Time) error
	markSentFn         func(ctx context.Context, tenantID, id, providerName, providerMsgID string, sentAt time.Time) error
	markFailedFn       func(ctx context.Context, tenantID, id, reason string) error
	markFailedDelivFn  func(ctx context.Context, tenantID, id, reason string) error
	cancelFn           func(ctx context.Context, tenantID, id string) error
	lockForSendingFn   func(ctx context.Context, tenantID, id string) (*domain.NotificationJob, error)
	getDueForRetryFn   func(ctx context.Context, limit int) ([]domain.NotificationJob, error)
	getDueScheduledFn  func(ctx context.Context, limit int) ([]domain.NotificationJob, error)
	clearNextRetryFn   func(ctx context.Context, tenantID, id string) error
	clearScheduledFn   func(ctx context.Context, tenantID, id string) error
	countByStatusFn    func(ctx context.Context, tenantID string) ([]repository.StatusCount, error)
	getBatchSummaryFn  func(ctx context.Context, tenantID, batchID string) ([]repository.StatusCount, error)
}

func (f *fakeJobRepo) Create(ctx context.Context, j *domain.NotificationJob) error {
	if f.createFn != nil {
		return f.createFn(ctx, j)
	}
	return nil
}

func (f *fakeJobRepo) CreateBatch(ctx context.Context, jobs []*domain.NotificationJob) error {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, jobs)
	}
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.NotificationJob, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, tenantID, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) GetByDedupKey(ctx context.Context, tenantID, dedupKey string) (*domain.NotificationJob, error) {
	if f.getByDedupKeyFn != nil {
		return f.getByDedupKeyFn(ctx, tenantID, dedupKey)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) List(ctx context.Context, tenantID string, params repository.ListParams) ([]domain.NotificationJob, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, tenantID, params)
	}
	return nil, 0, nil
}

func (f *fakeJobRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.JobStatus) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, tenantID, id, status)
	}
	return nil
}

func (f *fakeJobRepo) ScheduleRetry(ctx context.Context, tenantID, id string, nextRetryAt time.Time) error {
	if f.scheduleRetryFn != nil {
		return f.scheduleRetryFn(ctx, tenantID, id, nextRetryAt)
	}
	return nil
}

func (f *fakeJobRepo) MarkSent(ctx context.Context, tenantID, id, providerName, providerMsgID string, sentAt time.Time) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, tenantID, id, providerName, providerMsgID, sentAt)
	}
	return nil
}

func (f *fakeJobRepo) MarkFailed(ctx context.Context, tenantID, id, reason string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, tenantID, id, reason)
	}
	return nil
}

func (f *fakeJobRepo) MarkFailedDelivery(ctx context.Context, tenantID, id, reason string) error {
	if f.markFailedDelivFn != nil {
		return f.markFailedDelivFn(ctx, tenantID, id, reason)
	}
	return nil
}

func (f *fakeJobRepo) Cancel(ctx context.Context, tenantID, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, tenantID, id)
	}
	return nil
}

func (f *fakeJobRepo) LockForSending(ctx context.Context, tenantID, id string) (*domain.NotificationJob, error) {
	if f.lockForSendingFn != nil {
		return f.lockForSendingFn(ctx, tenantID, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.NotificationJob, error) {
	if f.getDueForRetryFn != nil {
		return f.getDueForRetryFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeJobRepo) GetDueScheduled(ctx context.Context, limit int) ([]domain.NotificationJob, error) {
	if f.getDueScheduledFn != nil {
		return f.getDueScheduledFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeJobRepo) ClearNextRetryAt(ctx context.Context, tenantID, id string) error {
	if f.clearNextRetryFn != nil {
		return f.clearNextRetryFn(ctx, tenantID, id)
	}
	return nil
}

func (f *fakeJobRepo) ClearScheduledAt(ctx context.Context, tenantID, id string) error {
	if f.clearScheduledFn != nil {
		return f.clearScheduledFn(ctx, tenantID, id)
	}
	return nil
}

func (f *fakeJobRepo) CountByStatus(ctx context.Context, tenantID string) ([]repository.StatusCount, error) {
	if f.countByStatusFn != nil {
		return f.countByStatusFn(ctx, tenantID)
	}
	return nil, nil
}

func (f *fakeJobRepo) GetBatchSummary(ctx context.Context, tenantID, batchID string) ([]repository.StatusCount, error) {
	if f.getBatchSummaryFn != nil {
		return f.getBatchSummaryFn(ctx, tenantID, batchID)
	}
	return nil, nil
}

type fakeAttemptRepo struct {
	createFn     func(ctx context.Context, a *domain.DispatchAttempt) error
	getByJobIDFn func(ctx context.Context, tenantID, jobID string) ([]domain.DispatchAttempt, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DispatchAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByJobID(ctx context.Context, tenantID, jobID string) ([]domain.DispatchAttempt, error) {
	if f.getByJobIDFn != nil {
		return f.getByJobIDFn(ctx, tenantID, jobID)
	}
	return nil, nil
}

type fakeBatchRepo struct {
	createFn       func(ctx context.Context, b *domain.Batch) error
	getByIDFn      func(ctx context.Context, tenantID, id string) (*domain.Batch, error)
	updateCountsFn func(ctx context.Context, tenantID, id string, success, failure int, status domain.BatchStatus) error
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	if f.createFn != nil {
		return f.createFn(ctx, b)
	}
	return nil
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Batch, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, tenantID, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBatchRepo) UpdateCounts(ctx context.Context, tenantID, id string, success, failure int, status domain.BatchStatus) error {
	if f.updateCountsFn != nil {
		return f.updateCountsFn(ctx, tenantID, id, success, failure, status)
	}
	return nil
}

type fakeSettingsRepo struct {
	listActivePartnersFn  func(ctx context.Context, tenantID string) ([]domain.Partner, error)
	getPartnerFn          func(ctx context.Context, tenantID, partnerID string) (*domain.Partner, error)
	getDeliveryRuleFn     func(ctx context.Context, tenantID, region string) (*domain.DeliveryRule, error)
	listHolidaysFn        func(ctx context.Context, tenantID string) ([]domain.Holiday, error)
	getTemplateFn         func(ctx context.Context, tenantID, name string) (*domain.MessageTemplate, error)
	listActiveMailboxesFn func(ctx context.Context) ([]domain.MailboxSettings, error)
	getKeywordConfigFn    func(ctx context.Context, tenantID string) (*domain.KeywordConfig, error)
	getChannelRouteFn     func(ctx context.Context, tenantID string, channel domain.Channel) (*domain.ChannelRoute, error)
}

func (f *fakeSettingsRepo) ListActivePartners(ctx context.Context, tenantID string) ([]domain.Partner, error) {
	if f.listActivePartnersFn != nil {
		return f.listActivePartnersFn(ctx, tenantID)
	}
	return nil, nil
}

func (f *fakeSettingsRepo) GetPartner(ctx context.Context, tenantID, partnerID string) (*domain.Partner, error) {
	if f.getPartnerFn != nil {
		return f.getPartnerFn(ctx, tenantID, partnerID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSettingsRepo) GetDeliveryRule(ctx context.Context, tenantID, region string) (*domain.DeliveryRule, error) {
	if f.getDeliveryRuleFn != nil {
		return f.getDeliveryRuleFn(ctx, tenantID, region)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSettingsRepo) ListHolidays(ctx context.Context, tenantID string) ([]domain.Holiday, error) {
	if f.listHolidaysFn != nil {
		return f.listHolidaysFn(ctx, tenantID)
	}
	return nil, nil
}

func (f *fakeSettingsRepo) GetTemplate(ctx context.Context, tenantID, name string) (*domain.MessageTemplate, error) {
	if f.getTemplateFn != nil {
		return f.getTemplateFn(ctx, tenantID, name)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSettingsRepo) ListActiveMailboxes(ctx context.Context) ([]domain.MailboxSettings, error) {
	if f.listActiveMailboxesFn != nil {
		return f.listActiveMailboxesFn(ctx)
	}
	return nil, nil
}

func (f *fakeSettingsRepo) GetKeywordConfig(ctx context.Context, tenantID string) (*domain.KeywordConfig, error) {
	if f.getKeywordConfigFn != nil {
		return f.getKeywordConfigFn(ctx, tenantID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSettingsRepo) GetChannelRoute(ctx context.Context, tenantID string, channel domain.Channel) (*domain.ChannelRoute, error) {
	if f.getChannelRouteFn != nil {
		return f.getChannelRouteFn(ctx, tenantID, channel)
	}
	return nil, domain.ErrNotFound
}

type fakeMessageRepo struct {
	createFn         func(ctx context.Context, msg *domain.EmailMessage) error
	getByIDFn        func(ctx context.Context, tenantID, id string) (*domain.EmailMessage, error)
	getByMessageIDFn func(ctx context.Context, tenantID, messageID string) (*domain.EmailMessage, error)
	listFn           func(ctx context.Context, tenantID string, params repository.MessageListParams) ([]domain.EmailMessage, int64, error)
	setOutcomeFn     func(ctx context.Context, tenantID, id string, isOrder bool, companyID *string, status domain.MessageStatus) error
	updateStatusFn   func(ctx context.Context, tenantID, id string, status domain.MessageStatus) error
	getAttachmentFn  func(ctx context.Context, tenantID, attachmentID string) (*domain.EmailAttachment, error)
}

func (f *fakeMessageRepo) Create(ctx context.Context, msg *domain.EmailMessage) error {
	if f.createFn != nil {
		return f.createFn(ctx, msg)
	}
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.EmailMessage, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, tenantID, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeMessageRepo) GetByMessageID(ctx context.Context, tenantID, messageID string) (*domain.EmailMessage, error) {
	if f.getByMessageIDFn != nil {
		return f.getByMessageIDFn(ctx, tenantID, messageID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeMessageRepo) List(ctx context.Context, tenantID string, params repository.MessageListParams) ([]domain.EmailMessage, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, tenantID, params)
	}
	return nil, 0, nil
}

func (f *fakeMessageRepo) SetOutcome(ctx context.Context, tenantID, id string, isOrder bool, companyID *string, status domain.MessageStatus) error {
	if f.setOutcomeFn != nil {
		return f.setOutcomeFn(ctx, tenantID, id, isOrder, companyID, status)
	}
	return nil
}

func (f *fakeMessageRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.MessageStatus) error {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, tenantID, id, status)
	}
	return nil
}

func (f *fakeMessageRepo) GetAttachment(ctx context.Context, tenantID, attachmentID string) (*domain.EmailAttachment, error) {
	if f.getAttachmentFn != nil {
		return f.getAttachmentFn(ctx, tenantID, attachmentID)
	}
	return nil, domain.ErrNotFound
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.JobMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.JobMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel string) (bool, error)
	waitFn  func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, channel)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeSendProvider struct {
	name    string
	channel domain.Channel
	sendFn  func(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error)
}

func (f *fakeSendProvider) Name() string                    { return f.name }
func (f *fakeSendProvider) Channel() domain.Channel         { return f.channel }
func (f *fakeSendProvider) Probe(ctx context.Context) error { return nil }

func (f *fakeSendProvider) Send(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.ProviderResponse{StatusCode: 200}, nil
}
