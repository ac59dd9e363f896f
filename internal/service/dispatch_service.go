package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/queue"
	"github.com/kursadbilgin/order-relay/internal/repository"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

const maxBatchSize = 1000

// EnqueueRequest describes one notification to enqueue. Trigger identifies
// the business event; together with tenant, recipient and channel it forms
// the dedup key. An empty trigger gets a fresh UUID, which opts the request
// out of deduplication.
type EnqueueRequest struct {
	Channel      domain.Channel
	Recipient    string
	TemplateName string
	Variables    map[string]string
	Trigger      string
	MessageID    *string
	ScheduledAt  *time.Time
	MaxRetries   int
}

type BatchSummary struct {
	BatchID    string
	TotalCount int
	Status     domain.BatchStatus
	Counts     []StatusCount
}

type StatusCount struct {
	Status domain.JobStatus
	Count  int64
}

// DispatchService validates, persists and enqueues notification jobs.
type DispatchService struct {
	jobs      repository.JobRepository
	batches   repository.BatchRepository
	attempts  repository.AttemptRepository
	settings  repository.SettingsRepository
	publisher queue.Publisher
	logger    *zap.Logger
}

func NewDispatchService(
	jobs repository.JobRepository,
	batches repository.BatchRepository,
	attempts repository.AttemptRepository,
	settings repository.SettingsRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*DispatchService, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		jobs:      jobs,
		batches:   batches,
		attempts:  attempts,
		settings:  settings,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Enqueue renders the template, persists the job and publishes it to the
// channel queue. A dedup-key collision resolves to the existing job instead
// of creating a duplicate.
func (s *DispatchService) Enqueue(ctx context.Context, tn tenant.Tenant, req EnqueueRequest) (*domain.NotificationJob, error) {
	job, err := s.buildJob(ctx, tn, req, nil)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			existing, getErr := s.jobs.GetByDedupKey(ctx, tn.ID, job.DedupKey)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load existing job after dedup conflict: %w", getErr)
			}
			s.logger.Info("dedup conflict resolved to existing job",
				zap.String("tenantId", tn.ID),
				zap.String("existingId", existing.ID),
			)
			return existing, nil
		}
		return nil, err
	}

	if !shouldEnqueueImmediately(job.ScheduledAt, time.Now().UTC()) {
		return job, nil
	}

	if err := s.publish(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueBatch creates one batch of up to maxBatchSize jobs. Individual
// failures do not abort the batch; the summary carries the counts.
func (s *DispatchService) EnqueueBatch(ctx context.Context, tn tenant.Tenant, requests []EnqueueRequest) (*domain.Batch, []domain.NotificationJob, error) {
	if len(requests) == 0 {
		return nil, nil, fmt.Errorf("%w: batch must include at least one request", domain.ErrValidation)
	}
	if len(requests) > maxBatchSize {
		return nil, nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, maxBatchSize)
	}

	batch := &domain.Batch{
		ID:         uuid.NewString(),
		TenantID:   tn.ID,
		TotalCount: len(requests),
		Status:     domain.BatchStatusProcessing,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, nil, err
	}

	jobs := make([]domain.NotificationJob, 0, len(requests))
	failed := 0
	for i := range requests {
		job, err := s.enqueueBatchItem(ctx, tn, requests[i], batch.ID)
		if err != nil {
			failed++
			s.logger.Error("batch item failed",
				zap.String("tenantId", tn.ID),
				zap.String("batchId", batch.ID),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		jobs = append(jobs, *job)
	}

	batch.SuccessCount = len(requests) - failed
	batch.FailureCount = failed
	batch.Status = domain.BatchStatusCompleted
	if failed > 0 {
		batch.Status = domain.BatchStatusPartialFailure
	}
	if err := s.batches.UpdateCounts(ctx, tn.ID, batch.ID, batch.SuccessCount, batch.FailureCount, batch.Status); err != nil {
		return nil, nil, err
	}

	if failed > 0 {
		s.logger.Warn("batch completed with partial failure",
			zap.String("tenantId", tn.ID),
			zap.String("batchId", batch.ID),
			zap.Int("failed", failed),
			zap.Int("total", len(requests)),
		)
	}

	return batch, jobs, nil
}

func (s *DispatchService) enqueueBatchItem(ctx context.Context, tn tenant.Tenant, req EnqueueRequest, batchID string) (*domain.NotificationJob, error) {
	job, err := s.buildJob(ctx, tn, req, &batchID)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return s.jobs.GetByDedupKey(ctx, tn.ID, job.DedupKey)
		}
		return nil, err
	}

	if !shouldEnqueueImmediately(job.ScheduledAt, time.Now().UTC()) {
		return job, nil
	}
	if err := s.publish(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *DispatchService) GetByID(ctx context.Context, tn tenant.Tenant, id string) (*domain.NotificationJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return s.jobs.GetByID(ctx, tn.ID, strings.TrimSpace(id))
}

func (s *DispatchService) List(ctx context.Context, tn tenant.Tenant, params repository.ListParams) ([]domain.NotificationJob, int64, error) {
	return s.jobs.List(ctx, tn.ID, params)
}

func (s *DispatchService) Cancel(ctx context.Context, tn tenant.Tenant, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return s.jobs.Cancel(ctx, tn.ID, strings.TrimSpace(id))
}

func (s *DispatchService) Attempts(ctx context.Context, tn tenant.Tenant, jobID string) ([]domain.DispatchAttempt, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return s.attempts.GetByJobID(ctx, tn.ID, strings.TrimSpace(jobID))
}

func (s *DispatchService) GetBatchSummary(ctx context.Context, tn tenant.Tenant, batchID string) (*BatchSummary, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	batch, err := s.batches.GetByID(ctx, tn.ID, strings.TrimSpace(batchID))
	if err != nil {
		return nil, err
	}

	statuses, err := s.jobs.GetBatchSummary(ctx, tn.ID, batch.ID)
	if err != nil {
		return nil, err
	}

	counts := make([]StatusCount, 0, len(statuses))
	for _, summary := range statuses {
		counts = append(counts, StatusCount{Status: summary.Status, Count: summary.Count})
	}

	return &BatchSummary{
		BatchID:    batch.ID,
		TotalCount: batch.TotalCount,
		Status:     batch.Status,
		Counts:     counts,
	}, nil
}

func (s *DispatchService) QueueStats(ctx context.Context, tn tenant.Tenant) ([]StatusCount, error) {
	statuses, err := s.jobs.CountByStatus(ctx, tn.ID)
	if err != nil {
		return nil, err
	}
	counts := make([]StatusCount, 0, len(statuses))
	for _, summary := range statuses {
		counts = append(counts, StatusCount{Status: summary.Status, Count: summary.Count})
	}
	return counts, nil
}

// buildJob renders the template and assembles a PENDING job. Template
// rendering failures (unknown template, missing variables) reject the
// request before anything is persisted.
func (s *DispatchService) buildJob(ctx context.Context, tn tenant.Tenant, req EnqueueRequest, batchID *string) (*domain.NotificationJob, error) {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}
	if !req.Channel.IsValid() {
		return nil, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, req.Channel)
	}

	route, err := s.settings.GetChannelRoute(ctx, tn.ID, req.Channel)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no route configured for channel %s", domain.ErrConfiguration, req.Channel)
		}
		return nil, err
	}
	if !route.Enabled {
		return nil, fmt.Errorf("%w: channel %s is disabled", domain.ErrConfiguration, req.Channel)
	}

	templateName := strings.TrimSpace(req.TemplateName)
	if templateName == "" {
		return nil, fmt.Errorf("%w: template name is required", domain.ErrValidation)
	}
	tpl, err := s.settings.GetTemplate(ctx, tn.ID, templateName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: template %q not found", domain.ErrValidation, templateName)
		}
		return nil, err
	}

	content, err := tpl.Render(req.Variables)
	if err != nil {
		return nil, err
	}

	trigger := strings.TrimSpace(req.Trigger)
	if trigger == "" {
		trigger = uuid.NewString()
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries()
	}

	job := &domain.NotificationJob{
		ID:           uuid.NewString(),
		TenantID:     tn.ID,
		BatchID:      batchID,
		MessageID:    req.MessageID,
		DedupKey:     domain.DedupKeyFor(tn.ID, trigger, recipient, req.Channel),
		Channel:      req.Channel,
		Recipient:    recipient,
		TemplateName: templateName,
		Content:      content,
		Status:       domain.StatusPending,
		MaxRetries:   maxRetries,
		ScheduledAt:  req.ScheduledAt,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *DispatchService) publish(ctx context.Context, job *domain.NotificationJob) error {
	msg := queue.JobMessage{
		JobID:    job.ID,
		TenantID: job.TenantID,
		Channel:  job.Channel,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(job.Channel), msg); err != nil {
		s.logger.Error("failed to publish job",
			zap.String("tenantId", job.TenantID),
			zap.String("jobId", job.ID),
			zap.String("channel", string(job.Channel)),
			zap.Error(err),
		)
		if markErr := s.jobs.MarkFailed(ctx, job.TenantID, job.ID, "publish failed: "+err.Error()); markErr != nil {
			return fmt.Errorf("failed to publish job: %w (failed to mark as failed: %v)", err, markErr)
		}
		job.Status = domain.StatusFailed
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

func shouldEnqueueImmediately(scheduledAt *time.Time, now time.Time) bool {
	if scheduledAt == nil {
		return true
	}
	return !scheduledAt.After(now)
}
