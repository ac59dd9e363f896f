package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/observability"
	"github.com/kursadbilgin/order-relay/internal/provider"
	"github.com/kursadbilgin/order-relay/internal/queue"
	"github.com/kursadbilgin/order-relay/internal/ratelimit"
	"github.com/kursadbilgin/order-relay/internal/repository"
)

const (
	minWorkerConcurrency = 1
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250
)

// WorkerService consumes job messages and drives each job through its
// provider failover chain.
type WorkerService struct {
	jobs        repository.JobRepository
	attempts    repository.AttemptRepository
	settings    repository.SettingsRepository
	consumer    queue.Consumer
	registry    *provider.Registry
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewWorkerService(
	jobs repository.JobRepository,
	attempts repository.AttemptRepository,
	settings repository.SettingsRepository,
	consumer queue.Consumer,
	registry *provider.Registry,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		jobs:        jobs,
		attempts:    attempts,
		settings:    settings,
		consumer:    consumer,
		registry:    registry,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes channel queues and processes job messages until context
// cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.JobMessage) error {
	job, err := s.jobs.LockForSending(ctx, msg.TenantID, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("job not found during lock, skipping",
				zap.String("tenantId", msg.TenantID),
				zap.String("jobId", msg.JobID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock job for sending: %w", err)
	}

	// Nil means the job is already claimed or terminal; ack and skip.
	if job == nil {
		return nil
	}

	channelName := strings.ToLower(job.Channel.String())
	s.metrics.IncWorkerInFlight(channelName)
	defer s.metrics.DecWorkerInFlight(channelName)

	if err := s.rateLimiter.Wait(ctx, channelName); err != nil {
		s.releaseClaim(ctx, job)
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	steps, err := s.resolveChain(ctx, job)
	if err != nil {
		s.logger.Error("no delivery chain for job",
			zap.String("tenantId", job.TenantID),
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
		if markErr := s.jobs.MarkFailed(ctx, job.TenantID, job.ID, err.Error()); markErr != nil {
			s.releaseClaim(ctx, job)
			return fmt.Errorf("failed to mark job as failed: %w", markErr)
		}
		s.metrics.IncJobFailed(channelName, "no_route")
		return nil
	}

	attemptNumber := s.nextAttemptNumber(ctx, job)

	var lastErr error
	sawTransient := false
	for i, step := range steps {
		resp, sendErr := s.sendStep(ctx, job, step, attemptNumber)
		attemptNumber++

		if sendErr == nil {
			if i > 0 {
				s.metrics.IncFailover(channelName, step.Provider.Name())
			}
			messageID := ""
			if resp != nil {
				messageID = strings.TrimSpace(resp.MessageID)
			}
			if err := s.jobs.MarkSent(ctx, job.TenantID, job.ID, step.Provider.Name(), messageID, s.now().UTC()); err != nil {
				s.releaseClaim(ctx, job)
				return fmt.Errorf("failed to mark job as sent: %w", err)
			}
			s.metrics.IncJobSent(channelName)
			return nil
		}

		lastErr = sendErr
		if provider.IsTransient(sendErr) {
			sawTransient = true
		}
		s.logger.Warn("provider send failed",
			zap.String("tenantId", job.TenantID),
			zap.String("jobId", job.ID),
			zap.String("provider", step.Provider.Name()),
			zap.Bool("transient", provider.IsTransient(sendErr)),
			zap.Error(sendErr),
		)
	}

	retryRound := job.RetryCount + 1
	if sawTransient && retryRound < job.MaxRetries {
		nextRetryAt := s.now().Add(s.computeRetryDelay(retryRound))
		if err := s.jobs.ScheduleRetry(ctx, job.TenantID, job.ID, nextRetryAt); err != nil {
			s.releaseClaim(ctx, job)
			return fmt.Errorf("failed to schedule job retry: %w", err)
		}
		s.metrics.IncRetryScheduled(channelName)
		return nil
	}

	reason := "permanent_error"
	if sawTransient {
		reason = "retry_exhausted"
	}
	failMsg := reason
	if lastErr != nil {
		failMsg = lastErr.Error()
	}
	if err := s.jobs.MarkFailedDelivery(ctx, job.TenantID, job.ID, failMsg); err != nil {
		s.releaseClaim(ctx, job)
		return fmt.Errorf("failed to mark job as failed: %w", err)
	}
	s.metrics.IncJobFailed(channelName, reason)
	return nil
}

// releaseClaim puts a claimed job back to PENDING so a redelivery or the
// retry scanner can pick it up. Without this an error after LockForSending
// would strand the job in SENDING. Best effort and shutdown safe.
func (s *WorkerService) releaseClaim(ctx context.Context, job *domain.NotificationJob) {
	releaseCtx := context.WithoutCancel(ctx)
	if err := s.jobs.UpdateStatus(releaseCtx, job.TenantID, job.ID, domain.StatusPending); err != nil {
		s.logger.Error("failed to release claimed job",
			zap.String("tenantId", job.TenantID),
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
	}
}

// resolveChain maps the job's channel to its tenant route. Tenants without
// an explicit route get the default provider for the channel.
func (s *WorkerService) resolveChain(ctx context.Context, job *domain.NotificationJob) ([]provider.Step, error) {
	route, err := s.settings.GetChannelRoute(ctx, job.TenantID, job.Channel)
	if errors.Is(err, domain.ErrNotFound) {
		p, perr := s.registry.ForChannel(job.Channel)
		if perr != nil {
			return nil, perr
		}
		return []provider.Step{{Provider: p, Channel: job.Channel}}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.registry.Chain(*route)
}

func (s *WorkerService) sendStep(ctx context.Context, job *domain.NotificationJob, step provider.Step, attemptNumber int) (*provider.ProviderResponse, error) {
	sendStart := s.now()
	resp, sendErr := step.Provider.Send(ctx, provider.Message{
		TenantID:  job.TenantID,
		Recipient: job.Recipient,
		Content:   job.Content,
		Channel:   step.Channel,
	})
	s.metrics.ObserveSendDuration(strings.ToLower(step.Channel.String()), s.now().Sub(sendStart))

	if err := s.recordAttempt(ctx, job, step, attemptNumber, resp, sendErr); err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}
	return resp, sendErr
}

func (s *WorkerService) nextAttemptNumber(ctx context.Context, job *domain.NotificationJob) int {
	previous, err := s.attempts.GetByJobID(ctx, job.TenantID, job.ID)
	if err != nil {
		s.logger.Warn("failed to load previous attempts",
			zap.String("tenantId", job.TenantID),
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
		return job.RetryCount + 1
	}
	return len(previous) + 1
}

func (s *WorkerService) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (s *WorkerService) recordAttempt(
	ctx context.Context,
	job *domain.NotificationJob,
	step provider.Step,
	attemptNumber int,
	providerResp *provider.ProviderResponse,
	sendErr error,
) error {
	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if providerResp != nil {
		if providerResp.StatusCode > 0 {
			value := providerResp.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(providerResp.Body); body != "" {
			value := providerResp.Body
			responseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var providerErr *provider.ProviderError
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && statusCode == nil {
			value := providerErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DispatchAttempt{
		ID:            uuid.NewString(),
		TenantID:      job.TenantID,
		JobID:         job.ID,
		AttemptNumber: attemptNumber,
		ProviderName:  step.Provider.Name(),
		Channel:       step.Channel,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptErr,
		CreatedAt:     s.now().UTC(),
	}

	return s.attempts.Create(ctx, attempt)
}
