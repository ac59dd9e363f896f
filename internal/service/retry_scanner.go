package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kursadbilgin/order-relay/internal/queue"
	"github.com/kursadbilgin/order-relay/internal/repository"
)

const (
	defaultRetryScanSchedule = "@every 30s"
	defaultRetryScanLimit    = 100
)

// RetryScanner re-enqueues due retry jobs on a cron schedule.
type RetryScanner struct {
	jobs      repository.JobRepository
	publisher queue.Publisher
	logger    *zap.Logger
	schedule  string
	limit     int
}

func NewRetryScanner(
	jobs repository.JobRepository,
	publisher queue.Publisher,
	schedule string,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if schedule == "" {
		schedule = defaultRetryScanSchedule
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
		schedule:  schedule,
		limit:     limit,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first
	// cron edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("retry scanner scan failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retry scan schedule %q: %w", s.schedule, err)
	}

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	dueJobs, err := s.jobs.GetDueForRetry(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}

	for i := range dueJobs {
		job := dueJobs[i]
		msg := queue.JobMessage{
			JobID:    job.ID,
			TenantID: job.TenantID,
			Channel:  job.Channel,
		}

		queueName := queue.QueueName(job.Channel)
		if err := s.publisher.Publish(ctx, queueName, msg); err != nil {
			s.logger.Error("failed to enqueue retry job",
				zap.String("tenantId", job.TenantID),
				zap.String("jobId", job.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		if err := s.jobs.ClearNextRetryAt(ctx, job.TenantID, job.ID); err != nil {
			s.logger.Error("failed to clear next retry timestamp after enqueue",
				zap.String("tenantId", job.TenantID),
				zap.String("jobId", job.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
