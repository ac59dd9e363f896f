package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/order-relay/internal/queue"
	"github.com/kursadbilgin/order-relay/internal/repository"
)

const (
	defaultSchedulerScanInterval = 5 * time.Second
	defaultSchedulerScanLimit    = 100
)

// Scheduler periodically enqueues jobs whose scheduled time has arrived.
type Scheduler struct {
	jobs      repository.JobRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
}

func NewScheduler(
	jobs repository.JobRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if interval <= 0 {
		interval = defaultSchedulerScanInterval
	}
	if limit <= 0 {
		limit = defaultSchedulerScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler scan failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) scanDue(ctx context.Context) error {
	dueJobs, err := s.jobs.GetDueScheduled(ctx, s.limit)
	if err != nil {
		return err
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
			s.logger.Error("failed to enqueue scheduled job",
				zap.String("tenantId", job.TenantID),
				zap.String("jobId", job.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		if err := s.jobs.ClearScheduledAt(ctx, job.TenantID, job.ID); err != nil {
			s.logger.Error("failed to clear scheduled timestamp after enqueue",
				zap.String("tenantId", job.TenantID),
				zap.String("jobId", job.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
