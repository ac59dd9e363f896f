package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/queue"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

func testTenant(t *testing.T) tenant.Tenant {
	t.Helper()
	tn, err := tenant.New("tenant-1", "UTC")
	if err != nil {
		t.Fatalf("tenant.New() error = %v", err)
	}
	return tn
}

func confirmationTemplate() *domain.MessageTemplate {
	return &domain.MessageTemplate{
		ID:       "tpl-1",
		TenantID: "tenant-1",
		Name:     OrderConfirmationTemplate,
		Body:     "{partner_name} order confirmed, delivery {delivery_date} ({delivery_label})",
		Active:   true,
	}
}

func dispatchSettings() *fakeSettingsRepo {
	return &fakeSettingsRepo{
		getChannelRouteFn: func(context.Context, string, domain.Channel) (*domain.ChannelRoute, error) {
			return smsRoute(), nil
		},
		getTemplateFn: func(_ context.Context, _, name string) (*domain.MessageTemplate, error) {
			if name != OrderConfirmationTemplate {
				return nil, domain.ErrNotFound
			}
			return confirmationTemplate(), nil
		},
	}
}

func confirmationRequest() EnqueueRequest {
	return EnqueueRequest{
		Channel:      domain.ChannelSMS,
		Recipient:    "+15550001111",
		TemplateName: OrderConfirmationTemplate,
		Variables: map[string]string{
			"partner_name":   "Hansol Trading",
			"delivery_date":  "2026-03-04",
			"delivery_label": "AFTERNOON",
		},
		Trigger: "<order-1@mail.example>",
	}
}

func newTestDispatch(t *testing.T, jobs *fakeJobRepo, batches *fakeBatchRepo, settings *fakeSettingsRepo, publisher *fakePublisher) *DispatchService {
	t.Helper()
	svc, err := NewDispatchService(jobs, batches, &fakeAttemptRepo{}, settings, publisher, nil)
	if err != nil {
		t.Fatalf("NewDispatchService() error = %v", err)
	}
	return svc
}

func TestEnqueueRendersAndPublishes(t *testing.T) {
	t.Parallel()

	var created *domain.NotificationJob
	jobs := &fakeJobRepo{
		createFn: func(_ context.Context, j *domain.NotificationJob) error {
			created = j
			return nil
		},
	}

	var publishedQueue string
	var published queue.JobMessage
	publisher := &fakePublisher{
		publishFn: func(_ context.Context, queueName string, msg queue.JobMessage) error {
			publishedQueue = queueName
			published = msg
			return nil
		},
	}

	svc := newTestDispatch(t, jobs, &fakeBatchRepo{}, dispatchSettings(), publisher)
	job, err := svc.Enqueue(context.Background(), testTenant(t), confirmationRequest())
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	wantContent := "Hansol Trading order confirmed, delivery 2026-03-04 (AFTERNOON)"
	if job.Content != wantContent {
		t.Errorf("job content = %q, want %q", job.Content, wantContent)
	}
	if job.Status != domain.StatusPending {
		t.Errorf("job status = %s, want PENDING", job.Status)
	}
	if created == nil || created.ID != job.ID {
		t.Error("job was not persisted before publishing")
	}

	if publishedQueue != "sms" {
		t.Errorf("published to queue %q, want sms", publishedQueue)
	}
	if published.JobID != job.ID || published.TenantID != "tenant-1" {
		t.Errorf("published message = %+v", published)
	}

	wantKey := domain.DedupKeyFor("tenant-1", "<order-1@mail.example>", "+15550001111", domain.ChannelSMS)
	if job.DedupKey != wantKey {
		t.Errorf("dedup key = %q, want %q", job.DedupKey, wantKey)
	}
}

func TestEnqueueResolvesDedupConflictToExistingJob(t *testing.T) {
	t.Parallel()

	existing := pendingJob()
	jobs := &fakeJobRepo{
		createFn: func(context.Context, *domain.NotificationJob) error {
			return domain.ErrDuplicate
		},
		getByDedupKeyFn: func(context.Context, string, string) (*domain.NotificationJob, error) {
			return existing, nil
		},
	}

	publishCount := 0
	publisher := &fakePublisher{
		publishFn: func(context.Context, string, queue.JobMessage) error {
			publishCount++
			return nil
		},
	}

	svc := newTestDispatch(t, jobs, &fakeBatchRepo{}, dispatchSettings(), publisher)
	job, err := svc.Enqueue(context.Background(), testTenant(t), confirmationRequest())
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if job.ID != existing.ID {
		t.Errorf("job ID = %q, want existing %q", job.ID, existing.ID)
	}
	if publishCount != 0 {
		t.Errorf("published %d messages for a duplicate, want 0", publishCount)
	}
}

func TestEnqueueRejectsMissingTemplateVariables(t *testing.T) {
	t.Parallel()

	created := false
	jobs := &fakeJobRepo{
		createFn: func(context.Context, *domain.NotificationJob) error {
			created = true
			return nil
		},
	}

	req := confirmationRequest()
	delete(req.Variables, "delivery_date")

	svc := newTestDispatch(t, jobs, &fakeBatchRepo{}, dispatchSettings(), &fakePublisher{})
	_, err := svc.Enqueue(context.Background(), testTenant(t), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Enqueue() error = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "delivery_date") {
		t.Errorf("error %q does not name the missing variable", err)
	}
	if created {
		t.Error("job was persisted despite a rendering failure")
	}
}

func TestEnqueueRejectsDisabledRoute(t *testing.T) {
	t.Parallel()

	settings := dispatchSettings()
	settings.getChannelRouteFn = func(context.Context, string, domain.Channel) (*domain.ChannelRoute, error) {
		route := smsRoute()
		route.Enabled = false
		return route, nil
	}

	svc := newTestDispatch(t, &fakeJobRepo{}, &fakeBatchRepo{}, settings, &fakePublisher{})
	_, err := svc.Enqueue(context.Background(), testTenant(t), confirmationRequest())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Enqueue() error = %v, want ErrConfiguration", err)
	}
}

func TestEnqueueDefersFutureScheduledJobs(t *testing.T) {
	t.Parallel()

	published := false
	publisher := &fakePublisher{
		publishFn: func(context.Context, string, queue.JobMessage) error {
			published = true
			return nil
		},
	}

	req := confirmationRequest()
	future := time.Now().UTC().Add(time.Hour)
	req.ScheduledAt = &future

	svc := newTestDispatch(t, &fakeJobRepo{}, &fakeBatchRepo{}, dispatchSettings(), publisher)
	job, err := svc.Enqueue(context.Background(), testTenant(t), req)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if published {
		t.Error("future-scheduled job was published immediately")
	}
	if job.ScheduledAt == nil || !job.ScheduledAt.Equal(future) {
		t.Errorf("job scheduledAt = %v, want %v", job.ScheduledAt, future)
	}
}

func TestEnqueueMarksJobFailedWhenPublishFails(t *testing.T) {
	t.Parallel()

	var failReason string
	jobs := &fakeJobRepo{
		markFailedFn: func(_ context.Context, _, _, reason string) error {
			failReason = reason
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(context.Context, string, queue.JobMessage) error {
			return fmt.Errorf("broker unavailable")
		},
	}

	svc := newTestDispatch(t, jobs, &fakeBatchRepo{}, dispatchSettings(), publisher)
	_, err := svc.Enqueue(context.Background(), testTenant(t), confirmationRequest())
	if err == nil {
		t.Fatal("Enqueue() error = nil, want publish failure")
	}
	if !strings.Contains(failReason, "broker unavailable") {
		t.Errorf("MarkFailed reason = %q, want the publish error", failReason)
	}
}

func TestEnqueueBatchReportsPartialFailure(t *testing.T) {
	t.Parallel()

	var updatedStatus domain.BatchStatus
	var successCount, failureCount int
	batches := &fakeBatchRepo{
		updateCountsFn: func(_ context.Context, _, _ string, success, failure int, status domain.BatchStatus) error {
			successCount = success
			failureCount = failure
			updatedStatus = status
			return nil
		},
	}

	requests := []EnqueueRequest{confirmationRequest(), confirmationRequest(), confirmationRequest()}
	requests[1].Recipient = "" // rejected at validation

	// Distinct triggers keep the good items out of each other's dedup scope.
	requests[0].Trigger = "<order-1@mail.example>"
	requests[2].Trigger = "<order-2@mail.example>"

	svc := newTestDispatch(t, &fakeJobRepo{}, batches, dispatchSettings(), &fakePublisher{})
	batch, jobs, err := svc.EnqueueBatch(context.Background(), testTenant(t), requests)
	if err != nil {
		t.Fatalf("EnqueueBatch() error = %v", err)
	}

	if len(jobs) != 2 {
		t.Errorf("created %d jobs, want 2", len(jobs))
	}
	if successCount != 2 || failureCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", successCount, failureCount)
	}
	if updatedStatus != domain.BatchStatusPartialFailure {
		t.Errorf("batch status = %s, want PARTIAL_FAILURE", updatedStatus)
	}
	if batch.TotalCount != 3 {
		t.Errorf("batch total = %d, want 3", batch.TotalCount)
	}
}

func TestEnqueueBatchRejectsOversizedBatches(t *testing.T) {
	t.Parallel()

	requests := make([]EnqueueRequest, maxBatchSize+1)
	for i := range requests {
		requests[i] = confirmationRequest()
	}

	svc := newTestDispatch(t, &fakeJobRepo{}, &fakeBatchRepo{}, dispatchSettings(), &fakePublisher{})
	_, _, err := svc.EnqueueBatch(context.Background(), testTenant(t), requests)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("EnqueueBatch() error = %v, want ErrValidation", err)
	}
}
