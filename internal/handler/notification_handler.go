package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/repository"
	"github.com/kursadbilgin/order-relay/internal/service"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type NotificationService interface {
	Enqueue(ctx context.Context, tn tenant.Tenant, req service.EnqueueRequest) (*domain.NotificationJob, error)
	EnqueueBatch(ctx context.Context, tn tenant.Tenant, requests []service.EnqueueRequest) (*domain.Batch, []domain.NotificationJob, error)
	GetByID(ctx context.Context, tn tenant.Tenant, id string) (*domain.NotificationJob, error)
	List(ctx context.Context, tn tenant.Tenant, params repository.ListParams) ([]domain.NotificationJob, int64, error)
	Cancel(ctx context.Context, tn tenant.Tenant, id string) error
	Attempts(ctx context.Context, tn tenant.Tenant, jobID string) ([]domain.DispatchAttempt, error)
	GetBatchSummary(ctx context.Context, tn tenant.Tenant, batchID string) (*service.BatchSummary, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Post("/notifications/bulk", h.CreateBulk)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Get("/notifications/:id/attempts", h.GetAttempts)
	v1.Post("/notifications/:id/cancel", h.CancelNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/batches/:batchId", h.GetBatchSummary)

	return nil
}

type enqueueRequest struct {
	Channel      string            `json:"channel"`
	Recipient    string            `json:"recipient"`
	TemplateName string            `json:"templateName"`
	Variables    map[string]string `json:"variables"`
	Trigger      string            `json:"trigger"`
	ScheduledAt  *time.Time        `json:"scheduledAt,omitempty"`
	MaxRetries   *int              `json:"maxRetries,omitempty"`
}

type bulkRequest struct {
	Notifications []enqueueRequest `json:"notifications"`
}

type jobResponse struct {
	ID           string     `json:"id"`
	BatchID      *string    `json:"batchId,omitempty"`
	MessageID    *string    `json:"messageId,omitempty"`
	Channel      string     `json:"channel"`
	Recipient    string     `json:"recipient"`
	TemplateName string     `json:"templateName"`
	Content      string     `json:"content"`
	Status       string     `json:"status"`
	ProviderName *string    `json:"providerName,omitempty"`
	RetryCount   int        `json:"retryCount"`
	MaxRetries   int        `json:"maxRetries"`
	ScheduledAt  *time.Time `json:"scheduledAt,omitempty"`
	NextRetryAt  *time.Time `json:"nextRetryAt,omitempty"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt,omitempty"`
}

type bulkResponse struct {
	BatchID       string        `json:"batchId"`
	Status        string        `json:"status"`
	TotalCount    int           `json:"totalCount"`
	SuccessCount  int           `json:"successCount"`
	FailureCount  int           `json:"failureCount"`
	Notifications []jobResponse `json:"notifications"`
}

type listJobsResponse struct {
	Data []jobResponse `json:"data"`
	Meta listMeta      `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type attemptResponse struct {
	AttemptNumber int       `json:"attemptNumber"`
	ProviderName  string    `json:"providerName"`
	Channel       string    `json:"channel"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type batchSummaryResponse struct {
	BatchID    string                 `json:"batchId"`
	TotalCount int                    `json:"totalCount"`
	Status     string                 `json:"status"`
	Counts     []batchStatusCountItem `json:"counts"`
}

type batchStatusCountItem struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	enqueue, err := requestToEnqueue(req)
	if err != nil {
		return toHTTPError(err)
	}

	job, err := h.service.Enqueue(c.Context(), tn, enqueue)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toJobResponse(job))
}

func (h *NotificationHandler) CreateBulk(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Notifications) == 0 {
		return toHTTPError(fmt.Errorf("%w: notifications is required", domain.ErrValidation))
	}

	requests := make([]service.EnqueueRequest, 0, len(req.Notifications))
	for _, item := range req.Notifications {
		enqueue, err := requestToEnqueue(item)
		if err != nil {
			return toHTTPError(err)
		}
		requests = append(requests, enqueue)
	}

	batch, jobs, err := h.service.EnqueueBatch(c.Context(), tn, requests)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(bulkResponse{
		BatchID:       batch.ID,
		Status:        batch.Status.String(),
		TotalCount:    batch.TotalCount,
		SuccessCount:  batch.SuccessCount,
		FailureCount:  batch.FailureCount,
		Notifications: toJobResponses(jobs),
	})
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	job, err := h.service.GetByID(c.Context(), tn, c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func (h *NotificationHandler) GetAttempts(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	attempts, err := h.service.Attempts(c.Context(), tn, c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		items = append(items, attemptResponse{
			AttemptNumber: a.AttemptNumber,
			ProviderName:  a.ProviderName,
			Channel:       a.Channel.String(),
			StatusCode:    a.StatusCode,
			Error:         a.Error,
			CreatedAt:     a.CreatedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": items})
}

func (h *NotificationHandler) CancelNotification(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), tn, id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"jobId":  id,
		"status": domain.StatusCancelled.String(),
	})
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	jobs, total, err := h.service.List(c.Context(), tn, params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listJobsResponse{
		Data: toJobResponses(jobs),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *NotificationHandler) GetBatchSummary(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	summary, err := h.service.GetBatchSummary(c.Context(), tn, c.Params("batchId"))
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]batchStatusCountItem, 0, len(summary.Counts))
	for _, count := range summary.Counts {
		items = append(items, batchStatusCountItem{
			Status: count.Status.String(),
			Count:  count.Count,
		})
	}

	return c.Status(fiber.StatusOK).JSON(batchSummaryResponse{
		BatchID:    summary.BatchID,
		TotalCount: summary.TotalCount,
		Status:     summary.Status.String(),
		Counts:     items,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseJobStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToEnqueue(req enqueueRequest) (service.EnqueueRequest, error) {
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return service.EnqueueRequest{}, err
	}

	enqueue := service.EnqueueRequest{
		Channel:      channel,
		Recipient:    strings.TrimSpace(req.Recipient),
		TemplateName: strings.TrimSpace(req.TemplateName),
		Variables:    req.Variables,
		Trigger:      strings.TrimSpace(req.Trigger),
		ScheduledAt:  req.ScheduledAt,
	}
	if req.MaxRetries != nil {
		enqueue.MaxRetries = *req.MaxRetries
	}
	return enqueue, nil
}

func toJobResponse(job *domain.NotificationJob) jobResponse {
	return jobResponse{
		ID:           job.ID,
		BatchID:      job.BatchID,
		MessageID:    job.MessageID,
		Channel:      job.Channel.String(),
		Recipient:    job.Recipient,
		TemplateName: job.TemplateName,
		Content:      job.Content,
		Status:       job.Status.String(),
		ProviderName: job.ProviderName,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		ScheduledAt:  job.ScheduledAt,
		NextRetryAt:  job.NextRetryAt,
		SentAt:       job.SentAt,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func toJobResponses(jobs []domain.NotificationJob) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	return out
}
