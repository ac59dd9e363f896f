package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/order-relay/internal/deliverydate"
	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/repository"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

// OrderService runs the order-received flow and exposes stored messages.
type OrderService interface {
	TriggerOrder(ctx context.Context, tn tenant.Tenant, partnerID string, orderedAt time.Time) (*domain.NotificationJob, deliverydate.Result, error)
	ListMessages(ctx context.Context, tn tenant.Tenant, params repository.MessageListParams) ([]domain.EmailMessage, int64, error)
	GetMessage(ctx context.Context, tn tenant.Tenant, id string) (*domain.EmailMessage, error)
}

type OrderHandler struct {
	service OrderService
}

func NewOrderHandler(service OrderService) (*OrderHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("order service is required")
	}
	return &OrderHandler{service: service}, nil
}

func RegisterOrderRoutes(router fiber.Router, service OrderService) error {
	h, err := NewOrderHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/orders/:partnerId/trigger", h.TriggerOrder)
	v1.Get("/messages", h.ListMessages)
	v1.Get("/messages/:id", h.GetMessage)

	return nil
}

type triggerOrderRequest struct {
	OrderedAt *time.Time `json:"orderedAt,omitempty"`
}

type triggerOrderResponse struct {
	Job           jobResponse `json:"job"`
	DeliveryDate  string      `json:"deliveryDate"`
	DeliveryLabel string      `json:"deliveryLabel"`
	AfterCutoff   bool        `json:"afterCutoff"`
}

type messageResponse struct {
	ID             string               `json:"id"`
	MessageID      string               `json:"messageId"`
	FromAddress    string               `json:"fromAddress"`
	FromName       string               `json:"fromName,omitempty"`
	Subject        string               `json:"subject,omitempty"`
	ReceivedAt     time.Time            `json:"receivedAt"`
	IsOrder        bool                 `json:"isOrder"`
	CompanyID      *string              `json:"companyId,omitempty"`
	Status         string               `json:"status"`
	DecodeDegraded bool                 `json:"decodeDegraded"`
	Attachments    []attachmentResponse `json:"attachments,omitempty"`
}

type attachmentResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type listMessagesResponse struct {
	Data []messageResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

func (h *OrderHandler) TriggerOrder(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	partnerID := strings.TrimSpace(c.Params("partnerId"))
	if partnerID == "" {
		return toHTTPError(fmt.Errorf("%w: partner id is required", domain.ErrValidation))
	}

	var req triggerOrderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	orderedAt := time.Now().UTC()
	if req.OrderedAt != nil {
		orderedAt = *req.OrderedAt
	}

	job, promise, err := h.service.TriggerOrder(c.Context(), tn, partnerID, orderedAt)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(triggerOrderResponse{
		Job:           toJobResponse(job),
		DeliveryDate:  promise.Date.Format("2006-01-02"),
		DeliveryLabel: promise.Label.String(),
		AfterCutoff:   promise.AfterCutoff,
	})
}

func (h *OrderHandler) ListMessages(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	params, err := parseMessageListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	messages, total, err := h.service.ListMessages(c.Context(), tn, params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listMessagesResponse{
		Data: toMessageResponses(messages),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *OrderHandler) GetMessage(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	msg, err := h.service.GetMessage(c.Context(), tn, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toMessageResponse(msg))
}

func parseMessageListParams(c *fiber.Ctx) (repository.MessageListParams, error) {
	params := repository.MessageListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.MessageListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.MessageListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status := domain.MessageStatus(strings.ToUpper(rawStatus))
		if !status.IsValid() {
			return repository.MessageListParams{}, fmt.Errorf("%w: invalid message status %q", domain.ErrValidation, rawStatus)
		}
		params.Status = &status
	}

	if rawIsOrder := strings.TrimSpace(c.Query("isOrder")); rawIsOrder != "" {
		isOrder := strings.EqualFold(rawIsOrder, "true")
		params.IsOrder = &isOrder
	}

	return params, nil
}

func toMessageResponse(msg *domain.EmailMessage) messageResponse {
	attachments := make([]attachmentResponse, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, attachmentResponse{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
		})
	}

	return messageResponse{
		ID:             msg.ID,
		MessageID:      msg.MessageID,
		FromAddress:    msg.FromAddress,
		FromName:       msg.FromName,
		Subject:        msg.Subject,
		ReceivedAt:     msg.ReceivedAt,
		IsOrder:        msg.IsOrder,
		CompanyID:      msg.CompanyID,
		Status:         msg.Status.String(),
		DecodeDegraded: msg.DecodeDegraded,
		Attachments:    attachments,
	}
}

func toMessageResponses(messages []domain.EmailMessage) []messageResponse {
	out := make([]messageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, toMessageResponse(&messages[i]))
	}
	return out
}
