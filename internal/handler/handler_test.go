package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kursadbilgin/order-relay/internal/deliverydate"
	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/mailbox"
	"github.com/kursadbilgin/order-relay/internal/provider"
	"github.com/kursadbilgin/order-relay/internal/repository"
	"github.com/kursadbilgin/order-relay/internal/service"
	"github.com/kursadbilgin/order-relay/internal/tenant"
	"github.com/kursadbilgin/order-relay/internal/transport"
)

type stubNotificationService struct {
	enqueueFn         func(ctx context.Context, tn tenant.Tenant, req service.EnqueueRequest) (*domain.NotificationJob, error)
	enqueueBatchFn    func(ctx context.Context, tn tenant.Tenant, requests []service.EnqueueRequest) (*domain.Batch, []domain.NotificationJob, error)
	getByIDFn         func(ctx context.Context, tn tenant.Tenant, id string) (*domain.NotificationJob, error)
	listFn            func(ctx context.Context, tn tenant.Tenant, params repository.ListParams) ([]domain.NotificationJob, int64, error)
	cancelFn          func(ctx context.Context, tn tenant.Tenant, id string) error
	attemptsFn        func(ctx context.Context, tn tenant.Tenant, jobID string) ([]domain.DispatchAttempt, error)
	getBatchSummaryFn func(ctx context.Context, tn tenant.Tenant, batchID string) (*service.BatchSummary, error)
}

func (s *stubNotificationService) Enqueue(ctx context.Context, tn tenant.Tenant, req service.EnqueueRequest) (*domain.NotificationJob, error) {
	return s.enqueueFn(ctx, tn, req)
}

func (s *stubNotificationService) EnqueueBatch(ctx context.Context, tn tenant.Tenant, requests []service.EnqueueRequest) (*domain.Batch, []domain.NotificationJob, error) {
	return s.enqueueBatchFn(ctx, tn, requests)
}

func (s *stubNotificationService) GetByID(ctx context.Context, tn tenant.Tenant, id string) (*domain.NotificationJob, error) {
	return s.getByIDFn(ctx, tn, id)
}

func (s *stubNotificationService) List(ctx context.Context, tn tenant.Tenant, params repository.ListParams) ([]domain.NotificationJob, int64, error) {
	return s.listFn(ctx, tn, params)
}

func (s *stubNotificationService) Cancel(ctx context.Context, tn tenant.Tenant, id string) error {
	return s.cancelFn(ctx, tn, id)
}

func (s *stubNotificationService) Attempts(ctx context.Context, tn tenant.Tenant, jobID string) ([]domain.DispatchAttempt, error) {
	return s.attemptsFn(ctx, tn, jobID)
}

func (s *stubNotificationService) GetBatchSummary(ctx context.Context, tn tenant.Tenant, batchID string) (*service.BatchSummary, error) {
	return s.getBatchSummaryFn(ctx, tn, batchID)
}

func newTestApp(t *testing.T, register func(app *fiber.App) error) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := register(app); err != nil {
		t.Fatalf("route registration error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func tenantHeaders() map[string]string {
	return map[string]string{headerTenantID: "tenant-1"}
}

func TestCreateNotificationEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		enqueueFn: func(_ context.Context, tn tenant.Tenant, req service.EnqueueRequest) (*domain.NotificationJob, error) {
			if tn.ID != "tenant-1" {
				t.Errorf("tenant = %q, want tenant-1", tn.ID)
			}
			if req.Channel != domain.ChannelSMS || req.TemplateName != "order_confirmation" {
				t.Errorf("request = %+v", req)
			}
			return &domain.NotificationJob{
				ID:       "job-created",
				TenantID: tn.ID,
				Channel:  req.Channel,
				Status:   domain.StatusPending,
			}, nil
		},
	}

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterNotificationRoutes(app, svc)
	})

	body := `{"channel":"SMS","recipient":"+821055550000","templateName":"order_confirmation","variables":{"partner_name":"Hansol Trading","delivery_date":"2026-03-04","delivery_label":"AFTERNOON"}}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/notifications", body, tenantHeaders())
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, respBody)
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["id"] != "job-created" {
		t.Errorf("id = %v, want job-created", parsed["id"])
	}
	if parsed["status"] != "PENDING" {
		t.Errorf("status = %v, want PENDING", parsed["status"])
	}
}

func TestCreateNotificationRequiresTenantHeader(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterNotificationRoutes(app, &stubNotificationService{})
	})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/notifications", `{"channel":"SMS"}`, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without X-Tenant-ID", resp.StatusCode)
	}
}

func TestCreateNotificationRejectsUnknownChannel(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterNotificationRoutes(app, &stubNotificationService{})
	})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/notifications", `{"channel":"FAX","recipient":"x"}`, tenantHeaders())
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown channel", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: bad input", domain.ErrValidation), fiber.StatusBadRequest},
		{"not found", domain.ErrNotFound, fiber.StatusNotFound},
		{"conflict", domain.ErrConflict, fiber.StatusConflict},
		{"configuration", fmt.Errorf("%w: no route", domain.ErrConfiguration), fiber.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &stubNotificationService{
				getByIDFn: func(context.Context, tenant.Tenant, string) (*domain.NotificationJob, error) {
					return nil, tt.err
				},
			}
			app := newTestApp(t, func(app *fiber.App) error {
				return RegisterNotificationRoutes(app, svc)
			})

			resp, _ := performRequest(t, app, http.MethodGet, "/v1/notifications/job-1", "", tenantHeaders())
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestBulkEndpointReportsPartialFailure(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		enqueueBatchFn: func(_ context.Context, tn tenant.Tenant, requests []service.EnqueueRequest) (*domain.Batch, []domain.NotificationJob, error) {
			if len(requests) != 2 {
				t.Errorf("got %d requests, want 2", len(requests))
			}
			return &domain.Batch{
					ID:           "batch-1",
					TenantID:     tn.ID,
					TotalCount:   2,
					SuccessCount: 1,
					FailureCount: 1,
					Status:       domain.BatchStatusPartialFailure,
				}, []domain.NotificationJob{
					{ID: "job-1", Channel: domain.ChannelSMS, Status: domain.StatusPending},
				}, nil
		},
	}

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterNotificationRoutes(app, svc)
	})

	body := `{"notifications":[
		{"channel":"SMS","recipient":"+821011110000","templateName":"order_confirmation","variables":{}},
		{"channel":"SMS","recipient":"+821022220000","templateName":"order_confirmation","variables":{}}
	]}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/notifications/bulk", body, tenantHeaders())
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, respBody)
	}

	var parsed bulkResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Status != "PARTIAL_FAILURE" || parsed.FailureCount != 1 {
		t.Errorf("response = %+v", parsed)
	}
}

func TestListNotificationsValidatesPagination(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		listFn: func(_ context.Context, _ tenant.Tenant, params repository.ListParams) ([]domain.NotificationJob, int64, error) {
			if params.Status == nil || *params.Status != domain.StatusSent {
				t.Errorf("status filter = %v, want SENT", params.Status)
			}
			return []domain.NotificationJob{{ID: "job-1", Status: domain.StatusSent}}, 1, nil
		},
	}

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterNotificationRoutes(app, svc)
	})

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/notifications?status=SENT&page=1&pageSize=10", "", tenantHeaders())
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/notifications?pageSize=5000", "", tenantHeaders())
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized page", resp.StatusCode)
	}
}

type stubQueueController struct {
	running bool
}

func (s *stubQueueController) Start(context.Context) error { s.running = true; return nil }
func (s *stubQueueController) Stop()                       { s.running = false }
func (s *stubQueueController) Running() bool               { return s.running }

type stubStatsService struct {
	counts []service.StatusCount
}

func (s *stubStatsService) QueueStats(context.Context, tenant.Tenant) ([]service.StatusCount, error) {
	return s.counts, nil
}

type stubMonitorStatuses struct {
	statuses []mailbox.Status
}

func (s *stubMonitorStatuses) Statuses() []mailbox.Status { return s.statuses }

type stubProber struct {
	results []provider.ProbeResult
}

func (s *stubProber) ProbeAll(context.Context) []provider.ProbeResult { return s.results }

func TestQueueControlEndpoints(t *testing.T) {
	t.Parallel()

	controller := &stubQueueController{}
	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterOpsRoutes(app, controller, &stubStatsService{}, nil, nil)
	})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/queue/start", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	if !controller.Running() {
		t.Error("controller not running after start")
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/queue/stop", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	if controller.Running() {
		t.Error("controller still running after stop")
	}
}

func TestQueueStatsEndpoint(t *testing.T) {
	t.Parallel()

	stats := &stubStatsService{counts: []service.StatusCount{
		{Status: domain.StatusPending, Count: 3},
		{Status: domain.StatusSent, Count: 12},
	}}
	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterOpsRoutes(app, &stubQueueController{running: true}, stats, nil, nil)
	})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/queue/stats", "", tenantHeaders())
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, body)
	}

	var parsed queueStatsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.Running || len(parsed.Counts) != 2 {
		t.Errorf("response = %+v", parsed)
	}
}

func TestDispatchStatusEndpoint(t *testing.T) {
	t.Parallel()

	monitors := &stubMonitorStatuses{statuses: []mailbox.Status{
		{TenantID: "tenant-1", State: mailbox.StateListening, Attempts: 0},
		{TenantID: "tenant-2", State: mailbox.StateReconnecting, Attempts: 2, LastError: "connection reset"},
	}}
	prober := &stubProber{results: []provider.ProbeResult{
		{Name: "sms_gateway", Channel: domain.ChannelSMS, Healthy: true},
		{Name: "chat_a", Channel: domain.ChannelChatA, Healthy: false, Error: "probe timeout"},
	}}

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterOpsRoutes(app, &stubQueueController{running: true}, &stubStatsService{}, monitors, prober)
	})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/dispatch/status", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed dispatchStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Providers) != 2 || len(parsed.Mailboxes) != 2 {
		t.Fatalf("response = %+v", parsed)
	}
	if parsed.Providers[1].Error != "probe timeout" {
		t.Errorf("provider error = %q", parsed.Providers[1].Error)
	}
	if parsed.Mailboxes[1].State != "RECONNECTING" {
		t.Errorf("mailbox state = %q", parsed.Mailboxes[1].State)
	}
}

type stubOrderService struct {
	triggerFn func(ctx context.Context, tn tenant.Tenant, partnerID string, orderedAt time.Time) (*domain.NotificationJob, deliverydate.Result, error)
	listFn    func(ctx context.Context, tn tenant.Tenant, params repository.MessageListParams) ([]domain.EmailMessage, int64, error)
	getFn     func(ctx context.Context, tn tenant.Tenant, id string) (*domain.EmailMessage, error)
}

func (s *stubOrderService) TriggerOrder(ctx context.Context, tn tenant.Tenant, partnerID string, orderedAt time.Time) (*domain.NotificationJob, deliverydate.Result, error) {
	return s.triggerFn(ctx, tn, partnerID, orderedAt)
}

func (s *stubOrderService) ListMessages(ctx context.Context, tn tenant.Tenant, params repository.MessageListParams) ([]domain.EmailMessage, int64, error) {
	return s.listFn(ctx, tn, params)
}

func (s *stubOrderService) GetMessage(ctx context.Context, tn tenant.Tenant, id string) (*domain.EmailMessage, error) {
	return s.getFn(ctx, tn, id)
}

func TestTriggerOrderEndpoint(t *testing.T) {
	t.Parallel()

	date := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	svc := &stubOrderService{
		triggerFn: func(_ context.Context, _ tenant.Tenant, partnerID string, _ time.Time) (*domain.NotificationJob, deliverydate.Result, error) {
			if partnerID != "partner-1" {
				t.Errorf("partner = %q, want partner-1", partnerID)
			}
			return &domain.NotificationJob{ID: "job-1", Channel: domain.ChannelSMS, Status: domain.StatusPending},
				deliverydate.Result{Date: date, Label: domain.LabelAfternoon},
				nil
		},
	}

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterOrderRoutes(app, svc)
	})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/orders/partner-1/trigger", "", tenantHeaders())
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, body)
	}

	var parsed triggerOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.DeliveryDate != "2026-03-04" || parsed.DeliveryLabel != "AFTERNOON" {
		t.Errorf("response = %+v", parsed)
	}
}

func TestTriggerOrderConfigurationGapMapsTo422(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{
		triggerFn: func(context.Context, tenant.Tenant, string, time.Time) (*domain.NotificationJob, deliverydate.Result, error) {
			return nil, deliverydate.Result{}, fmt.Errorf("%w: no delivery rule for region \"seoul\"", domain.ErrConfiguration)
		},
	}

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterOrderRoutes(app, svc)
	})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/orders/partner-1/trigger", "", tenantHeaders())
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestListMessagesEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{
		listFn: func(_ context.Context, _ tenant.Tenant, params repository.MessageListParams) ([]domain.EmailMessage, int64, error) {
			if params.IsOrder == nil || !*params.IsOrder {
				t.Errorf("isOrder filter = %v, want true", params.IsOrder)
			}
			return []domain.EmailMessage{{
				ID:        "msg-1",
				MessageID: "<order-77@hansol.example>",
				IsOrder:   true,
				Status:    domain.MessageMatched,
			}}, 1, nil
		},
	}

	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterOrderRoutes(app, svc)
	})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/messages?isOrder=true", "", tenantHeaders())
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed listMessagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].Status != "MATCHED" {
		t.Errorf("response = %+v", parsed)
	}
}
