package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/order-relay/internal/mailbox"
	"github.com/kursadbilgin/order-relay/internal/provider"
	"github.com/kursadbilgin/order-relay/internal/service"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

// QueueController starts and stops the queue-processing runners.
type QueueController interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// StatsService reports per-status job counts for a tenant.
type StatsService interface {
	QueueStats(ctx context.Context, tn tenant.Tenant) ([]service.StatusCount, error)
}

// MonitorStatuses snapshots mailbox monitor connection states.
type MonitorStatuses interface {
	Statuses() []mailbox.Status
}

// ProviderProber probes every registered provider.
type ProviderProber interface {
	ProbeAll(ctx context.Context) []provider.ProbeResult
}

type OpsHandler struct {
	controller QueueController
	stats      StatsService
	monitors   MonitorStatuses
	prober     ProviderProber
}

func NewOpsHandler(controller QueueController, stats StatsService, monitors MonitorStatuses, prober ProviderProber) (*OpsHandler, error) {
	if controller == nil {
		return nil, fmt.Errorf("queue controller is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("stats service is required")
	}
	return &OpsHandler{
		controller: controller,
		stats:      stats,
		monitors:   monitors,
		prober:     prober,
	}, nil
}

func RegisterOpsRoutes(router fiber.Router, controller QueueController, stats StatsService, monitors MonitorStatuses, prober ProviderProber) error {
	h, err := NewOpsHandler(controller, stats, monitors, prober)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/queue/start", h.StartQueue)
	v1.Post("/queue/stop", h.StopQueue)
	v1.Get("/queue/stats", h.QueueStats)
	v1.Get("/dispatch/status", h.DispatchStatus)

	return nil
}

type queueStatsResponse struct {
	Running bool              `json:"running"`
	Counts  []statusCountItem `json:"counts"`
}

type statusCountItem struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type dispatchStatusResponse struct {
	Running   bool                 `json:"running"`
	Providers []providerStatusItem `json:"providers"`
	Mailboxes []mailboxStatusItem  `json:"mailboxes"`
}

type providerStatusItem struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type mailboxStatusItem struct {
	TenantID  string `json:"tenantId"`
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
}

func (h *OpsHandler) StartQueue(c *fiber.Ctx) error {
	if err := h.controller.Start(context.Background()); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"running": true})
}

func (h *OpsHandler) StopQueue(c *fiber.Ctx) error {
	h.controller.Stop()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"running": false})
}

func (h *OpsHandler) QueueStats(c *fiber.Ctx) error {
	tn, err := requestTenant(c)
	if err != nil {
		return err
	}

	counts, err := h.stats.QueueStats(c.Context(), tn)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]statusCountItem, 0, len(counts))
	for _, count := range counts {
		items = append(items, statusCountItem{
			Status: count.Status.String(),
			Count:  count.Count,
		})
	}
	return c.Status(fiber.StatusOK).JSON(queueStatsResponse{
		Running: h.controller.Running(),
		Counts:  items,
	})
}

func (h *OpsHandler) DispatchStatus(c *fiber.Ctx) error {
	resp := dispatchStatusResponse{
		Running:   h.controller.Running(),
		Providers: []providerStatusItem{},
		Mailboxes: []mailboxStatusItem{},
	}

	if h.prober != nil {
		for _, result := range h.prober.ProbeAll(c.Context()) {
			resp.Providers = append(resp.Providers, providerStatusItem{
				Name:    result.Name,
				Channel: result.Channel.String(),
				Healthy: result.Healthy,
				Error:   result.Error,
			})
		}
	}

	if h.monitors != nil {
		for _, status := range h.monitors.Statuses() {
			resp.Mailboxes = append(resp.Mailboxes, mailboxStatusItem{
				TenantID:  status.TenantID,
				State:     string(status.State),
				Attempts:  status.Attempts,
				LastError: status.LastError,
			})
		}
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}
