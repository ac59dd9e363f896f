package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API, ingest and worker
// flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	mailMessagesTotal     *prometheus.CounterVec
	mailDecodeDegraded    *prometheus.CounterVec
	mailboxReconnects     *prometheus.CounterVec
	ordersMatchedTotal    *prometheus.CounterVec
	jobsSentTotal         *prometheus.CounterVec
	jobsFailedTotal       *prometheus.CounterVec
	sendDuration          *prometheus.HistogramVec
	failoverTotal         *prometheus.CounterVec
	workerInflight        *prometheus.GaugeVec
	retryScheduledTotal   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "order_relay",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		mailMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "mail_messages_total",
				Help:      "Total number of mailbox messages ingested by outcome.",
			},
			[]string{"tenant", "outcome"},
		),
		mailDecodeDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "mail_decode_degraded_total",
				Help:      "Total number of messages stored after a degraded charset decode.",
			},
			[]string{"tenant"},
		),
		mailboxReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "mailbox_reconnects_total",
				Help:      "Total number of mailbox reconnect attempts.",
			},
			[]string{"tenant"},
		),
		ordersMatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "orders_matched_total",
				Help:      "Total number of inbound messages classified as orders.",
			},
			[]string{"tenant"},
		),
		jobsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "jobs_sent_total",
				Help:      "Total number of notification jobs sent successfully.",
			},
			[]string{"channel"},
		),
		jobsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "jobs_failed_total",
				Help:      "Total number of notification jobs that ended in failed state.",
			},
			[]string{"channel", "reason"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "order_relay",
				Name:      "send_duration_seconds",
				Help:      "Provider send duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		failoverTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "failover_total",
				Help:      "Total number of deliveries that fell over to a backup provider.",
			},
			[]string{"channel", "provider"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "order_relay",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight worker operations grouped by channel.",
			},
			[]string{"channel"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_relay",
				Name:      "retry_scheduled_total",
				Help:      "Total number of jobs scheduled for retry.",
			},
			[]string{"channel"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.mailMessagesTotal,
		m.mailDecodeDegraded,
		m.mailboxReconnects,
		m.ordersMatchedTotal,
		m.jobsSentTotal,
		m.jobsFailedTotal,
		m.sendDuration,
		m.failoverTotal,
		m.workerInflight,
		m.retryScheduledTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncMailMessage(tenantID string, outcome string) {
	if m == nil {
		return
	}
	outcomeLabel := strings.TrimSpace(strings.ToLower(outcome))
	if outcomeLabel == "" {
		outcomeLabel = "unknown"
	}
	m.mailMessagesTotal.WithLabelValues(tenantID, outcomeLabel).Inc()
}

func (m *Metrics) IncDecodeDegraded(tenantID string) {
	if m == nil {
		return
	}
	m.mailDecodeDegraded.WithLabelValues(tenantID).Inc()
}

func (m *Metrics) IncMailboxReconnect(tenantID string) {
	if m == nil {
		return
	}
	m.mailboxReconnects.WithLabelValues(tenantID).Inc()
}

func (m *Metrics) IncOrderMatched(tenantID string) {
	if m == nil {
		return
	}
	m.ordersMatchedTotal.WithLabelValues(tenantID).Inc()
}

func (m *Metrics) IncJobSent(channel string) {
	if m == nil {
		return
	}
	m.jobsSentTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncJobFailed(channel string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.jobsFailedTotal.WithLabelValues(normalizeChannel(channel), reasonLabel).Inc()
}

func (m *Metrics) ObserveSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(normalizeChannel(channel)).Observe(seconds)
}

func (m *Metrics) IncFailover(channel string, provider string) {
	if m == nil {
		return
	}
	m.failoverTotal.WithLabelValues(normalizeChannel(channel), provider).Inc()
}

func (m *Metrics) IncWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) DecWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeChannel(channel)).Dec()
}

func (m *Metrics) IncRetryScheduled(channel string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeChannel(channel string) string {
	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
