package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/order-relay/internal/mailbox"
	"github.com/kursadbilgin/order-relay/internal/observability"
	"github.com/kursadbilgin/order-relay/internal/repository"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

// MonitorSupervisor runs one mailbox monitor per active tenant mailbox. A
// monitor that dies fatally (bad credentials, reconnect bound) stays down
// with its terminal status visible; the other tenants keep running.
type MonitorSupervisor struct {
	settings repository.SettingsRepository
	factory  mailbox.ClientFactory
	ingest   *IngestService
	metrics  *observability.Metrics
	logger   *zap.Logger
	opts     []mailbox.MonitorOption

	mu       sync.Mutex
	monitors []*mailbox.Monitor
}

func NewMonitorSupervisor(
	settings repository.SettingsRepository,
	factory mailbox.ClientFactory,
	ingest *IngestService,
	logger *zap.Logger,
	opts ...mailbox.MonitorOption,
) (*MonitorSupervisor, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if ingest == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MonitorSupervisor{
		settings: settings,
		factory:  factory,
		ingest:   ingest,
		logger:   logger,
		opts:     opts,
	}, nil
}

func (s *MonitorSupervisor) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start launches a monitor per active mailbox and blocks until every one
// has returned. Fatal monitor errors are logged, not propagated: one
// tenant's broken mailbox must not take the process down.
func (s *MonitorSupervisor) Start(ctx context.Context) error {
	boxes, err := s.settings.ListActiveMailboxes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active mailboxes: %w", err)
	}
	if len(boxes) == 0 {
		s.logger.Info("no active mailboxes configured")
		<-ctx.Done()
		return nil
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := range boxes {
		settings := boxes[i]

		tn, err := tenant.New(settings.TenantID, settings.Timezone)
		if err != nil {
			s.logger.Error("skipping mailbox with invalid tenant settings",
				zap.String("tenantId", settings.TenantID),
				zap.Error(err),
			)
			continue
		}

		opts := append([]mailbox.MonitorOption{
			mailbox.WithReconnectHook(func() { s.metrics.IncMailboxReconnect(tn.ID) }),
		}, s.opts...)

		monitor, err := mailbox.NewMonitor(tn, settings, s.factory, s.ingest.HandleMail, s.logger, opts...)
		if err != nil {
			s.logger.Error("failed to build mailbox monitor",
				zap.String("tenantId", settings.TenantID),
				zap.Error(err),
			)
			continue
		}

		s.mu.Lock()
		s.monitors = append(s.monitors, monitor)
		s.mu.Unlock()

		g.Go(func() error {
			if err := monitor.Run(groupCtx); err != nil {
				s.logger.Error("mailbox monitor stopped",
					zap.String("tenantId", tn.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	return g.Wait()
}

// Statuses snapshots every monitor's connection state.
func (s *MonitorSupervisor) Statuses() []mailbox.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]mailbox.Status, 0, len(s.monitors))
	for _, m := range s.monitors {
		statuses = append(statuses, m.Status())
	}
	return statuses
}
