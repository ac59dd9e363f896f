// Package mailbox maintains per-tenant mail sessions and surfaces newly
// arrived, unseen messages without marking them read until the downstream
// pipeline has persisted them.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

// State is the monitor's connection lifecycle position.
type State string

const (
	StateIdle         State = "IDLE"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateListening    State = "LISTENING"
	StateError        State = "ERROR"
	StateReconnecting State = "RECONNECTING"
	StateStopped      State = "STOPPED"
)

// ErrMaxReconnect marks the reconnect bound being exhausted. This is fatal
// for the tenant's monitor and requires operator or config intervention.
var ErrMaxReconnect = errors.New("mailbox reconnect bound reached")

// Handler consumes one fetched message. A nil return acknowledges the
// message and allows mark-seen; an error leaves the unseen flag untouched
// so a later scan retries it.
type Handler func(ctx context.Context, tn tenant.Tenant, msg *InboundMail) error

const (
	defaultBaseDelay     = 5 * time.Second
	defaultPollInterval  = time.Minute
	defaultMaxReconnects = 10
)

// Monitor runs one tenant's mailbox session. Monitors for different tenants
// are fully independent and share no mutable state.
type Monitor struct {
	tn            tenant.Tenant
	settings      domain.MailboxSettings
	factory       ClientFactory
	handler       Handler
	logger        *zap.Logger
	baseDelay     time.Duration
	pollInterval  time.Duration
	maxReconnects int
	onReconnect   func()

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
}

// MonitorOption customizes monitor behavior.
type MonitorOption func(*Monitor)

func WithBaseDelay(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.baseDelay = d
		}
	}
}

func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

func WithMaxReconnects(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.maxReconnects = n
		}
	}
}

// WithReconnectHook registers a callback fired on every reconnect attempt.
func WithReconnectHook(fn func()) MonitorOption {
	return func(m *Monitor) {
		m.onReconnect = fn
	}
}

func NewMonitor(
	tn tenant.Tenant,
	settings domain.MailboxSettings,
	factory ClientFactory,
	handler Handler,
	logger *zap.Logger,
	opts ...MonitorOption,
) (*Monitor, error) {
	if factory == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("message handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		tn:            tn,
		settings:      settings,
		factory:       factory,
		handler:       handler,
		logger:        logger.With(zap.String("tenantId", tn.ID)),
		baseDelay:     defaultBaseDelay,
		pollInterval:  defaultPollInterval,
		maxReconnects: defaultMaxReconnects,
		state:         StateIdle,
	}
	if settings.PollSeconds > 0 {
		m.pollInterval = time.Duration(settings.PollSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Status is a point-in-time snapshot for the dispatch-status API.
type Status struct {
	TenantID  string
	State     State
	Attempts  int
	LastError string
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{TenantID: m.tn.ID, State: m.state, Attempts: m.attempts}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Run drives the connection state machine until context cancellation or a
// fatal error. Auth/config rejections fail immediately; transport errors
// reconnect with linearly increasing backoff up to the configured bound.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			m.setState(StateStopped)
			return nil
		}

		m.setState(StateConnecting)
		client := m.factory(m.settings)

		if err := client.Connect(ctx); err != nil {
			if errors.Is(err, ErrAuth) || errors.Is(err, domain.ErrConfiguration) {
				m.recordError(err)
				m.setState(StateError)
				m.logger.Error("mailbox configuration rejected", zap.Error(err))
				return err
			}
			if backoffErr := m.backoff(ctx, err); backoffErr != nil {
				return backoffErr
			}
			continue
		}

		m.setState(StateConnected)
		m.resetAttempts()

		err := m.listen(ctx, client)
		_ = client.Logout()

		if ctx.Err() != nil {
			m.setState(StateStopped)
			return nil
		}
		if backoffErr := m.backoff(ctx, err); backoffErr != nil {
			return backoffErr
		}
	}
}

func (m *Monitor) listen(ctx context.Context, client Client) error {
	m.setState(StateListening)

	// Sweep immediately so messages that arrived while disconnected are
	// not delayed by a full poll interval.
	if err := m.sweep(ctx, client); err != nil {
		return err
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.sweep(ctx, client); err != nil {
				return err
			}
		}
	}
}

// sweep fetches every unseen message and hands it to the handler. The seen
// flag is set only after the handler persisted the message, so a crash
// between fetch and persist cannot lose the unseen marker.
func (m *Monitor) sweep(ctx context.Context, client Client) error {
	uids, err := client.SearchUnseen(ctx)
	if err != nil {
		return err
	}

	for _, uid := range uids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, internalDate, err := client.FetchRaw(ctx, uid)
		if err != nil {
			if errors.Is(err, ErrMessageGone) {
				m.logger.Warn("unseen message vanished before fetch", zap.Uint32("uid", uid))
				continue
			}
			return err
		}

		msg, err := ParseMessage(uid, raw, internalDate)
		if err != nil {
			// Unparseable source: surface and move on, the message stays
			// unseen for manual inspection.
			m.logger.Error("failed to parse message", zap.Uint32("uid", uid), zap.Error(err))
			continue
		}

		if err := m.handler(ctx, m.tn, msg); err != nil {
			m.logger.Error("message handler failed, leaving unseen",
				zap.Uint32("uid", uid),
				zap.String("messageId", msg.MessageID),
				zap.Error(err),
			)
			continue
		}

		if err := client.MarkSeen(ctx, uid); err != nil {
			return err
		}
	}

	return nil
}

func (m *Monitor) backoff(ctx context.Context, cause error) error {
	m.recordError(cause)

	m.mu.Lock()
	m.attempts++
	attempts := m.attempts
	m.mu.Unlock()

	if attempts > m.maxReconnects {
		m.setState(StateError)
		m.logger.Error("mailbox reconnect bound reached",
			zap.Int("attempts", attempts-1),
			zap.Error(cause),
		)
		return fmt.Errorf("%w after %d attempts: %v", ErrMaxReconnect, attempts-1, cause)
	}

	m.setState(StateReconnecting)
	if m.onReconnect != nil {
		m.onReconnect()
	}
	delay := time.Duration(attempts) * m.baseDelay
	m.logger.Warn("mailbox transport error, reconnecting",
		zap.Int("attempt", attempts),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		m.setState(StateStopped)
		return nil
	case <-timer.C:
		return nil
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Monitor) resetAttempts() {
	m.mu.Lock()
	m.attempts = 0
	m.lastErr = nil
	m.mu.Unlock()
}

func (m *Monitor) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
