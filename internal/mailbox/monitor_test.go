package mailbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

type fakeClient struct {
	mu           sync.Mutex
	connectFn    func(ctx context.Context) error
	searchFn     func(ctx context.Context) ([]uint32, error)
	fetchFn      func(ctx context.Context, uid uint32) ([]byte, time.Time, error)
	markSeenFn   func(ctx context.Context, uid uint32) error
	seen         []uint32
	logoutCalled bool
}

func (f *fakeClient) Connect(ctx context.Context) error {
	if f.connectFn != nil {
		return f.connectFn(ctx)
	}
	return nil
}

func (f *fakeClient) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx)
	}
	return nil, nil
}

func (f *fakeClient) FetchRaw(ctx context.Context, uid uint32) ([]byte, time.Time, error) {
	if f.fetchFn != nil {
		return f.fetchFn(ctx, uid)
	}
	return []byte(rawMessageFixture), time.Now(), nil
}

func (f *fakeClient) MarkSeen(ctx context.Context, uid uint32) error {
	if f.markSeenFn != nil {
		return f.markSeenFn(ctx, uid)
	}
	f.mu.Lock()
	f.seen = append(f.seen, uid)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) SearchHeader(ctx context.Context, key, value string) ([]uint32, error) {
	return nil, nil
}

func (f *fakeClient) Logout() error {
	f.mu.Lock()
	f.logoutCalled = true
	f.mu.Unlock()
	return nil
}

const rawMessageFixture = "Message-Id: <abc123@mail.example>\r\n" +
	"From: Hansol Trading <orders@hansol.example>\r\n" +
	"Subject: order confirmation\r\n" +
	"Date: Tue, 03 Mar 2026 10:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"please confirm the order\r\n"

func testSettings() domain.MailboxSettings {
	return domain.MailboxSettings{
		TenantID: "t1",
		Host:     "mail.example",
		Port:     993,
		TLS:      true,
		Username: "user",
		Password: "pass",
		Folder:   "INBOX",
	}
}

func testTenant(t *testing.T) tenant.Tenant {
	t.Helper()
	tn, err := tenant.New("t1", "UTC")
	if err != nil {
		t.Fatalf("tenant.New() error = %v", err)
	}
	return tn
}

func TestMonitorFetchesAndMarksSeenAfterHandler(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{}
	searched := false
	client.searchFn = func(ctx context.Context) ([]uint32, error) {
		if searched {
			cancel()
			return nil, nil
		}
		searched = true
		return []uint32{7}, nil
	}

	var handled []string
	handler := func(ctx context.Context, tn tenant.Tenant, msg *InboundMail) error {
		handled = append(handled, msg.MessageID)
		return nil
	}

	m, err := NewMonitor(testTenant(t), testSettings(),
		func(domain.MailboxSettings) Client { return client },
		handler, zap.NewNop(),
		WithPollInterval(time.Millisecond), WithBaseDelay(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(handled) != 1 || handled[0] != "<abc123@mail.example>" {
		t.Fatalf("handled = %v, want one message <abc123@mail.example>", handled)
	}
	if len(client.seen) != 1 || client.seen[0] != 7 {
		t.Fatalf("seen = %v, want [7]", client.seen)
	}
	if got := m.Status().State; got != StateStopped {
		t.Fatalf("state = %s, want STOPPED", got)
	}
}

func TestMonitorHandlerFailureLeavesUnseen(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{}
	calls := 0
	client.searchFn = func(ctx context.Context) ([]uint32, error) {
		calls++
		if calls > 1 {
			cancel()
			return nil, nil
		}
		return []uint32{9}, nil
	}

	handler := func(ctx context.Context, tn tenant.Tenant, msg *InboundMail) error {
		return errors.New("persist failed")
	}

	m, err := NewMonitor(testTenant(t), testSettings(),
		func(domain.MailboxSettings) Client { return client },
		handler, zap.NewNop(),
		WithPollInterval(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(client.seen) != 0 {
		t.Fatalf("seen = %v, handler failure must not mark seen", client.seen)
	}
}

func TestMonitorReconnectsAfterTransportError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connects := 0
	client := &fakeClient{}
	client.searchFn = func(ctx context.Context) ([]uint32, error) {
		if connects >= 2 {
			cancel()
			return nil, nil
		}
		return nil, errors.New("connection reset")
	}

	factory := func(domain.MailboxSettings) Client {
		connects++
		return client
	}

	m, err := NewMonitor(testTenant(t), testSettings(), factory,
		func(ctx context.Context, tn tenant.Tenant, msg *InboundMail) error { return nil },
		zap.NewNop(),
		WithPollInterval(time.Millisecond), WithBaseDelay(time.Millisecond), WithMaxReconnects(5),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if connects < 2 {
		t.Fatalf("connects = %d, want at least 2 (reconnect after transport error)", connects)
	}
}

func TestMonitorStopsAtReconnectBound(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		connectFn: func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	}

	m, err := NewMonitor(testTenant(t), testSettings(),
		func(domain.MailboxSettings) Client { return client },
		func(ctx context.Context, tn tenant.Tenant, msg *InboundMail) error { return nil },
		zap.NewNop(),
		WithBaseDelay(time.Millisecond), WithMaxReconnects(3),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	err = m.Run(context.Background())
	if !errors.Is(err, ErrMaxReconnect) {
		t.Fatalf("Run() error = %v, want ErrMaxReconnect", err)
	}
	if got := m.Status().State; got != StateError {
		t.Fatalf("state = %s, want ERROR", got)
	}
}

func TestMonitorAuthFailureIsFatal(t *testing.T) {
	t.Parallel()

	connects := 0
	client := &fakeClient{
		connectFn: func(ctx context.Context) error {
			connects++
			return ErrAuth
		},
	}

	m, err := NewMonitor(testTenant(t), testSettings(),
		func(domain.MailboxSettings) Client { return client },
		func(ctx context.Context, tn tenant.Tenant, msg *InboundMail) error { return nil },
		zap.NewNop(),
		WithBaseDelay(time.Millisecond), WithMaxReconnects(5),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	err = m.Run(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("Run() error = %v, want ErrAuth", err)
	}
	if connects != 1 {
		t.Fatalf("connects = %d, auth failure must not reconnect", connects)
	}
}

func TestMonitorVanishedMessageSkipped(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{}
	searched := false
	client.searchFn = func(ctx context.Context) ([]uint32, error) {
		if searched {
			cancel()
			return nil, nil
		}
		searched = true
		return []uint32{4}, nil
	}
	client.fetchFn = func(ctx context.Context, uid uint32) ([]byte, time.Time, error) {
		return nil, time.Time{}, ErrMessageGone
	}

	m, err := NewMonitor(testTenant(t), testSettings(),
		func(domain.MailboxSettings) Client { return client },
		func(ctx context.Context, tn tenant.Tenant, msg *InboundMail) error { return nil },
		zap.NewNop(),
		WithPollInterval(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, vanished message must not abort the session", err)
	}
}
