package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

type stubProvider struct {
	name     string
	channel  domain.Channel
	probeErr error
}

func (s *stubProvider) Name() string            { return s.name }
func (s *stubProvider) Channel() domain.Channel { return s.channel }
func (s *stubProvider) Probe(ctx context.Context) error {
	return s.probeErr
}
func (s *stubProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	return &ProviderResponse{StatusCode: 200}, nil
}

func strPtr(s string) *string              { return &s }
func chPtr(c domain.Channel) *domain.Channel { return &c }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	for _, p := range []Provider{
		&stubProvider{name: "sms_gateway", channel: domain.ChannelSMS},
		&stubProvider{name: "sms_backup", channel: domain.ChannelSMS},
		&stubProvider{name: "chat_a", channel: domain.ChannelChatA},
	} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p.Name(), err)
		}
	}
	return r
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	err := r.Register(&stubProvider{name: "sms_gateway", channel: domain.ChannelSMS})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Register() error = %v, want ErrConflict", err)
	}
}

func TestRegistryChainOrdering(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	route := domain.ChannelRoute{
		TenantID:         "t1",
		Channel:          domain.ChannelSMS,
		PrimaryProvider:  "sms_gateway",
		FallbackProvider: strPtr("sms_backup"),
		FallbackChannel:  chPtr(domain.ChannelChatA),
		FailoverEnabled:  true,
		Enabled:          true,
	}

	steps, err := r.Chain(route)
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}

	wantNames := []string{"sms_gateway", "sms_backup", "chat_a"}
	if len(steps) != len(wantNames) {
		t.Fatalf("len(steps) = %d, want %d", len(steps), len(wantNames))
	}
	for i, want := range wantNames {
		if steps[i].Provider.Name() != want {
			t.Errorf("steps[%d] = %s, want %s", i, steps[i].Provider.Name(), want)
		}
	}
	if steps[2].Channel != domain.ChannelChatA {
		t.Errorf("fallback channel step channel = %s, want CHAT_A", steps[2].Channel)
	}
}

func TestRegistryChainFailoverDisabled(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	route := domain.ChannelRoute{
		TenantID:         "t1",
		Channel:          domain.ChannelSMS,
		PrimaryProvider:  "sms_gateway",
		FallbackProvider: strPtr("sms_backup"),
		FailoverEnabled:  false,
		Enabled:          true,
	}

	steps, err := r.Chain(route)
	if err != nil {
		t.Fatalf("Chain() error = %v", err)
	}
	if len(steps) != 1 || steps[0].Provider.Name() != "sms_gateway" {
		t.Fatalf("steps = %v, want only the primary provider", steps)
	}
}

func TestRegistryChainDisabledRoute(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	_, err := r.Chain(domain.ChannelRoute{
		TenantID:        "t1",
		Channel:         domain.ChannelSMS,
		PrimaryProvider: "sms_gateway",
		Enabled:         false,
	})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Chain() error = %v, want ErrConfiguration", err)
	}
}

func TestRegistryChainUnknownProvider(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	_, err := r.Chain(domain.ChannelRoute{
		TenantID:        "t1",
		Channel:         domain.ChannelSMS,
		PrimaryProvider: "missing",
		Enabled:         true,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Chain() error = %v, want ErrNotFound", err)
	}
}

func TestRegistryProbeAll(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(&stubProvider{name: "chat_a", channel: domain.ChannelChatA}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&stubProvider{name: "sms_gateway", channel: domain.ChannelSMS, probeErr: errors.New("balance check failed")}); err != nil {
		t.Fatal(err)
	}

	results := r.ProbeAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Name != "chat_a" || !results[0].Healthy {
		t.Errorf("results[0] = %+v, want healthy chat_a", results[0])
	}
	if results[1].Name != "sms_gateway" || results[1].Healthy || results[1].Error == "" {
		t.Errorf("results[1] = %+v, want unhealthy sms_gateway with error", results[1])
	}
}
