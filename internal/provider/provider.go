package provider

import (
	"context"
	"strings"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

// Message is a single outbound delivery request handed to a gateway.
type Message struct {
	TenantID  string
	Recipient string
	Content   string
	Sender    string
	Channel   domain.Channel
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return domain.ErrValidation
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return domain.ErrValidation
	}
	if strings.TrimSpace(m.Content) == "" {
		return domain.ErrValidation
	}
	if !m.Channel.IsValid() {
		return domain.ErrValidation
	}
	return nil
}

// Provider is the outbound delivery port for one gateway.
type Provider interface {
	Name() string
	Channel() domain.Channel
	Send(ctx context.Context, msg Message) (*ProviderResponse, error)
	// Probe checks that the gateway accepts our credentials and that the
	// configured sender identity is registered. Used by readiness checks.
	Probe(ctx context.Context) error
}

// ProviderResponse stores gateway call metadata for audit and persistence.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
