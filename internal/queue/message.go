package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

// JobMessage is the broker payload for notification processing. The row in
// the store is authoritative; the message only points at it.
type JobMessage struct {
	JobID    string         `json:"jobId"`
	TenantID string         `json:"tenantId"`
	Channel  domain.Channel `json:"channel"`
}

func (m JobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("tenantId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	return nil
}
