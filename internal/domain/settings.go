package domain

import (
	"fmt"
	"strings"
	"time"
)

// MailboxSettings holds one tenant's mail-retrieval connection.
// Owned by the external settings layer; read-only here.
type MailboxSettings struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	TenantID     string `gorm:"type:varchar(36);not null;uniqueIndex"`
	Host         string `gorm:"type:varchar(255);not null"`
	Port         int    `gorm:"not null"`
	TLS          bool   `gorm:"not null;default:true"`
	Username     string `gorm:"type:varchar(255);not null"`
	Password     string `gorm:"type:varchar(255);not null"`
	Folder       string `gorm:"type:varchar(128);not null;default:'INBOX'"`
	PollSeconds  int    `gorm:"not null;default:60"`
	Timezone     string `gorm:"type:varchar(64);not null;default:'UTC'"`
	Active       bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (MailboxSettings) TableName() string { return "mailbox_settings" }

func (s *MailboxSettings) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("%w: mailbox host is required", ErrConfiguration)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%w: mailbox port %d is out of range", ErrConfiguration, s.Port)
	}
	if strings.TrimSpace(s.Username) == "" || strings.TrimSpace(s.Password) == "" {
		return fmt.Errorf("%w: mailbox credentials are required", ErrConfiguration)
	}
	return nil
}

// KeywordConfig is the tenant's order-detection keyword set. When disabled,
// every message from a registered partner address is treated as an order.
type KeywordConfig struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	TenantID  string `gorm:"type:varchar(36);not null;uniqueIndex"`
	Enabled   bool   `gorm:"not null;default:true"`
	Keywords  string `gorm:"type:text"` // comma-separated
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (KeywordConfig) TableName() string { return "keyword_configs" }

// KeywordList returns the configured keywords, trimmed, empties dropped.
func (k *KeywordConfig) KeywordList() []string {
	var out []string
	for _, token := range strings.Split(k.Keywords, ",") {
		if token = strings.TrimSpace(token); token != "" {
			out = append(out, token)
		}
	}
	return out
}

// ChannelRoute configures one tenant channel: which provider is primary,
// which provider (or fallback channel) to try when the primary fails.
type ChannelRoute struct {
	ID               string  `gorm:"type:uuid;primaryKey"`
	TenantID         string  `gorm:"type:varchar(36);not null;index"`
	Channel          Channel `gorm:"type:varchar(10);not null"`
	PrimaryProvider  string  `gorm:"type:varchar(64);not null"`
	FallbackProvider *string `gorm:"type:varchar(64)"`
	FallbackChannel  *Channel `gorm:"type:varchar(10)"`
	FailoverEnabled  bool    `gorm:"not null;default:true"`
	Enabled          bool    `gorm:"not null;default:true"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ChannelRoute) TableName() string { return "channel_routes" }

func (r *ChannelRoute) Validate() error {
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, r.Channel)
	}
	if strings.TrimSpace(r.PrimaryProvider) == "" {
		return fmt.Errorf("%w: primary provider is required", ErrConfiguration)
	}
	if r.FallbackChannel != nil && !r.FallbackChannel.IsValid() {
		return fmt.Errorf("%w: invalid fallback channel %q", ErrValidation, *r.FallbackChannel)
	}
	return nil
}
