package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a notification job.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusSending   JobStatus = "SENDING"
	StatusSent      JobStatus = "SENT"
	StatusDelivered JobStatus = "DELIVERED"
	StatusFailed    JobStatus = "FAILED"
	StatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions may occur.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func ParseJobStatusFromString(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the outbound delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelChatA Channel = "CHAT_A"
	ChannelChatB Channel = "CHAT_B"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelChatA, ChannelChatB:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Channels lists every supported channel.
func Channels() []Channel {
	return []Channel{ChannelSMS, ChannelChatA, ChannelChatB}
}

const (
	// MaxSMSContent is the rendered-content ceiling for SMS jobs.
	MaxSMSContent = 2000

	defaultMaxRetries = 5
)

// NotificationJob is one (recipient, channel, triggering message) delivery unit.
type NotificationJob struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	TenantID      string    `gorm:"type:varchar(36);not null;index"`
	BatchID       *string   `gorm:"type:uuid"`
	MessageID     *string   `gorm:"type:varchar(512)"`
	DedupKey      string    `gorm:"type:char(64);not null"`
	Channel       Channel   `gorm:"type:varchar(10);not null"`
	Recipient     string    `gorm:"type:varchar(255);not null"`
	TemplateName  string    `gorm:"type:varchar(128);not null"`
	Content       string    `gorm:"type:text;not null"`
	Status        JobStatus `gorm:"type:varchar(20);not null"`
	ProviderName  *string   `gorm:"type:varchar(64)"`
	ProviderMsgID *string   `gorm:"type:varchar(255)"`
	RetryCount    int       `gorm:"not null;default:0"`
	MaxRetries    int       `gorm:"not null;default:5"`
	ScheduledAt   *time.Time
	NextRetryAt   *time.Time
	SentAt        *time.Time
	DeliveredAt   *time.Time
	ErrorMessage  *string `gorm:"type:text"`
	CostUnits     *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DedupKeyFor derives the idempotency key guarding against duplicate
// notifications for the same trigger. Ad-hoc sends pass a caller-chosen
// trigger string instead of a mail Message-ID.
func DedupKeyFor(tenantID, trigger, recipient string, channel Channel) string {
	sum := sha256.Sum256([]byte(tenantID + "|" + trigger + "|" + recipient + "|" + string(channel)))
	return hex.EncodeToString(sum[:])
}

func (j *NotificationJob) Validate() error {
	if strings.TrimSpace(j.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(j.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.TrimSpace(j.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !j.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, j.Channel)
	}
	if j.MaxRetries > 0 && j.RetryCount > j.MaxRetries {
		return fmt.Errorf("%w: retry count %d exceeds max retries %d", ErrValidation, j.RetryCount, j.MaxRetries)
	}
	if j.Channel == ChannelSMS {
		if n := len([]rune(j.Content)); n > MaxSMSContent {
			return fmt.Errorf("%w: SMS content exceeds %d characters (got %d)", ErrValidation, MaxSMSContent, n)
		}
	}
	return nil
}

// DefaultMaxRetries returns the retry bound applied when a request omits one.
func DefaultMaxRetries() int { return defaultMaxRetries }
