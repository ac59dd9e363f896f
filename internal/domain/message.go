package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageStatus represents the ingestion state of a mailbox item.
type MessageStatus string

const (
	MessageReceived  MessageStatus = "RECEIVED"
	MessageProcessed MessageStatus = "PROCESSED"
	MessageMatched   MessageStatus = "MATCHED"
	MessageFailed    MessageStatus = "FAILED"
	MessageIgnored   MessageStatus = "IGNORED"
)

func (s MessageStatus) String() string { return string(s) }

func (s MessageStatus) IsValid() bool {
	switch s {
	case MessageReceived, MessageProcessed, MessageMatched, MessageFailed, MessageIgnored:
		return true
	}
	return false
}

// EmailMessage is one ingested mailbox item. (tenant_id, message_id) is the
// idempotency boundary: re-delivery of the same message resolves to
// "already processed" instead of a duplicate row.
type EmailMessage struct {
	ID             string            `gorm:"type:uuid;primaryKey"`
	TenantID       string            `gorm:"type:varchar(36);not null;index"`
	UID            uint32            `gorm:"not null"` // protocol-assigned, scoped to the mailbox
	MessageID      string            `gorm:"type:varchar(512);not null"`
	FromAddress    string            `gorm:"type:varchar(255);not null"`
	FromName       string            `gorm:"type:varchar(255)"`
	Subject        string            `gorm:"type:text"`
	TextBody       string            `gorm:"type:text"`
	HTMLBody       string            `gorm:"type:text"`
	ReceivedAt     time.Time         `gorm:"not null"`
	IsOrder        bool              `gorm:"not null;default:false"`
	CompanyID      *string           `gorm:"type:uuid"`
	Status         MessageStatus     `gorm:"type:varchar(20);not null"`
	DecodeDegraded bool              `gorm:"not null;default:false"`
	Attachments    []EmailAttachment `gorm:"foreignKey:MessageRowID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (m *EmailMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("%w: message id is required", ErrValidation)
	}
	if strings.TrimSpace(m.FromAddress) == "" {
		return fmt.Errorf("%w: sender address is required", ErrValidation)
	}
	return nil
}

// EmailAttachment is attachment metadata only. Bodies are fetched on demand
// by the stored mailbox UID; the source message may have been deleted or
// moved by then, which surfaces as ErrNotFound at download time.
type EmailAttachment struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	TenantID     string `gorm:"type:varchar(36);not null;index"`
	MessageRowID string `gorm:"type:uuid;not null"`
	Filename     string `gorm:"type:varchar(512);not null"`
	ContentType  string `gorm:"type:varchar(128)"`
	SizeBytes    int64  `gorm:"not null;default:0"`
	MailboxUID   uint32 `gorm:"not null"`
	CreatedAt    time.Time
}
