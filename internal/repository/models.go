package repository

import (
	"time"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

// JobModel is the persistence model for the notification_jobs table.
type JobModel struct {
	ID            string           `gorm:"type:uuid;primaryKey"`
	TenantID      string           `gorm:"type:varchar(36);not null;index"`
	BatchID       *string          `gorm:"type:uuid"`
	MessageID     *string          `gorm:"type:varchar(512)"`
	DedupKey      string           `gorm:"type:char(64);not null"`
	Channel       domain.Channel   `gorm:"type:varchar(10);not null"`
	Recipient     string           `gorm:"type:varchar(255);not null"`
	TemplateName  string           `gorm:"type:varchar(128);not null"`
	Content       string           `gorm:"type:text;not null"`
	Status        domain.JobStatus `gorm:"type:varchar(20);not null"`
	ProviderName  *string          `gorm:"type:varchar(64)"`
	ProviderMsgID *string          `gorm:"type:varchar(255)"`
	RetryCount    int              `gorm:"not null;default:0"`
	MaxRetries    int              `gorm:"not null;default:5"`
	ScheduledAt   *time.Time       `gorm:"type:timestamptz"`
	NextRetryAt   *time.Time
	SentAt        *time.Time
	DeliveredAt   *time.Time
	ErrorMessage  *string `gorm:"type:text"`
	CostUnits     *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (JobModel) TableName() string {
	return "notification_jobs"
}

// DispatchAttemptModel is the persistence model for dispatch_attempts.
type DispatchAttemptModel struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	TenantID      string         `gorm:"type:varchar(36);not null;index"`
	JobID         string         `gorm:"type:uuid;not null"`
	AttemptNumber int            `gorm:"not null"`
	ProviderName  string         `gorm:"type:varchar(64);not null"`
	Channel       domain.Channel `gorm:"type:varchar(10);not null"`
	StatusCode    *int           `gorm:"type:int"`
	ResponseBody  *string        `gorm:"type:text"`
	Error         *string        `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DispatchAttemptModel) TableName() string {
	return "dispatch_attempts"
}

// BatchModel is the persistence model for batches.
type BatchModel struct {
	ID           string             `gorm:"type:uuid;primaryKey"`
	TenantID     string             `gorm:"type:varchar(36);not null;index"`
	TotalCount   int                `gorm:"not null"`
	SuccessCount int                `gorm:"not null;default:0"`
	FailureCount int                `gorm:"not null;default:0"`
	Status       domain.BatchStatus `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// EmailMessageModel is the persistence model for email_messages.
type EmailMessageModel struct {
	ID             string               `gorm:"type:uuid;primaryKey"`
	TenantID       string               `gorm:"type:varchar(36);not null;index"`
	UID            uint32               `gorm:"not null"`
	MessageID      string               `gorm:"type:varchar(512);not null"`
	FromAddress    string               `gorm:"type:varchar(255);not null"`
	FromName       string               `gorm:"type:varchar(255)"`
	Subject        string               `gorm:"type:text"`
	TextBody       string               `gorm:"type:text"`
	HTMLBody       string               `gorm:"type:text"`
	ReceivedAt     time.Time            `gorm:"not null"`
	IsOrder        bool                 `gorm:"not null;default:false"`
	CompanyID      *string              `gorm:"type:uuid"`
	Status         domain.MessageStatus `gorm:"type:varchar(20);not null"`
	DecodeDegraded bool                 `gorm:"not null;default:false"`
	Attachments    []EmailAttachmentModel `gorm:"foreignKey:MessageRowID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (EmailMessageModel) TableName() string {
	return "email_messages"
}

// EmailAttachmentModel is the persistence model for email_attachments.
type EmailAttachmentModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	TenantID     string `gorm:"type:varchar(36);not null;index"`
	MessageRowID string `gorm:"type:uuid;not null;index"`
	Filename     string `gorm:"type:varchar(512);not null"`
	ContentType  string `gorm:"type:varchar(128)"`
	SizeBytes    int64  `gorm:"not null;default:0"`
	MailboxUID   uint32 `gorm:"not null"`
	CreatedAt    time.Time
}

func (EmailAttachmentModel) TableName() string {
	return "email_attachments"
}

func jobModelFromDomain(j *domain.NotificationJob) *JobModel {
	if j == nil {
		return nil
	}

	return &JobModel{
		ID:            j.ID,
		TenantID:      j.TenantID,
		BatchID:       j.BatchID,
		MessageID:     j.MessageID,
		DedupKey:      j.DedupKey,
		Channel:       j.Channel,
		Recipient:     j.Recipient,
		TemplateName:  j.TemplateName,
		Content:       j.Content,
		Status:        j.Status,
		ProviderName:  j.ProviderName,
		ProviderMsgID: j.ProviderMsgID,
		RetryCount:    j.RetryCount,
		MaxRetries:    j.MaxRetries,
		ScheduledAt:   j.ScheduledAt,
		NextRetryAt:   j.NextRetryAt,
		SentAt:        j.SentAt,
		DeliveredAt:   j.DeliveredAt,
		ErrorMessage:  j.ErrorMessage,
		CostUnits:     j.CostUnits,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

func jobModelToDomain(m *JobModel) *domain.NotificationJob {
	if m == nil {
		return nil
	}

	return &domain.NotificationJob{
		ID:            m.ID,
		TenantID:      m.TenantID,
		BatchID:       m.BatchID,
		MessageID:     m.MessageID,
		DedupKey:      m.DedupKey,
		Channel:       m.Channel,
		Recipient:     m.Recipient,
		TemplateName:  m.TemplateName,
		Content:       m.Content,
		Status:        m.Status,
		ProviderName:  m.ProviderName,
		ProviderMsgID: m.ProviderMsgID,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		ScheduledAt:   m.ScheduledAt,
		NextRetryAt:   m.NextRetryAt,
		SentAt:        m.SentAt,
		DeliveredAt:   m.DeliveredAt,
		ErrorMessage:  m.ErrorMessage,
		CostUnits:     m.CostUnits,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DispatchAttempt) *DispatchAttemptModel {
	if a == nil {
		return nil
	}

	return &DispatchAttemptModel{
		ID:            a.ID,
		TenantID:      a.TenantID,
		JobID:         a.JobID,
		AttemptNumber: a.AttemptNumber,
		ProviderName:  a.ProviderName,
		Channel:       a.Channel,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DispatchAttemptModel) *domain.DispatchAttempt {
	if m == nil {
		return nil
	}

	return &domain.DispatchAttempt{
		ID:            m.ID,
		TenantID:      m.TenantID,
		JobID:         m.JobID,
		AttemptNumber: m.AttemptNumber,
		ProviderName:  m.ProviderName,
		Channel:       m.Channel,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:           b.ID,
		TenantID:     b.TenantID,
		TotalCount:   b.TotalCount,
		SuccessCount: b.SuccessCount,
		FailureCount: b.FailureCount,
		Status:       b.Status,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:           m.ID,
		TenantID:     m.TenantID,
		TotalCount:   m.TotalCount,
		SuccessCount: m.SuccessCount,
		FailureCount: m.FailureCount,
		Status:       m.Status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func messageModelFromDomain(msg *domain.EmailMessage) *EmailMessageModel {
	if msg == nil {
		return nil
	}

	attachments := make([]EmailAttachmentModel, 0, len(msg.Attachments))
	for i := range msg.Attachments {
		a := &msg.Attachments[i]
		attachments = append(attachments, EmailAttachmentModel{
			ID:           a.ID,
			TenantID:     a.TenantID,
			MessageRowID: a.MessageRowID,
			Filename:     a.Filename,
			ContentType:  a.ContentType,
			SizeBytes:    a.SizeBytes,
			MailboxUID:   a.MailboxUID,
			CreatedAt:    a.CreatedAt,
		})
	}

	return &EmailMessageModel{
		ID:             msg.ID,
		TenantID:       msg.TenantID,
		UID:            msg.UID,
		MessageID:      msg.MessageID,
		FromAddress:    msg.FromAddress,
		FromName:       msg.FromName,
		Subject:        msg.Subject,
		TextBody:       msg.TextBody,
		HTMLBody:       msg.HTMLBody,
		ReceivedAt:     msg.ReceivedAt,
		IsOrder:        msg.IsOrder,
		CompanyID:      msg.CompanyID,
		Status:         msg.Status,
		DecodeDegraded: msg.DecodeDegraded,
		Attachments:    attachments,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
}

func messageModelToDomain(m *EmailMessageModel) *domain.EmailMessage {
	if m == nil {
		return nil
	}

	attachments := make([]domain.EmailAttachment, 0, len(m.Attachments))
	for i := range m.Attachments {
		a := &m.Attachments[i]
		attachments = append(attachments, domain.EmailAttachment{
			ID:           a.ID,
			TenantID:     a.TenantID,
			MessageRowID: a.MessageRowID,
			Filename:     a.Filename,
			ContentType:  a.ContentType,
			SizeBytes:    a.SizeBytes,
			MailboxUID:   a.MailboxUID,
			CreatedAt:    a.CreatedAt,
		})
	}

	return &domain.EmailMessage{
		ID:             m.ID,
		TenantID:       m.TenantID,
		UID:            m.UID,
		MessageID:      m.MessageID,
		FromAddress:    m.FromAddress,
		FromName:       m.FromName,
		Subject:        m.Subject,
		TextBody:       m.TextBody,
		HTMLBody:       m.HTMLBody,
		ReceivedAt:     m.ReceivedAt,
		IsOrder:        m.IsOrder,
		CompanyID:      m.CompanyID,
		Status:         m.Status,
		DecodeDegraded: m.DecodeDegraded,
		Attachments:    attachments,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
