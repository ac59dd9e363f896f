package domain

import "time"

// BatchStatus represents the processing state of a bulk request.
type BatchStatus string

const (
	BatchStatusProcessing     BatchStatus = "PROCESSING"
	BatchStatusCompleted      BatchStatus = "COMPLETED"
	BatchStatusPartialFailure BatchStatus = "PARTIAL_FAILURE"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusProcessing, BatchStatusCompleted, BatchStatusPartialFailure:
		return true
	}
	return false
}

// Batch groups the jobs created by one bulk notification request. Partial
// failure is reported as a success/failure/total count triple, never as an
// all-or-nothing result.
type Batch struct {
	ID           string      `gorm:"type:uuid;primaryKey"`
	TenantID     string      `gorm:"type:varchar(36);not null;index"`
	TotalCount   int         `gorm:"not null"`
	SuccessCount int         `gorm:"not null;default:0"`
	FailureCount int         `gorm:"not null;default:0"`
	Status       BatchStatus `gorm:"type:varchar(20);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
