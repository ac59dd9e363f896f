package domain

import "time"

// DispatchAttempt records a single provider call for a notification job,
// including failed primary attempts that preceded a successful failover.
type DispatchAttempt struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	TenantID      string  `gorm:"type:varchar(36);not null;index"`
	JobID         string  `gorm:"type:uuid;not null"`
	AttemptNumber int     `gorm:"not null"`
	ProviderName  string  `gorm:"type:varchar(64);not null"`
	Channel       Channel `gorm:"type:varchar(10);not null"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}
