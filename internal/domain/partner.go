package domain

import "time"

// Partner is a tenant's registered counterparty. Owned by the external CRUD
// layer; this pipeline only reads it for sender matching and region lookup.
type Partner struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	TenantID     string  `gorm:"type:varchar(36);not null;index"`
	Name         string  `gorm:"type:varchar(255);not null"`
	ContactEmail string  `gorm:"type:varchar(255);not null"`
	ContactPhone *string `gorm:"type:varchar(64)"`
	Region       string  `gorm:"type:varchar(64);not null"`
	Active       bool    `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Partner) TableName() string { return "partners" }
