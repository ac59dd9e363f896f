package domain

import "time"

// Holiday is a calendar closure. TenantID nil means a global holiday shared
// by every tenant. Recurring holidays repeat by month and day across years.
type Holiday struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	TenantID  *string `gorm:"type:varchar(36);index"`
	Name      string  `gorm:"type:varchar(255);not null"`
	Date      time.Time `gorm:"type:date;not null"`
	Recurring bool    `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (Holiday) TableName() string { return "holidays" }

// Matches reports whether the holiday excludes the given calendar date.
func (h *Holiday) Matches(date time.Time) bool {
	if h.Recurring {
		return h.Date.Month() == date.Month() && h.Date.Day() == date.Day()
	}
	return h.Date.Year() == date.Year() && h.Date.Month() == date.Month() && h.Date.Day() == date.Day()
}
