package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryLabel is the coarse time-of-day bucket promised to the partner.
type DeliveryLabel string

const (
	LabelMorning   DeliveryLabel = "MORNING"
	LabelAfternoon DeliveryLabel = "AFTERNOON"
	LabelEvening   DeliveryLabel = "EVENING"
)

func (l DeliveryLabel) String() string { return string(l) }

func (l DeliveryLabel) IsValid() bool {
	switch l {
	case LabelMorning, LabelAfternoon, LabelEvening:
		return true
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// DeliveryRule holds the cutoff/lead-day policy for one (tenant, region).
// The canonical shape is a single cutoff with distinct before/after lead
// days and labels. Cutoff is "HH:MM" in the tenant's local calendar.
type DeliveryRule struct {
	ID              string        `gorm:"type:uuid;primaryKey"`
	TenantID        string        `gorm:"type:varchar(36);not null;index"`
	Region          string        `gorm:"type:varchar(64);not null"`
	Cutoff          string        `gorm:"type:varchar(5);not null"`
	LeadDaysBefore  int           `gorm:"not null"`
	LeadDaysAfter   int           `gorm:"not null"`
	LabelBefore     DeliveryLabel `gorm:"type:varchar(20);not null"`
	LabelAfter      DeliveryLabel `gorm:"type:varchar(20);not null"`
	WorkingDays     string        `gorm:"type:varchar(32);not null"` // e.g. "MON,TUE,WED,THU,FRI"
	ClosedDates     string        `gorm:"type:text"`                 // comma-separated YYYY-MM-DD
	ExcludeHolidays bool          `gorm:"not null;default:true"`
	Active          bool          `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (DeliveryRule) TableName() string { return "delivery_rules" }

func (r *DeliveryRule) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(r.Region) == "" {
		return fmt.Errorf("%w: region is required", ErrValidation)
	}
	if _, _, err := r.CutoffClock(); err != nil {
		return err
	}
	if r.LeadDaysBefore < 0 || r.LeadDaysAfter < 0 {
		return fmt.Errorf("%w: lead days must not be negative", ErrValidation)
	}
	if !r.LabelBefore.IsValid() || !r.LabelAfter.IsValid() {
		return fmt.Errorf("%w: invalid delivery label", ErrValidation)
	}
	if len(r.Workdays()) == 0 {
		return fmt.Errorf("%w: working day set is empty", ErrValidation)
	}
	return nil
}

// CutoffClock parses the cutoff into hour and minute.
func (r *DeliveryRule) CutoffClock() (hour, minute int, err error) {
	parsed, perr := time.Parse("15:04", strings.TrimSpace(r.Cutoff))
	if perr != nil {
		return 0, 0, fmt.Errorf("%w: invalid cutoff %q", ErrValidation, r.Cutoff)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// Workdays parses the working-day set. Unknown tokens are skipped.
func (r *DeliveryRule) Workdays() []time.Weekday {
	var days []time.Weekday
	for _, token := range strings.Split(r.WorkingDays, ",") {
		if day, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(token))]; ok {
			days = append(days, day)
		}
	}
	return days
}

// ClosedDateList parses tenant-specific one-off closed dates.
func (r *DeliveryRule) ClosedDateList() []time.Time {
	var dates []time.Time
	for _, token := range strings.Split(r.ClosedDates, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if d, err := time.Parse("2006-01-02", token); err == nil {
			dates = append(dates, d)
		}
	}
	return dates
}
