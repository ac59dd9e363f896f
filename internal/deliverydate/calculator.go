// Package deliverydate converts an order timestamp and a partner region into
// a promised delivery date and time-of-day bucket, honoring per-region
// cutoff times, lead days, working-day sets, and holidays.
package deliverydate

import (
	"fmt"
	"time"

	"github.com/rickar/cal/v2"

	"github.com/kursadbilgin/order-relay/internal/domain"
	"github.com/kursadbilgin/order-relay/internal/tenant"
)

// maxAdvanceDays bounds the working-day advance loop. A rule whose
// working-day/holiday configuration never yields an eligible day within a
// year is a configuration error, not an infinite loop.
const maxAdvanceDays = 370

// Result is the promised delivery for one order.
type Result struct {
	Date        time.Time
	Label       domain.DeliveryLabel
	AfterCutoff bool
}

type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Promise computes the delivery promise for an order placed at orderedAt.
// All date arithmetic happens in the tenant's local calendar. A region
// without an active rule fails closed with ErrConfiguration.
func (c *Calculator) Promise(tn tenant.Tenant, orderedAt time.Time, rule *domain.DeliveryRule, holidays []domain.Holiday) (Result, error) {
	if rule == nil || !rule.Active {
		return Result{}, fmt.Errorf("%w: no active delivery rule for region", domain.ErrConfiguration)
	}
	if err := rule.Validate(); err != nil {
		return Result{}, err
	}

	cutoffHour, cutoffMinute, err := rule.CutoffClock()
	if err != nil {
		return Result{}, err
	}

	local := tn.In(orderedAt)

	// The after-cutoff window is [cutoff, midnight): an order at exactly
	// the cutoff minute takes the after-cutoff lead days.
	afterCutoff := local.Hour()*60+local.Minute() >= cutoffHour*60+cutoffMinute

	leadDays := rule.LeadDaysBefore
	label := rule.LabelBefore
	if afterCutoff {
		leadDays = rule.LeadDaysAfter
		label = rule.LabelAfter
	}

	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	date = date.AddDate(0, 0, leadDays)

	calendar := buildCalendar(rule, holidays)
	for i := 0; ; i++ {
		if i >= maxAdvanceDays {
			return Result{}, fmt.Errorf("%w: no eligible working day within %d days for region %q", domain.ErrConfiguration, maxAdvanceDays, rule.Region)
		}
		if calendar.IsWorkday(date) {
			break
		}
		date = date.AddDate(0, 0, 1)
	}

	return Result{Date: date, Label: label, AfterCutoff: afterCutoff}, nil
}

func buildCalendar(rule *domain.DeliveryRule, holidays []domain.Holiday) *cal.BusinessCalendar {
	calendar := cal.NewBusinessCalendar()
	for day := time.Sunday; day <= time.Saturday; day++ {
		calendar.SetWorkday(day, false)
	}
	for _, day := range rule.Workdays() {
		calendar.SetWorkday(day, true)
	}

	if rule.ExcludeHolidays {
		for i := range holidays {
			calendar.AddHoliday(toCalHoliday(&holidays[i]))
		}
	}

	// Tenant-specific closed dates always apply, holiday setting or not.
	for _, closed := range rule.ClosedDateList() {
		calendar.AddHoliday(&cal.Holiday{
			Name:      "closed",
			Type:      cal.ObservancePublic,
			Month:     closed.Month(),
			Day:       closed.Day(),
			Func:      cal.CalcDayOfMonth,
			StartYear: closed.Year(),
			EndYear:   closed.Year(),
		})
	}

	return calendar
}

func toCalHoliday(h *domain.Holiday) *cal.Holiday {
	holiday := &cal.Holiday{
		Name:  h.Name,
		Type:  cal.ObservancePublic,
		Month: h.Date.Month(),
		Day:   h.Date.Day(),
		Func:  cal.CalcDayOfMonth,
	}
	if !h.Recurring {
		holiday.StartYear = h.Date.Year()
		holiday.EndYear = h.Date.Year()
	}
	return holiday
}
