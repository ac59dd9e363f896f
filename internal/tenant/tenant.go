// Package tenant carries the active tenant through the pipeline as an
// explicit value. Nothing here is ambient: every repository and service
// method takes a Tenant parameter, and every query is filtered by it.
package tenant

import (
	"fmt"
	"strings"
	"time"
)

// Tenant identifies the isolation boundary for one customer account.
type Tenant struct {
	ID       string
	Location *time.Location
}

// New validates the id and resolves the tenant's calendar time zone.
// All date arithmetic happens in this location, not the storage zone.
func New(id, timezone string) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, fmt.Errorf("tenant id is required")
	}

	loc := time.UTC
	if tz := strings.TrimSpace(timezone); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return Tenant{}, fmt.Errorf("invalid tenant timezone %q: %w", timezone, err)
		}
		loc = parsed
	}

	return Tenant{ID: id, Location: loc}, nil
}

// In returns t converted to the tenant's local calendar.
func (t Tenant) In(ts time.Time) time.Time {
	if t.Location == nil {
		return ts.In(time.UTC)
	}
	return ts.In(t.Location)
}
