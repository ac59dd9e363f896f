package domain

import "errors"

var (
	// ErrValidation marks client/input errors. Wrapped with %w and detail.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks lookups that resolved to no row for the tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks state transitions rejected by a status guard,
	// e.g. cancelling a job that is already SENDING or terminal.
	ErrConflict = errors.New("conflict")

	// ErrConfiguration marks operator-fixable setup problems: missing
	// delivery rule, invalid mailbox credentials, runaway calendar rules.
	// These fail fast and are never silently defaulted.
	ErrConfiguration = errors.New("configuration error")

	// ErrDuplicate marks idempotency-key collisions. Callers treat it as
	// a successful no-op and load the existing row instead.
	ErrDuplicate = errors.New("duplicate")
)
