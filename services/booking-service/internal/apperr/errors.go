// Package apperr defines the error kinds shared by the store, the resolver
// and the booking coordinator. Callers inspect them with errors.As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrBookingInProgress is returned when a booking with the same idempotency
// key is still between reservation and local commit.
var ErrBookingInProgress = errors.New("booking with this idempotency key is in progress")

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity   string
	ID       string
	TenantID string
}

func (e *NotFoundError) Error() string {
	if e.TenantID != "" && e.Entity != "tenant" {
		return fmt.Sprintf("%s %q not found for tenant %q", e.Entity, e.ID, e.TenantID)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ConfigurationError means the tenant lacks the external calendar linkage
// needed for the operation. An administrator has to fix the tenant record.
type ConfigurationError struct {
	TenantID string
	Missing  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("tenant %q is not linked to a calendar: missing %s", e.TenantID, strings.Join(e.Missing, ", "))
}

// UpstreamError wraps any failure talking to the calendar provider.
type UpstreamError struct {
	Op         string
	TenantID   string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString("calendar provider ")
	b.WriteString(e.Op)
	switch {
	case e.Timeout:
		b.WriteString(": timed out")
	case e.StatusCode != 0:
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
		if e.Body != "" {
			b.WriteString(": ")
			b.WriteString(e.Body)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether repeating an idempotent request may succeed.
func (e *UpstreamError) Retryable() bool {
	if e.Timeout || e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NeedsReconfiguration reports whether the provider rejected the tenant's
// credentials.
func (e *UpstreamError) NeedsReconfiguration() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type SlotUnavailableError struct {
	TenantID string
	Date     string
	Time     string
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s %s is no longer available", e.Date, e.Time)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
