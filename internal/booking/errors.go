package booking

import (
	"fmt"
	"net/http"

	"github.com/jwalitptl/agenda-api/internal/model"
)

// ValidationError reports a malformed request. Nothing was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

func (e *ValidationError) PublicMessage() string { return e.Error() }

// PersistenceError reports a store failure before anything was written.
type PersistenceError struct {
	Entity string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Entity, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) StatusCode() int { return http.StatusServiceUnavailable }

func (e *PersistenceError) PublicMessage() string {
	return fmt.Sprintf("Could not save the %s. Please try again.", e.Entity)
}

// PartialBookingError reports an appointment that was stored without its
// service links. The links can be written later with RetryLinks.
type PartialBookingError struct {
	Appointment *model.Appointment
	Err         error
}

func (e *PartialBookingError) Error() string {
	return fmt.Sprintf("appointment %s saved without services: %v", e.Appointment.ID, e.Err)
}

func (e *PartialBookingError) Unwrap() error { return e.Err }

func (e *PartialBookingError) StatusCode() int { return http.StatusMultiStatus }

func (e *PartialBookingError) PublicMessage() string {
	return "The appointment was saved but its services were not. Retry adding the services."
}

// NotFoundError reports a reference that does not resolve.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }

func (e *NotFoundError) PublicMessage() string { return e.Error() }
