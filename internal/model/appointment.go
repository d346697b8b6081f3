package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusCompleted,
		AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// Appointment is a booked visit. Price is the sum of the linked service
// prices at booking time and is never recomputed.
type Appointment struct {
	Base
	ClientID  *uuid.UUID        `db:"client_id" json:"client_id"`
	Date      string            `db:"date" json:"date"`
	Time      string            `db:"time" json:"time"`
	Status    AppointmentStatus `db:"status" json:"status"`
	Price     decimal.Decimal   `db:"price" json:"price"`
	Rating    *int              `db:"rating" json:"rating,omitempty"`
	Feedback  *string           `db:"feedback" json:"feedback,omitempty"`
	Notes     *string           `db:"notes" json:"notes,omitempty"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// AppointmentService links one appointment to one service.
type AppointmentService struct {
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	ServiceID     uuid.UUID `db:"service_id" json:"service_id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
}

// AppointmentPatch carries the columns a status transition may change.
type AppointmentPatch struct {
	Status   *AppointmentStatus `json:"status,omitempty"`
	Rating   *int               `json:"rating,omitempty"`
	Feedback *string            `json:"feedback,omitempty"`
	Notes    *string            `json:"notes,omitempty"`
}

// CreateAppointmentRequest is checked field by field by the booking
// coordinator, so only the notes length is bound here.
type CreateAppointmentRequest struct {
	ClientID   string   `json:"client_id"`
	ServiceIDs []string `json:"service_ids"`
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	Notes      *string  `json:"notes" binding:"omitempty,max=2000"`
}

type UpdateStatusRequest struct {
	Status   AppointmentStatus `json:"status" binding:"required,oneof=confirmed completed cancelled no_show"`
	Rating   *int              `json:"rating" binding:"omitempty,min=1,max=5"`
	Feedback *string           `json:"feedback" binding:"omitempty,max=2000"`
}

type RetryLinksRequest struct {
	ServiceIDs []string `json:"service_ids" binding:"required,min=1"`
}

// AgendaEntry is one row of the day view.
type AgendaEntry struct {
	ID           uuid.UUID       `json:"id"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	Price        decimal.Decimal `json:"price"`
	ClientName   string          `json:"client_name"`
	ServiceNames string          `json:"service_names"`
}

// HistoryRecord is a completed appointment as read from the store. Nil
// client name and empty service names mark references that were deleted.
type HistoryRecord struct {
	ID           uuid.UUID
	ClientID     *uuid.UUID
	Date         string
	Time         string
	Price        decimal.Decimal
	Rating       *int
	Feedback     *string
	ClientName   *string
	ServiceNames []string
}

// HistoryEntry is a completed appointment ready for display.
type HistoryEntry struct {
	ID           uuid.UUID       `json:"id"`
	ClientID     *uuid.UUID      `json:"client_id,omitempty"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	Price        decimal.Decimal `json:"price"`
	Rating       *int            `json:"rating,omitempty"`
	Feedback     *string         `json:"feedback,omitempty"`
	ClientName   string          `json:"client_name"`
	ServiceNames string          `json:"service_names"`
}
