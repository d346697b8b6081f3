package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all owned records
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Date and time layouts used on the wire and in the store.
const (
	DateLayout        = "2006-01-02"
	TimeLayout        = "15:04"
	TimeLayoutSeconds = "15:04:05"
)

// Fallback labels rendered when a referenced record no longer resolves.
const (
	ClientNotFound  = "Client not found"
	ServiceNotFound = "Service not found"
)
