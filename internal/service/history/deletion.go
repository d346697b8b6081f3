package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type DeletionState string

const (
	DeletionPending   DeletionState = "pending"
	DeletionConfirmed DeletionState = "confirmed"
	DeletionFailed    DeletionState = "failed"
)

// Deletion tracks one removal of a history entry. The entry is hidden while
// the deletion is pending and comes back if the store rejects it.
type Deletion struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	userID        uuid.UUID

	mu         sync.Mutex
	state      DeletionState
	err        string
	createdAt  time.Time
	resolvedAt *time.Time
	done       chan struct{}
}

// DeletionStatus is a point-in-time copy of a Deletion.
type DeletionStatus struct {
	ID            uuid.UUID     `json:"id"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	State         DeletionState `json:"state"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
}

func newDeletion(userID, appointmentID uuid.UUID) *Deletion {
	return &Deletion{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		userID:        userID,
		state:         DeletionPending,
		createdAt:     time.Now().UTC(),
		done:          make(chan struct{}),
	}
}

func (d *Deletion) Status() DeletionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DeletionStatus{
		ID:            d.ID,
		AppointmentID: d.AppointmentID,
		State:         d.state,
		Error:         d.err,
		CreatedAt:     d.createdAt,
		ResolvedAt:    d.resolvedAt,
	}
}

// Wait blocks until the deletion is resolved or ctx is done.
func (d *Deletion) Wait(ctx context.Context) (DeletionStatus, error) {
	select {
	case <-d.done:
		return d.Status(), nil
	case <-ctx.Done():
		return d.Status(), ctx.Err()
	}
}

func (d *Deletion) resolve(state DeletionState, reason string) {
	d.mu.Lock()
	now := time.Now().UTC()
	d.state = state
	d.err = reason
	d.resolvedAt = &now
	d.mu.Unlock()
	close(d.done)
}
