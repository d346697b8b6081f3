package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/session"
)

// ErrNotFound is returned when a lookup matches no row visible to the session.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// DirectoryStore holds clients and services. Lists are ordered by
	// creation time, newest first.
	DirectoryStore interface {
		ListClients(ctx context.Context, sess session.Session) ([]*model.Client, error)
		GetClient(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Client, error)
		CreateClient(ctx context.Context, sess session.Session, client *model.Client) error
		UpdateClient(ctx context.Context, sess session.Session, client *model.Client) error
		DeleteClient(ctx context.Context, sess session.Session, id uuid.UUID) error

		ListServices(ctx context.Context, sess session.Session) ([]*model.Service, error)
		GetService(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Service, error)
		CreateService(ctx context.Context, sess session.Session, service *model.Service) error
		UpdateService(ctx context.Context, sess session.Session, service *model.Service) error
		DeleteService(ctx context.Context, sess session.Session, id uuid.UUID) error
	}

	// PersistenceGateway is the durable store for appointments and their
	// service links.
	PersistenceGateway interface {
		InsertAppointment(ctx context.Context, sess session.Session, apt *model.Appointment) (*model.Appointment, error)
		InsertAppointmentServices(ctx context.Context, sess session.Session, links []model.AppointmentService) error
		// UpsertAppointmentServices writes links, ignoring pairs that already exist.
		UpsertAppointmentServices(ctx context.Context, sess session.Session, links []model.AppointmentService) error
		GetAppointment(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Appointment, error)
		UpdateAppointment(ctx context.Context, sess session.Session, id uuid.UUID, patch model.AppointmentPatch) (*model.Appointment, error)
	}

	// AtomicBooker is implemented by gateways that can write an appointment
	// and all of its links in one transaction.
	AtomicBooker interface {
		InsertBooking(ctx context.Context, sess session.Session, apt *model.Appointment, serviceIDs []uuid.UUID) (*model.Appointment, error)
	}

	// AgendaSource runs the server-side day aggregation. Rows are returned
	// undecoded.
	AgendaSource interface {
		AgendaForDay(ctx context.Context, sess session.Session, date string) ([]json.RawMessage, error)
	}

	// HistorySource lists completed appointments, newest date first.
	HistorySource interface {
		ListCompleted(ctx context.Context, sess session.Session, clientID *uuid.UUID) ([]*model.HistoryRecord, error)
		// DeleteCompleted removes a completed appointment. Any other status
		// yields ErrNotFound.
		DeleteCompleted(ctx context.Context, sess session.Session, id uuid.UUID) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
