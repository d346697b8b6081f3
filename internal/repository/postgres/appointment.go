package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
)

// AppointmentRepository is the SQL persistence gateway for appointments.
type AppointmentRepository struct {
	BaseRepository
}

var (
	_ repository.PersistenceGateway = (*AppointmentRepository)(nil)
	_ repository.AtomicBooker       = (*AppointmentRepository)(nil)
)

func NewAppointmentRepository(base BaseRepository) *AppointmentRepository {
	return &AppointmentRepository{base}
}

const appointmentColumns = `id, user_id, client_id,
	to_char(date, 'YYYY-MM-DD') AS date,
	to_char(time, 'HH24:MI') AS time,
	status, price, rating, feedback, notes, created_at, updated_at`

const insertAppointment = `
	INSERT INTO appointments (
		user_id, client_id, date, time, status, price, notes
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING ` + appointmentColumns

const insertLinks = `
	INSERT INTO appointment_services (appointment_id, service_id, user_id)
	VALUES (:appointment_id, :service_id, :user_id)`

func insertArgs(sess session.Session, apt *model.Appointment) []interface{} {
	status := apt.Status
	if status == "" {
		status = model.AppointmentStatusScheduled
	}
	return []interface{}{sess.UserID, apt.ClientID, apt.Date, apt.Time, status, apt.Price, apt.Notes}
}

func (r *AppointmentRepository) InsertAppointment(ctx context.Context, sess session.Session, apt *model.Appointment) (_ *model.Appointment, err error) {
	defer func(start time.Time) { r.observe("insert_appointment", start, err) }(time.Now())

	var created model.Appointment
	if err = r.db.GetContext(ctx, &created, insertAppointment, insertArgs(sess, apt)...); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return &created, nil
}

func (r *AppointmentRepository) InsertAppointmentServices(ctx context.Context, sess session.Session, links []model.AppointmentService) (err error) {
	defer func(start time.Time) { r.observe("insert_links", start, err) }(time.Now())

	if len(links) == 0 {
		return nil
	}
	if _, err = r.db.NamedExecContext(ctx, insertLinks, ownedLinks(sess, links)); err != nil {
		return fmt.Errorf("failed to create appointment services: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) UpsertAppointmentServices(ctx context.Context, sess session.Session, links []model.AppointmentService) (err error) {
	defer func(start time.Time) { r.observe("upsert_links", start, err) }(time.Now())

	if len(links) == 0 {
		return nil
	}
	query := insertLinks + ` ON CONFLICT (appointment_id, service_id) DO NOTHING`
	if _, err = r.db.NamedExecContext(ctx, query, ownedLinks(sess, links)); err != nil {
		return fmt.Errorf("failed to upsert appointment services: %w", err)
	}
	return nil
}

// InsertBooking writes the appointment and its links in one transaction.
func (r *AppointmentRepository) InsertBooking(ctx context.Context, sess session.Session, apt *model.Appointment, serviceIDs []uuid.UUID) (_ *model.Appointment, err error) {
	defer func(start time.Time) { r.observe("insert_booking", start, err) }(time.Now())

	var created model.Appointment
	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &created, insertAppointment, insertArgs(sess, apt)...); err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		links := make([]model.AppointmentService, 0, len(serviceIDs))
		for _, id := range serviceIDs {
			links = append(links, model.AppointmentService{AppointmentID: created.ID, ServiceID: id})
		}
		if _, err := tx.NamedExecContext(ctx, insertLinks, ownedLinks(sess, links)); err != nil {
			return fmt.Errorf("failed to create appointment services: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND user_id = $2`

	var apt model.Appointment
	if err := r.db.GetContext(ctx, &apt, query, id, sess.UserID); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", notFound(err))
	}
	return &apt, nil
}

func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, sess session.Session, id uuid.UUID, patch model.AppointmentPatch) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = COALESCE($1, status),
			rating = COALESCE($2, rating),
			feedback = COALESCE($3, feedback),
			notes = COALESCE($4, notes),
			updated_at = NOW()
		WHERE id = $5 AND user_id = $6
		RETURNING ` + appointmentColumns

	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, patch.Status, patch.Rating, patch.Feedback, patch.Notes, id, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to update appointment: %w", notFound(err))
	}
	return &apt, nil
}

func ownedLinks(sess session.Session, links []model.AppointmentService) []model.AppointmentService {
	owned := make([]model.AppointmentService, len(links))
	for i, link := range links {
		link.UserID = sess.UserID
		owned[i] = link
	}
	return owned
}
