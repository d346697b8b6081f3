package postgrest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
)

// AppointmentRepository writes appointments and links with separate
// requests. Link retries are idempotent on (appointment_id, service_id).
type AppointmentRepository struct {
	client *Client
}

var _ repository.PersistenceGateway = (*AppointmentRepository)(nil)

func NewAppointmentRepository(client *Client) *AppointmentRepository {
	return &AppointmentRepository{client: client}
}

func (r *AppointmentRepository) InsertAppointment(ctx context.Context, sess session.Session, apt *model.Appointment) (*model.Appointment, error) {
	status := apt.Status
	if status == "" {
		status = model.AppointmentStatusScheduled
	}
	row := map[string]interface{}{
		"user_id":   sess.UserID,
		"client_id": apt.ClientID,
		"date":      apt.Date,
		"time":      apt.Time,
		"status":    status,
		"price":     apt.Price,
		"notes":     apt.Notes,
	}
	resp, err := r.client.From(sess, tableAppointments).Insert(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	var created model.Appointment
	if err := decodeFirst(resp, &created); err != nil {
		return nil, err
	}
	return normalize(&created), nil
}

func (r *AppointmentRepository) InsertAppointmentServices(ctx context.Context, sess session.Session, links []model.AppointmentService) error {
	if len(links) == 0 {
		return nil
	}
	if _, err := r.client.From(sess, tableAppointmentServices).Insert(ctx, ownedLinks(sess, links)); err != nil {
		return fmt.Errorf("failed to create appointment services: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) UpsertAppointmentServices(ctx context.Context, sess session.Session, links []model.AppointmentService) error {
	if len(links) == 0 {
		return nil
	}
	_, err := r.client.From(sess, tableAppointmentServices).
		OnConflict("appointment_id,service_id").
		Upsert(ctx, ownedLinks(sess, links))
	if err != nil {
		return fmt.Errorf("failed to upsert appointment services: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Appointment, error) {
	resp, err := r.client.From(sess, tableAppointments).
		Select("*").
		Eq("id", id).
		Eq("user_id", sess.UserID).
		Single().
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	var apt model.Appointment
	if err := resp.JSON(&apt); err != nil {
		return nil, fmt.Errorf("failed to decode appointment: %w", err)
	}
	return normalize(&apt), nil
}

func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, sess session.Session, id uuid.UUID, patch model.AppointmentPatch) (*model.Appointment, error) {
	resp, err := r.client.From(sess, tableAppointments).
		Eq("id", id).
		Eq("user_id", sess.UserID).
		Update(ctx, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}

	var apt model.Appointment
	if err := decodeFirst(resp, &apt); err != nil {
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	return normalize(&apt), nil
}

func ownedLinks(sess session.Session, links []model.AppointmentService) []model.AppointmentService {
	owned := make([]model.AppointmentService, len(links))
	for i, link := range links {
		link.UserID = sess.UserID
		owned[i] = link
	}
	return owned
}

// normalize trims the seconds PostgREST renders for time columns.
func normalize(apt *model.Appointment) *model.Appointment {
	apt.Time = trimSeconds(apt.Time)
	return apt
}

func trimSeconds(t string) string {
	if strings.Count(t, ":") == 2 {
		return t[:strings.LastIndex(t, ":")]
	}
	return t
}
