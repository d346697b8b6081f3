package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
)

// AgendaRepository serves the day view and the completed history.
type AgendaRepository struct {
	BaseRepository
}

var (
	_ repository.AgendaSource  = (*AgendaRepository)(nil)
	_ repository.HistorySource = (*AgendaRepository)(nil)
)

func NewAgendaRepository(base BaseRepository) *AgendaRepository {
	return &AgendaRepository{base}
}

// AgendaForDay calls the agenda_for_day function and returns each row as
// its JSON object.
func (r *AgendaRepository) AgendaForDay(ctx context.Context, sess session.Session, date string) (_ []json.RawMessage, err error) {
	defer func(start time.Time) { r.observe("agenda_for_day", start, err) }(time.Now())

	rows := []json.RawMessage{}
	query := `SELECT row_to_json(a) FROM agenda_for_day($1, $2) AS a`
	if err = r.db.SelectContext(ctx, &rows, query, date, sess.UserID); err != nil {
		return nil, fmt.Errorf("failed to load agenda: %w", err)
	}
	return rows, nil
}

func (r *AgendaRepository) ListCompleted(ctx context.Context, sess session.Session, clientID *uuid.UUID) (_ []*model.HistoryRecord, err error) {
	defer func(start time.Time) { r.observe("list_completed", start, err) }(time.Now())

	query := `
		SELECT a.id, a.client_id,
			to_char(a.date, 'YYYY-MM-DD'), to_char(a.time, 'HH24:MI'),
			a.price, a.rating, a.feedback, c.name,
			COALESCE(array_agg(s.name ORDER BY l.id) FILTER (WHERE l.id IS NOT NULL), '{}')
		FROM appointments a
		LEFT JOIN clients c ON c.id = a.client_id AND c.user_id = a.user_id
		LEFT JOIN appointment_services l ON l.appointment_id = a.id
		LEFT JOIN services s ON s.id = l.service_id AND s.user_id = a.user_id
		WHERE a.user_id = $1
			AND a.status = 'completed'
			AND ($2::uuid IS NULL OR a.client_id = $2)
		GROUP BY a.id, c.name
		ORDER BY a.date DESC, a.time DESC`

	rows, err := r.db.QueryxContext(ctx, query, sess.UserID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	records := []*model.HistoryRecord{}
	for rows.Next() {
		var (
			rec   model.HistoryRecord
			names []sql.NullString
		)
		if err = rows.Scan(
			&rec.ID, &rec.ClientID, &rec.Date, &rec.Time,
			&rec.Price, &rec.Rating, &rec.Feedback, &rec.ClientName,
			pq.Array(&names),
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.ServiceNames = make([]string, len(names))
		for i, n := range names {
			rec.ServiceNames[i] = n.String
		}
		records = append(records, &rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// DeleteCompleted removes a completed appointment and its links.
func (r *AgendaRepository) DeleteCompleted(ctx context.Context, sess session.Session, id uuid.UUID) (err error) {
	defer func(start time.Time) { r.observe("delete_completed", start, err) }(time.Now())

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM appointments WHERE id = $1 AND user_id = $2 AND status = 'completed'`,
		id, sess.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	if err = expectAffected(result); err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	return nil
}
