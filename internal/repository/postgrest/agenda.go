package postgrest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
)

// AgendaRepository reads the day view through the agenda_for_day RPC and the
// history through an embedded select.
type AgendaRepository struct {
	client *Client
}

var (
	_ repository.AgendaSource  = (*AgendaRepository)(nil)
	_ repository.HistorySource = (*AgendaRepository)(nil)
)

func NewAgendaRepository(client *Client) *AgendaRepository {
	return &AgendaRepository{client: client}
}

func (r *AgendaRepository) AgendaForDay(ctx context.Context, sess session.Session, date string) ([]json.RawMessage, error) {
	resp, err := r.client.RPC(ctx, sess, "agenda_for_day", map[string]interface{}{
		"p_date":    date,
		"p_user_id": sess.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load agenda: %w", err)
	}

	result := gjson.ParseBytes(resp.Body)
	if !result.IsArray() {
		return nil, fmt.Errorf("failed to load agenda: expected array, got %s", result.Type)
	}
	rows := []json.RawMessage{}
	result.ForEach(func(_, row gjson.Result) bool {
		rows = append(rows, json.RawMessage(row.Raw))
		return true
	})
	return rows, nil
}

type historyRow struct {
	ID       uuid.UUID       `json:"id"`
	ClientID *uuid.UUID      `json:"client_id"`
	Date     string          `json:"date"`
	Time     string          `json:"time"`
	Price    decimal.Decimal `json:"price"`
	Rating   *int            `json:"rating"`
	Feedback *string         `json:"feedback"`
	Client   *ownedName `json:"clients"`
	Links    []struct {
		Service *ownedName `json:"services"`
	} `json:"appointment_services"`
}

// ownedName is an embedded client or service. Rows of another user read as
// missing.
type ownedName struct {
	Name   string    `json:"name"`
	UserID uuid.UUID `json:"user_id"`
}

func (o *ownedName) nameFor(sess session.Session) (string, bool) {
	if o == nil || o.UserID != sess.UserID {
		return "", false
	}
	return o.Name, true
}

func (r *AgendaRepository) ListCompleted(ctx context.Context, sess session.Session, clientID *uuid.UUID) ([]*model.HistoryRecord, error) {
	q := r.client.From(sess, tableAppointments).
		Select("id,client_id,date,time,price,rating,feedback,clients(name,user_id),appointment_services(id,services(name,user_id))").
		Eq("user_id", sess.UserID).
		Eq("status", model.AppointmentStatusCompleted).
		Param("appointment_services.order", "id.asc").
		Order("date", false).
		Order("time", false)
	if clientID != nil {
		q = q.Eq("client_id", *clientID)
	}

	resp, err := q.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	var rows []historyRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	records := make([]*model.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		rec := &model.HistoryRecord{
			ID:           row.ID,
			ClientID:     row.ClientID,
			Date:         row.Date,
			Time:         trimSeconds(row.Time),
			Price:        row.Price,
			Rating:       row.Rating,
			Feedback:     row.Feedback,
			ServiceNames: make([]string, len(row.Links)),
		}
		if name, ok := row.Client.nameFor(sess); ok {
			rec.ClientName = &name
		}
		for i, link := range row.Links {
			if name, ok := link.Service.nameFor(sess); ok {
				rec.ServiceNames[i] = name
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteCompleted removes a completed appointment. Links go with it through
// the cascade.
func (r *AgendaRepository) DeleteCompleted(ctx context.Context, sess session.Session, id uuid.UUID) error {
	resp, err := r.client.From(sess, tableAppointments).
		Eq("id", id).
		Eq("user_id", sess.UserID).
		Eq("status", model.AppointmentStatusCompleted).
		Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	if resp.Rows() == 0 {
		return fmt.Errorf("failed to delete history record: %w", repository.ErrNotFound)
	}
	return nil
}
