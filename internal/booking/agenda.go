package booking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/pkg/validator"
)

var validate = validator.New()

// agendaRow is the schema every agenda_for_day row must satisfy.
type agendaRow struct {
	ID           string  `json:"id" validate:"required,uuid"`
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	Time         string  `json:"time" validate:"required"`
	Price        string  `json:"price" validate:"required"`
	ClientName   *string `json:"client_name"`
	ServiceNames *string `json:"service_names"`
}

// RejectedRow is an agenda row dropped at decode time.
type RejectedRow struct {
	Index  int             `json:"index"`
	Reason string          `json:"reason"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// AgendaView is the decoded day agenda.
type AgendaView struct {
	Date     string              `json:"date"`
	Entries  []model.AgendaEntry `json:"entries"`
	Rejected []RejectedRow       `json:"rejected,omitempty"`
}

// decodeAgendaRow checks the shape of one row and maps it to an entry.
// Missing client and service names become fallback labels.
func decodeAgendaRow(raw json.RawMessage) (model.AgendaEntry, error) {
	if !gjson.ValidBytes(raw) {
		return model.AgendaEntry{}, fmt.Errorf("not valid JSON")
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return model.AgendaEntry{}, fmt.Errorf("expected object, got %s", obj.Type)
	}

	var row agendaRow
	var err error
	if row.ID, err = stringField(obj, "id"); err != nil {
		return model.AgendaEntry{}, err
	}
	if row.Date, err = stringField(obj, "date"); err != nil {
		return model.AgendaEntry{}, err
	}
	if row.Time, err = stringField(obj, "time"); err != nil {
		return model.AgendaEntry{}, err
	}
	price := obj.Get("price")
	switch price.Type {
	case gjson.Number:
		row.Price = price.Raw
	case gjson.String:
		row.Price = price.Str
	default:
		return model.AgendaEntry{}, fmt.Errorf("price: expected number, got %s", price.Type)
	}
	if row.ClientName, err = optionalString(obj, "client_name"); err != nil {
		return model.AgendaEntry{}, err
	}
	if row.ServiceNames, err = optionalString(obj, "service_names"); err != nil {
		return model.AgendaEntry{}, err
	}

	if err := validate.Validate(row); err != nil {
		return model.AgendaEntry{}, err
	}

	clock, err := parseClock(row.Time)
	if err != nil {
		return model.AgendaEntry{}, fmt.Errorf("time: %w", err)
	}
	amount, err := decimal.NewFromString(row.Price)
	if err != nil {
		return model.AgendaEntry{}, fmt.Errorf("price: %w", err)
	}
	if amount.IsNegative() {
		return model.AgendaEntry{}, fmt.Errorf("price: must not be negative")
	}

	entry := model.AgendaEntry{
		ID:           uuid.MustParse(row.ID),
		Date:         row.Date,
		Time:         clock,
		Price:        amount,
		ClientName:   model.ClientNotFound,
		ServiceNames: model.ServiceNotFound,
	}
	if row.ClientName != nil && strings.TrimSpace(*row.ClientName) != "" {
		entry.ClientName = *row.ClientName
	}
	if row.ServiceNames != nil && strings.TrimSpace(*row.ServiceNames) != "" {
		entry.ServiceNames = *row.ServiceNames
	}
	return entry, nil
}

func stringField(obj gjson.Result, key string) (string, error) {
	v := obj.Get(key)
	if v.Type != gjson.String {
		return "", fmt.Errorf("%s: expected string, got %s", key, v.Type)
	}
	return v.Str, nil
}

func optionalString(obj gjson.Result, key string) (*string, error) {
	v := obj.Get(key)
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.String:
		s := v.Str
		return &s, nil
	}
	return nil, fmt.Errorf("%s: expected string or null, got %s", key, v.Type)
}

// parseClock accepts HH:MM and HH:MM:SS and renders HH:MM.
func parseClock(s string) (string, error) {
	for _, layout := range []string{model.TimeLayout, model.TimeLayoutSeconds} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(model.TimeLayout), nil
		}
	}
	return "", fmt.Errorf("%q is not HH:MM", s)
}
