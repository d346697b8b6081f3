// Package booking creates appointments together with their service links and
// serves the day agenda.
package booking

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/service/event"
	"github.com/jwalitptl/agenda-api/internal/session"
	apperrors "github.com/jwalitptl/agenda-api/pkg/errors"
	"github.com/jwalitptl/agenda-api/pkg/logger"
	"github.com/jwalitptl/agenda-api/pkg/metrics"
)

// Request is a booking as submitted by the caller.
type Request struct {
	ClientID   string
	ServiceIDs []string
	Date       string
	Time       string
	Notes      *string
}

// Result is a stored booking.
type Result struct {
	Appointment  *model.Appointment `json:"appointment"`
	LinksWritten int                `json:"links_written"`
}

// ClientLookup resolves a client id within the session's directory.
type ClientLookup interface {
	GetClient(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Client, error)
}

type Coordinator struct {
	gateway repository.PersistenceGateway
	clients ClientLookup
	agenda  repository.AgendaSource
	events  event.Emitter
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewCoordinator(
	gateway repository.PersistenceGateway,
	clients ClientLookup,
	agenda repository.AgendaSource,
	events event.Emitter,
	m *metrics.Metrics,
	log *logger.Logger,
) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = event.NewLogEmitter(log)
	}
	return &Coordinator{
		gateway: gateway,
		clients: clients,
		agenda:  agenda,
		events:  events,
		metrics: m,
		log:     log.Component("booking"),
	}
}

// CreateAppointment validates req, prices it against services and stores the
// appointment and one link per service.
//
// The client must belong to the session's directory. services is the
// caller's current directory snapshot. Ids missing from it are booked at
// zero. When the gateway cannot write both parts atomically
// and the link write fails, the stored appointment is returned inside a
// *PartialBookingError.
func (c *Coordinator) CreateAppointment(ctx context.Context, sess session.Session, req Request, services []*model.Service) (*Result, error) {
	if !sess.Valid() {
		return nil, apperrors.Unauthorized(session.ErrNoSession)
	}

	clientID, serviceIDs, date, clock, err := validateRequest(req)
	if err != nil {
		c.metrics.BookingResult(metrics.ResultValidation)
		return nil, err
	}
	if err := c.resolveClient(ctx, sess, clientID); err != nil {
		return nil, err
	}

	apt := &model.Appointment{
		ClientID: &clientID,
		Date:     date,
		Time:     clock,
		Status:   model.AppointmentStatusScheduled,
		Price:    c.totalPrice(serviceIDs, services),
		Notes:    req.Notes,
	}

	if booker, ok := c.gateway.(repository.AtomicBooker); ok {
		created, err := booker.InsertBooking(ctx, sess, apt, serviceIDs)
		if err != nil {
			c.metrics.BookingResult(metrics.ResultPersistence)
			c.log.Error(err, "booking failed", "user_id", sess.UserID.String())
			return nil, &PersistenceError{Entity: "appointment", Err: err}
		}
		return c.booked(ctx, sess, created, len(serviceIDs)), nil
	}

	created, err := c.gateway.InsertAppointment(ctx, sess, apt)
	if err != nil {
		c.metrics.BookingResult(metrics.ResultPersistence)
		c.log.Error(err, "appointment insert failed", "user_id", sess.UserID.String())
		return nil, &PersistenceError{Entity: "appointment", Err: err}
	}

	if err := c.gateway.InsertAppointmentServices(ctx, sess, linksFor(created.ID, serviceIDs)); err != nil {
		c.metrics.BookingResult(metrics.ResultPartial)
		c.log.Error(err, "appointment stored without services",
			"appointment_id", created.ID.String(), "services", len(serviceIDs))
		c.emit(ctx, sess, model.EventAppointmentPartial, map[string]interface{}{
			"appointment_id": created.ID,
			"service_ids":    serviceIDs,
		})
		return nil, &PartialBookingError{Appointment: created, Err: err}
	}

	return c.booked(ctx, sess, created, len(serviceIDs)), nil
}

func (c *Coordinator) booked(ctx context.Context, sess session.Session, apt *model.Appointment, links int) *Result {
	c.metrics.BookingResult(metrics.ResultCreated)
	c.emit(ctx, sess, model.EventAppointmentBooked, apt)
	return &Result{Appointment: apt, LinksWritten: links}
}

// RetryLinks writes the service links of an existing appointment. Links that
// already exist are left alone, so it is safe to call repeatedly.
func (c *Coordinator) RetryLinks(ctx context.Context, sess session.Session, appointmentID uuid.UUID, rawServiceIDs []string) (*Result, error) {
	if !sess.Valid() {
		return nil, apperrors.Unauthorized(session.ErrNoSession)
	}

	serviceIDs, err := parseServiceIDs(rawServiceIDs)
	if err != nil {
		return nil, err
	}

	apt, err := c.gateway.GetAppointment(ctx, sess, appointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "appointment", ID: appointmentID.String()}
		}
		return nil, &PersistenceError{Entity: "appointment", Err: err}
	}

	if err := c.gateway.UpsertAppointmentServices(ctx, sess, linksFor(apt.ID, serviceIDs)); err != nil {
		c.metrics.LinkRetry("error")
		c.log.Error(err, "link retry failed", "appointment_id", apt.ID.String())
		return nil, &PersistenceError{Entity: "appointment services", Err: err}
	}
	c.metrics.LinkRetry("success")
	c.emit(ctx, sess, model.EventAppointmentLinked, map[string]interface{}{
		"appointment_id": apt.ID,
		"service_ids":    serviceIDs,
	})

	return &Result{Appointment: apt, LinksWritten: len(serviceIDs)}, nil
}

// Agenda returns the appointments of date ordered by time. Rows that fail
// the schema are reported in Rejected instead of failing the listing.
func (c *Coordinator) Agenda(ctx context.Context, sess session.Session, date string) (*AgendaView, error) {
	if !sess.Valid() {
		return nil, apperrors.Unauthorized(session.ErrNoSession)
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	rows, err := c.agenda.AgendaForDay(ctx, sess, date)
	if err != nil {
		c.log.Error(err, "agenda query failed", "date", date)
		return nil, &PersistenceError{Entity: "agenda", Err: err}
	}

	view := &AgendaView{Date: date, Entries: make([]model.AgendaEntry, 0, len(rows))}
	for i, raw := range rows {
		entry, err := decodeAgendaRow(raw)
		if err != nil {
			view.Rejected = append(view.Rejected, RejectedRow{Index: i, Reason: err.Error(), Raw: raw})
			continue
		}
		view.Entries = append(view.Entries, entry)
	}
	if len(view.Rejected) > 0 {
		c.metrics.AgendaRejected(len(view.Rejected))
		c.log.Warn("agenda rows rejected", "date", date, "rejected", len(view.Rejected))
	}

	// HH:MM sorts lexically.
	sort.SliceStable(view.Entries, func(i, j int) bool {
		return view.Entries[i].Time < view.Entries[j].Time
	})
	return view, nil
}

func (c *Coordinator) resolveClient(ctx context.Context, sess session.Session, id uuid.UUID) error {
	if _, err := c.clients.GetClient(ctx, sess, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.metrics.BookingResult(metrics.ResultValidation)
			return &ValidationError{Field: "client_id", Reason: "does not exist"}
		}
		c.metrics.BookingResult(metrics.ResultPersistence)
		c.log.Error(err, "client lookup failed", "client_id", id.String())
		return &PersistenceError{Entity: "client", Err: err}
	}
	return nil
}

// totalPrice sums the snapshot prices of ids. Unknown ids add nothing.
func (c *Coordinator) totalPrice(ids []uuid.UUID, services []*model.Service) decimal.Decimal {
	prices := make(map[uuid.UUID]decimal.Decimal, len(services))
	for _, s := range services {
		if s != nil {
			prices[s.ID] = s.Price
		}
	}

	total := decimal.Zero
	for _, id := range ids {
		price, ok := prices[id]
		if !ok {
			c.log.Warn("service not in directory snapshot, priced at zero", "service_id", id.String())
			continue
		}
		total = total.Add(price)
	}
	return total
}

func (c *Coordinator) emit(ctx context.Context, sess session.Session, eventType string, payload interface{}) {
	if err := c.events.Emit(ctx, sess, eventType, payload); err != nil {
		c.log.Error(err, "failed to emit event", "event_type", eventType)
	}
}

func validateRequest(req Request) (uuid.UUID, []uuid.UUID, string, string, error) {
	if strings.TrimSpace(req.ClientID) == "" {
		return uuid.Nil, nil, "", "", &ValidationError{Field: "client_id", Reason: "is required"}
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return uuid.Nil, nil, "", "", &ValidationError{Field: "client_id", Reason: "must be a UUID"}
	}
	if strings.TrimSpace(req.Date) == "" {
		return uuid.Nil, nil, "", "", &ValidationError{Field: "date", Reason: "is required"}
	}
	if _, err := time.Parse(model.DateLayout, req.Date); err != nil {
		return uuid.Nil, nil, "", "", &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	if strings.TrimSpace(req.Time) == "" {
		return uuid.Nil, nil, "", "", &ValidationError{Field: "time", Reason: "is required"}
	}
	clock, err := parseClock(req.Time)
	if err != nil {
		return uuid.Nil, nil, "", "", &ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	serviceIDs, err := parseServiceIDs(req.ServiceIDs)
	if err != nil {
		return uuid.Nil, nil, "", "", err
	}
	return clientID, serviceIDs, req.Date, clock, nil
}

// parseServiceIDs parses ids in order and drops repeats.
func parseServiceIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Field: "service_ids", Reason: "at least one service is required"}
	}
	seen := make(map[uuid.UUID]struct{}, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, &ValidationError{Field: "service_ids", Reason: "must contain UUIDs"}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func linksFor(appointmentID uuid.UUID, serviceIDs []uuid.UUID) []model.AppointmentService {
	links := make([]model.AppointmentService, len(serviceIDs))
	for i, id := range serviceIDs {
		links[i] = model.AppointmentService{AppointmentID: appointmentID, ServiceID: id}
	}
	return links
}
