// Package history lists completed appointments and deletes them without
// making the caller wait on the store.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/service/event"
	"github.com/jwalitptl/agenda-api/internal/session"
	apperrors "github.com/jwalitptl/agenda-api/pkg/errors"
	"github.com/jwalitptl/agenda-api/pkg/logger"
	"github.com/jwalitptl/agenda-api/pkg/metrics"
)

var (
	// ErrNotConfirmed is returned when a delete arrives without confirmation.
	ErrNotConfirmed = errors.New("deletion must be confirmed")
	// ErrNotInHistory resolves a deletion whose appointment is not a
	// completed appointment of the user.
	ErrNotInHistory = errors.New("appointment is not in the history")
)

// Notice tells the owner that a deletion did not go through.
type Notice struct {
	DeletionID    uuid.UUID `json:"deletion_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Message       string    `json:"message"`
	At            time.Time `json:"at"`
}

// Listing is the history as the owner should currently see it.
type Listing struct {
	Entries  []model.HistoryEntry `json:"entries"`
	Deleting []uuid.UUID          `json:"deleting,omitempty"`
	Notices  []Notice             `json:"notices,omitempty"`
}

type Service struct {
	source   repository.HistorySource
	events   event.Emitter
	metrics  *metrics.Metrics
	log      *logger.Logger
	timeout  time.Duration
	commands *cache.Cache

	mu      sync.Mutex
	pending map[uuid.UUID]map[uuid.UUID]*Deletion
	notices map[uuid.UUID][]Notice
	wg      sync.WaitGroup
}

type Config struct {
	DeleteTimeout time.Duration
	CommandTTL    time.Duration
}

func NewService(
	source repository.HistorySource,
	events event.Emitter,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg Config,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = event.NewLogEmitter(log)
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = 30 * time.Second
	}
	if cfg.CommandTTL <= 0 {
		cfg.CommandTTL = 15 * time.Minute
	}
	return &Service{
		source:   source,
		events:   events,
		metrics:  m,
		log:      log.Component("history"),
		timeout:  cfg.DeleteTimeout,
		commands: cache.New(cfg.CommandTTL, cfg.CommandTTL),
		pending:  make(map[uuid.UUID]map[uuid.UUID]*Deletion),
		notices:  make(map[uuid.UUID][]Notice),
	}
}

// List returns completed appointments, newest first, optionally for one
// client. Entries with a pending deletion are left out. Failure notices are
// returned once and then cleared.
func (s *Service) List(ctx context.Context, sess session.Session, clientID *uuid.UUID) (*Listing, error) {
	if !sess.Valid() {
		return nil, apperrors.Unauthorized(session.ErrNoSession)
	}

	records, err := s.source.ListCompleted(ctx, sess, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	s.mu.Lock()
	owned := s.pending[sess.UserID]
	hidden := make(map[uuid.UUID]struct{}, len(owned))
	deleting := make([]uuid.UUID, 0, len(owned))
	for id := range owned {
		hidden[id] = struct{}{}
		deleting = append(deleting, id)
	}
	notices := s.notices[sess.UserID]
	delete(s.notices, sess.UserID)
	s.mu.Unlock()

	listing := &Listing{
		Entries:  make([]model.HistoryEntry, 0, len(records)),
		Deleting: deleting,
		Notices:  notices,
	}
	for _, rec := range records {
		if _, ok := hidden[rec.ID]; ok {
			continue
		}
		listing.Entries = append(listing.Entries, toEntry(rec))
	}
	return listing, nil
}

// Delete hides the appointment from the owner's history immediately and
// removes it from the store in the background. The returned Deletion
// reports the outcome. Ids that are not completed appointments resolve as
// failed and nothing is removed.
func (s *Service) Delete(ctx context.Context, sess session.Session, appointmentID uuid.UUID, confirm bool) (*Deletion, error) {
	if !sess.Valid() {
		return nil, apperrors.Unauthorized(session.ErrNoSession)
	}
	if !confirm {
		return nil, apperrors.BadRequest(ErrNotConfirmed.Error(), ErrNotConfirmed)
	}

	s.mu.Lock()
	owned := s.pending[sess.UserID]
	if owned == nil {
		owned = make(map[uuid.UUID]*Deletion)
		s.pending[sess.UserID] = owned
	}
	if existing, ok := owned[appointmentID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	d := newDeletion(sess.UserID, appointmentID)
	owned[appointmentID] = d
	s.mu.Unlock()

	s.commands.SetDefault(d.ID.String(), d)
	s.metrics.Deletion(string(DeletionPending))

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), sess, d)

	return d, nil
}

// Deletion returns a deletion started by the session's user.
func (s *Service) Deletion(sess session.Session, id uuid.UUID) (*Deletion, error) {
	v, ok := s.commands.Get(id.String())
	if !ok {
		return nil, apperrors.NotFound("deletion", nil)
	}
	d := v.(*Deletion)
	if d.userID != sess.UserID {
		return nil, apperrors.NotFound("deletion", nil)
	}
	return d, nil
}

// Wait blocks until every background deletion has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, sess session.Session, d *Deletion) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.source.DeleteCompleted(ctx, sess, d.AppointmentID)
	missing := errors.Is(err, repository.ErrNotFound)
	if missing {
		err = ErrNotInHistory
	}

	s.mu.Lock()
	delete(s.pending[sess.UserID], d.AppointmentID)
	if len(s.pending[sess.UserID]) == 0 {
		delete(s.pending, sess.UserID)
	}
	if err != nil && !missing {
		s.notices[sess.UserID] = append(s.notices[sess.UserID], Notice{
			DeletionID:    d.ID,
			AppointmentID: d.AppointmentID,
			Message:       "The appointment could not be deleted and has been restored.",
			At:            time.Now().UTC(),
		})
	}
	s.mu.Unlock()

	if err != nil {
		d.resolve(DeletionFailed, err.Error())
		s.metrics.Deletion(string(DeletionFailed))
		s.log.Error(err, "history deletion failed",
			"appointment_id", d.AppointmentID.String(), "deletion_id", d.ID.String())
		return
	}

	d.resolve(DeletionConfirmed, "")
	s.metrics.Deletion(string(DeletionConfirmed))
	if err := s.events.Emit(ctx, sess, model.EventAppointmentDeleted, map[string]interface{}{
		"appointment_id": d.AppointmentID,
	}); err != nil {
		s.log.Error(err, "failed to emit event", "event_type", model.EventAppointmentDeleted)
	}
}

func toEntry(rec *model.HistoryRecord) model.HistoryEntry {
	entry := model.HistoryEntry{
		ID:           rec.ID,
		ClientID:     rec.ClientID,
		Date:         rec.Date,
		Time:         rec.Time,
		Price:        rec.Price,
		Rating:       rec.Rating,
		Feedback:     rec.Feedback,
		ClientName:   model.ClientNotFound,
		ServiceNames: model.ServiceNotFound,
	}
	if rec.ClientName != nil && *rec.ClientName != "" {
		entry.ClientName = *rec.ClientName
	}

	if len(rec.ServiceNames) > 0 {
		names := make([]string, len(rec.ServiceNames))
		for i, name := range rec.ServiceNames {
			if name == "" {
				name = model.ServiceNotFound
			}
			names[i] = name
		}
		entry.ServiceNames = strings.Join(names, ", ")
	}
	return entry
}
