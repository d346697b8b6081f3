package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/service/event"
	"github.com/jwalitptl/agenda-api/internal/session"
	apperrors "github.com/jwalitptl/agenda-api/pkg/errors"
	"github.com/jwalitptl/agenda-api/pkg/logger"
)

type Service struct {
	repo   repository.PersistenceGateway
	events event.Emitter
	log    *logger.Logger
}

func NewService(repo repository.PersistenceGateway, events event.Emitter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = event.NewLogEmitter(log)
	}
	return &Service{
		repo:   repo,
		events: events,
		log:    log.Component("appointment"),
	}
}

func (s *Service) GetAppointment(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.GetAppointment(ctx, sess, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return apt, nil
}

// UpdateStatus moves an appointment to req.Status. Completed and cancelled
// appointments are final. Rating and feedback are only kept on completion.
func (s *Service) UpdateStatus(ctx context.Context, sess session.Session, id uuid.UUID, req model.UpdateStatusRequest) (*model.Appointment, error) {
	apt, err := s.GetAppointment(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	if err := validateTransition(apt.Status, req); err != nil {
		return nil, err
	}

	status := req.Status
	patch := model.AppointmentPatch{Status: &status}
	if status == model.AppointmentStatusCompleted {
		patch.Rating = req.Rating
		if req.Feedback != nil {
			feedback := strings.TrimSpace(*req.Feedback)
			patch.Feedback = &feedback
		}
	}

	updated, err := s.repo.UpdateAppointment(ctx, sess, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to update appointment status: %w", err)
	}

	if err := s.events.Emit(ctx, sess, model.EventAppointmentStatus, map[string]interface{}{
		"appointment_id": id,
		"from":           apt.Status,
		"to":             status,
	}); err != nil {
		s.log.Error(err, "failed to emit event", "event_type", model.EventAppointmentStatus)
	}

	s.log.Info("appointment status changed",
		"appointment_id", id.String(), "from", string(apt.Status), "to", string(status))
	return updated, nil
}

func validateTransition(current model.AppointmentStatus, req model.UpdateStatusRequest) error {
	if !req.Status.Valid() || req.Status == model.AppointmentStatusScheduled {
		return apperrors.BadRequest(fmt.Sprintf("invalid status %q", req.Status), nil)
	}
	if current == req.Status {
		return apperrors.NewConflict(fmt.Sprintf("appointment is already %s", current), nil)
	}
	if current.Terminal() {
		return apperrors.NewConflict(fmt.Sprintf("cannot change a %s appointment", current), nil)
	}
	if req.Status != model.AppointmentStatusCompleted && (req.Rating != nil || req.Feedback != nil) {
		return apperrors.BadRequest("rating and feedback can only be given when completing an appointment", nil)
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return apperrors.BadRequest("rating must be between 1 and 5", nil)
	}
	return nil
}
