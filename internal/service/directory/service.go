package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
	apperrors "github.com/jwalitptl/agenda-api/pkg/errors"
	"github.com/jwalitptl/agenda-api/pkg/logger"
)

// ErrNotConfirmed is returned when a delete arrives without confirmation.
var ErrNotConfirmed = errors.New("deletion must be confirmed")

type Service struct {
	store repository.DirectoryStore
	cache *cache.Cache
	log   *logger.Logger
}

// NewService creates the directory service. Service lists are cached per
// user for ttl and dropped on every service mutation.
func NewService(store repository.DirectoryStore, ttl, cleanup time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store: store,
		cache: cache.New(ttl, cleanup),
		log:   log.Component("directory"),
	}
}

func servicesKey(sess session.Session) string {
	return "services:" + sess.UserID.String()
}

func (s *Service) ListClients(ctx context.Context, sess session.Session) ([]*model.Client, error) {
	clients, err := s.store.ListClients(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

func (s *Service) GetClient(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Client, error) {
	client, err := s.store.GetClient(ctx, sess, id)
	if err != nil {
		return nil, mapErr("client", err)
	}
	return client, nil
}

func (s *Service) CreateClient(ctx context.Context, sess session.Session, req model.ClientRequest) (*model.Client, error) {
	client := &model.Client{
		Name:  strings.TrimSpace(req.Name),
		Phone: strings.TrimSpace(req.Phone),
		Notes: req.Notes,
	}
	if client.Name == "" {
		return nil, apperrors.BadRequest("client name is required", nil)
	}

	if err := s.store.CreateClient(ctx, sess, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (s *Service) UpdateClient(ctx context.Context, sess session.Session, id uuid.UUID, req model.ClientRequest) (*model.Client, error) {
	client := &model.Client{
		Base:  model.Base{ID: id},
		Name:  strings.TrimSpace(req.Name),
		Phone: strings.TrimSpace(req.Phone),
		Notes: req.Notes,
	}
	if client.Name == "" {
		return nil, apperrors.BadRequest("client name is required", nil)
	}

	if err := s.store.UpdateClient(ctx, sess, client); err != nil {
		return nil, mapErr("client", err)
	}
	return client, nil
}

// DeleteClient removes a client. Past appointments keep showing with a
// fallback client label.
func (s *Service) DeleteClient(ctx context.Context, sess session.Session, id uuid.UUID, confirm bool) error {
	if !confirm {
		return apperrors.BadRequest(ErrNotConfirmed.Error(), ErrNotConfirmed)
	}
	if err := s.store.DeleteClient(ctx, sess, id); err != nil {
		return mapErr("client", err)
	}
	s.log.Info("client deleted", "client_id", id.String())
	return nil
}

// ListServices returns the user's services, newest first. This is the
// directory snapshot bookings are priced against.
func (s *Service) ListServices(ctx context.Context, sess session.Session) ([]*model.Service, error) {
	key := servicesKey(sess)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]*model.Service), nil
	}

	services, err := s.store.ListServices(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	s.cache.SetDefault(key, services)
	return services, nil
}

func (s *Service) GetService(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Service, error) {
	service, err := s.store.GetService(ctx, sess, id)
	if err != nil {
		return nil, mapErr("service", err)
	}
	return service, nil
}

func (s *Service) CreateService(ctx context.Context, sess session.Session, req model.ServiceRequest) (*model.Service, error) {
	service := &model.Service{
		Name:     strings.TrimSpace(req.Name),
		Duration: req.Duration,
		Price:    req.Price,
	}
	if err := validateService(service); err != nil {
		return nil, err
	}

	if err := s.store.CreateService(ctx, sess, service); err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	s.cache.Delete(servicesKey(sess))
	return service, nil
}

func (s *Service) UpdateService(ctx context.Context, sess session.Session, id uuid.UUID, req model.ServiceRequest) (*model.Service, error) {
	service := &model.Service{
		Base:     model.Base{ID: id},
		Name:     strings.TrimSpace(req.Name),
		Duration: req.Duration,
		Price:    req.Price,
	}
	if err := validateService(service); err != nil {
		return nil, err
	}

	if err := s.store.UpdateService(ctx, sess, service); err != nil {
		return nil, mapErr("service", err)
	}
	s.cache.Delete(servicesKey(sess))
	return service, nil
}

// DeleteService removes a service. Appointments that used it keep their
// price and show a fallback service label.
func (s *Service) DeleteService(ctx context.Context, sess session.Session, id uuid.UUID, confirm bool) error {
	if !confirm {
		return apperrors.BadRequest(ErrNotConfirmed.Error(), ErrNotConfirmed)
	}
	if err := s.store.DeleteService(ctx, sess, id); err != nil {
		return mapErr("service", err)
	}
	s.cache.Delete(servicesKey(sess))
	s.log.Info("service deleted", "service_id", id.String())
	return nil
}

func validateService(service *model.Service) error {
	if service.Name == "" {
		return apperrors.BadRequest("service name is required", nil)
	}
	if service.Duration <= 0 {
		return apperrors.BadRequest("service duration must be a positive number of minutes", nil)
	}
	if service.Price.IsNegative() {
		return apperrors.BadRequest("service price must not be negative", nil)
	}
	return nil
}

func mapErr(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return fmt.Errorf("failed to access %s: %w", resource, err)
}
