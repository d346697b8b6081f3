package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
)

// DirectoryRepository stores clients and services.
type DirectoryRepository struct {
	BaseRepository
}

var _ repository.DirectoryStore = (*DirectoryRepository)(nil)

func NewDirectoryRepository(base BaseRepository) *DirectoryRepository {
	return &DirectoryRepository{base}
}

const clientColumns = `id, user_id, name, phone, notes, created_at, updated_at`

func (r *DirectoryRepository) ListClients(ctx context.Context, sess session.Session) (_ []*model.Client, err error) {
	defer func(start time.Time) { r.observe("list_clients", start, err) }(time.Now())

	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE user_id = $1
		ORDER BY created_at DESC`

	clients := []*model.Client{}
	if err = r.db.SelectContext(ctx, &clients, query, sess.UserID); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

func (r *DirectoryRepository) GetClient(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Client, error) {
	query := `SELECT ` + clientColumns + `
		FROM clients
		WHERE id = $1 AND user_id = $2`

	var client model.Client
	if err := r.db.GetContext(ctx, &client, query, id, sess.UserID); err != nil {
		return nil, fmt.Errorf("failed to get client: %w", notFound(err))
	}
	return &client, nil
}

func (r *DirectoryRepository) CreateClient(ctx context.Context, sess session.Session, client *model.Client) error {
	query := `
		INSERT INTO clients (
			id, user_id, name, phone, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	client.ID = uuid.New()
	client.UserID = sess.UserID
	client.CreatedAt = time.Now()
	client.UpdatedAt = client.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.UserID,
		client.Name,
		client.Phone,
		client.Notes,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) UpdateClient(ctx context.Context, sess session.Session, client *model.Client) error {
	query := `
		UPDATE clients
		SET name = $1, phone = $2, notes = $3, updated_at = $4
		WHERE id = $5 AND user_id = $6
	`
	client.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		client.Name,
		client.Phone,
		client.Notes,
		client.UpdatedAt,
		client.ID,
		sess.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if err := expectAffected(result); err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

// DeleteClient removes the client. Appointments keep their rows with a
// null client reference.
func (r *DirectoryRepository) DeleteClient(ctx context.Context, sess session.Session, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1 AND user_id = $2`, id, sess.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if err := expectAffected(result); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

const serviceColumns = `id, user_id, name, duration, price, created_at, updated_at`

func (r *DirectoryRepository) ListServices(ctx context.Context, sess session.Session) (_ []*model.Service, err error) {
	defer func(start time.Time) { r.observe("list_services", start, err) }(time.Now())

	query := `SELECT ` + serviceColumns + `
		FROM services
		WHERE user_id = $1
		ORDER BY created_at DESC`

	services := []*model.Service{}
	if err = r.db.SelectContext(ctx, &services, query, sess.UserID); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

func (r *DirectoryRepository) GetService(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Service, error) {
	query := `SELECT ` + serviceColumns + `
		FROM services
		WHERE id = $1 AND user_id = $2`

	var service model.Service
	if err := r.db.GetContext(ctx, &service, query, id, sess.UserID); err != nil {
		return nil, fmt.Errorf("failed to get service: %w", notFound(err))
	}
	return &service, nil
}

func (r *DirectoryRepository) CreateService(ctx context.Context, sess session.Session, service *model.Service) error {
	query := `
		INSERT INTO services (
			id, user_id, name, duration, price, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	service.ID = uuid.New()
	service.UserID = sess.UserID
	service.CreatedAt = time.Now()
	service.UpdatedAt = service.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		service.ID,
		service.UserID,
		service.Name,
		service.Duration,
		service.Price,
		service.CreatedAt,
		service.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) UpdateService(ctx context.Context, sess session.Session, service *model.Service) error {
	query := `
		UPDATE services
		SET name = $1, duration = $2, price = $3, updated_at = $4
		WHERE id = $5 AND user_id = $6
	`
	service.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		service.Name,
		service.Duration,
		service.Price,
		service.UpdatedAt,
		service.ID,
		sess.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if err := expectAffected(result); err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return nil
}

// DeleteService removes the service. Existing links keep a null service
// reference so past appointments still list it.
func (r *DirectoryRepository) DeleteService(ctx context.Context, sess session.Session, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1 AND user_id = $2`, id, sess.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if err := expectAffected(result); err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	return nil
}
