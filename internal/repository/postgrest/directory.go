package postgrest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
)

const (
	tableClients             = "clients"
	tableServices            = "services"
	tableAppointments        = "appointments"
	tableAppointmentServices = "appointment_services"
)

// DirectoryRepository stores clients and services on the hosted backend.
type DirectoryRepository struct {
	client *Client
}

var _ repository.DirectoryStore = (*DirectoryRepository)(nil)

func NewDirectoryRepository(client *Client) *DirectoryRepository {
	return &DirectoryRepository{client: client}
}

func (r *DirectoryRepository) ListClients(ctx context.Context, sess session.Session) ([]*model.Client, error) {
	resp, err := r.client.From(sess, tableClients).
		Select("*").
		Eq("user_id", sess.UserID).
		Order("created_at", false).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := []*model.Client{}
	if err := resp.JSON(&clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}
	return clients, nil
}

func (r *DirectoryRepository) GetClient(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Client, error) {
	resp, err := r.client.From(sess, tableClients).
		Select("*").
		Eq("id", id).
		Eq("user_id", sess.UserID).
		Single().
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var client model.Client
	if err := resp.JSON(&client); err != nil {
		return nil, fmt.Errorf("failed to decode client: %w", err)
	}
	return &client, nil
}

func (r *DirectoryRepository) CreateClient(ctx context.Context, sess session.Session, client *model.Client) error {
	row := map[string]interface{}{
		"user_id": sess.UserID,
		"name":    client.Name,
		"phone":   client.Phone,
		"notes":   client.Notes,
	}
	resp, err := r.client.From(sess, tableClients).Insert(ctx, row)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return decodeFirst(resp, client)
}

func (r *DirectoryRepository) UpdateClient(ctx context.Context, sess session.Session, client *model.Client) error {
	patch := map[string]interface{}{
		"name":  client.Name,
		"phone": client.Phone,
		"notes": client.Notes,
	}
	resp, err := r.client.From(sess, tableClients).
		Eq("id", client.ID).
		Eq("user_id", sess.UserID).
		Update(ctx, patch)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return decodeFirst(resp, client)
}

func (r *DirectoryRepository) DeleteClient(ctx context.Context, sess session.Session, id uuid.UUID) error {
	resp, err := r.client.From(sess, tableClients).
		Eq("id", id).
		Eq("user_id", sess.UserID).
		Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if resp.Rows() == 0 {
		return fmt.Errorf("failed to delete client: %w", repository.ErrNotFound)
	}
	return nil
}

func (r *DirectoryRepository) ListServices(ctx context.Context, sess session.Session) ([]*model.Service, error) {
	resp, err := r.client.From(sess, tableServices).
		Select("*").
		Eq("user_id", sess.UserID).
		Order("created_at", false).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	services := []*model.Service{}
	if err := resp.JSON(&services); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return services, nil
}

func (r *DirectoryRepository) GetService(ctx context.Context, sess session.Session, id uuid.UUID) (*model.Service, error) {
	resp, err := r.client.From(sess, tableServices).
		Select("*").
		Eq("id", id).
		Eq("user_id", sess.UserID).
		Single().
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	var service model.Service
	if err := resp.JSON(&service); err != nil {
		return nil, fmt.Errorf("failed to decode service: %w", err)
	}
	return &service, nil
}

func (r *DirectoryRepository) CreateService(ctx context.Context, sess session.Session, service *model.Service) error {
	row := map[string]interface{}{
		"user_id":  sess.UserID,
		"name":     service.Name,
		"duration": service.Duration,
		"price":    service.Price,
	}
	resp, err := r.client.From(sess, tableServices).Insert(ctx, row)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return decodeFirst(resp, service)
}

func (r *DirectoryRepository) UpdateService(ctx context.Context, sess session.Session, service *model.Service) error {
	patch := map[string]interface{}{
		"name":     service.Name,
		"duration": service.Duration,
		"price":    service.Price,
	}
	resp, err := r.client.From(sess, tableServices).
		Eq("id", service.ID).
		Eq("user_id", sess.UserID).
		Update(ctx, patch)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return decodeFirst(resp, service)
}

func (r *DirectoryRepository) DeleteService(ctx context.Context, sess session.Session, id uuid.UUID) error {
	resp, err := r.client.From(sess, tableServices).
		Eq("id", id).
		Eq("user_id", sess.UserID).
		Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if resp.Rows() == 0 {
		return fmt.Errorf("failed to delete service: %w", repository.ErrNotFound)
	}
	return nil
}

// decodeFirst decodes the first row of a representation response into v.
func decodeFirst(resp *Response, v interface{}) error {
	if err := resp.First(v); err != nil {
		return fmt.Errorf("failed to decode row: %w", err)
	}
	return nil
}
