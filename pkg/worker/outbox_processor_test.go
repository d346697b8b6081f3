package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/pkg/logger"
	"github.com/jwalitptl/agenda-api/pkg/messaging"
)

type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockOutboxRepo) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.OutboxEvent), args.Error(1)
}

func (m *mockOutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, retryAt *time.Time) error {
	return m.Called(ctx, id, errorMessage, retryAt).Error(0)
}

func (m *mockOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(ctx, channel, message).Error(0)
}

func (m *mockBroker) Close() error {
	return nil
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		MaxDeliveries: 3,
	}
}

func newEvent(retries int) *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		EventType:  model.EventAppointmentBooked,
		Payload:    json.RawMessage(`{"id":"x"}`),
		Status:     model.OutboxStatusPending,
		RetryCount: retries,
	}
}

func TestProcessEvents_PublishesAndMarksProcessed(t *testing.T) {
	repo := new(mockOutboxRepo)
	broker := new(mockBroker)
	event := newEvent(0)

	repo.On("GetPendingEvents", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	broker.On("Publish", mock.Anything, model.EventAppointmentBooked, mock.MatchedBy(func(m messaging.Message) bool {
		return m.ID == event.ID.String() && m.Type == event.EventType
	})).Return(nil)
	repo.On("MarkProcessed", mock.Anything, event.ID).Return(nil)

	p := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), nil)
	require.NoError(t, p.processEvents(context.Background()))

	repo.AssertExpectations(t)
	broker.AssertExpectations(t)
}

func TestProcessEvents_FailureSchedulesRetry(t *testing.T) {
	repo := new(mockOutboxRepo)
	broker := new(mockBroker)
	event := newEvent(0)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	repo.On("GetPendingEvents", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Times(2)
	repo.On("MarkFailed", mock.Anything, event.ID, "broker down", mock.MatchedBy(func(at *time.Time) bool {
		return at != nil && at.Equal(now.Add(2*time.Millisecond))
	})).Return(nil)

	p := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), nil)
	p.now = func() time.Time { return now }
	require.NoError(t, p.processEvents(context.Background()))

	repo.AssertExpectations(t)
	broker.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestProcessEvents_GivesUpAfterMaxDeliveries(t *testing.T) {
	repo := new(mockOutboxRepo)
	broker := new(mockBroker)
	event := newEvent(2)

	repo.On("GetPendingEvents", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	repo.On("MarkFailed", mock.Anything, event.ID, "broker down", (*time.Time)(nil)).Return(nil)

	p := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), nil)
	require.NoError(t, p.processEvents(context.Background()))
	repo.AssertExpectations(t)
}

func TestProcessEvents_RepositoryError(t *testing.T) {
	repo := new(mockOutboxRepo)
	repo.On("GetPendingEvents", mock.Anything, 10).Return(nil, errors.New("db down"))

	p := NewOutboxProcessor(repo, new(mockBroker), testConfig(), logger.Nop(), nil)
	assert.Error(t, p.processEvents(context.Background()))
}

func TestNewOutboxProcessor_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	assert.Panics(t, func() {
		NewOutboxProcessor(new(mockOutboxRepo), new(mockBroker), cfg, logger.Nop(), nil)
	})
}
