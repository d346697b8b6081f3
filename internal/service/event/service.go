package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/agenda-api/internal/model"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/session"
	"github.com/jwalitptl/agenda-api/pkg/logger"
	"github.com/jwalitptl/agenda-api/pkg/messaging"
)

// Emitter records domain events. Callers log emit failures and carry on;
// an event is never a reason to fail the request that produced it.
type Emitter interface {
	Emit(ctx context.Context, sess session.Session, eventType string, payload interface{}) error
}

// OutboxEmitter writes events to the outbox table for the worker to publish.
type OutboxEmitter struct {
	outboxRepo repository.OutboxRepository
}

func NewOutboxEmitter(outboxRepo repository.OutboxRepository) *OutboxEmitter {
	return &OutboxEmitter{outboxRepo: outboxRepo}
}

func (s *OutboxEmitter) Emit(ctx context.Context, sess session.Session, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		UserID:    sess.UserID,
		EventType: eventType,
		Payload:   payloadJSON,
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// BrokerEmitter publishes straight to the broker. Used when the backend has
// no outbox table.
type BrokerEmitter struct {
	broker messaging.Broker
}

func NewBrokerEmitter(broker messaging.Broker) *BrokerEmitter {
	return &BrokerEmitter{broker: broker}
}

func (s *BrokerEmitter) Emit(ctx context.Context, sess session.Session, eventType string, payload interface{}) error {
	msg := messaging.Message{
		ID:      uuid.NewString(),
		Type:    eventType,
		UserID:  sess.UserID.String(),
		Payload: payload,
	}
	return s.broker.Publish(ctx, eventType, msg)
}

// LogEmitter only logs events.
type LogEmitter struct {
	log *logger.Logger
}

func NewLogEmitter(log *logger.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (s *LogEmitter) Emit(_ context.Context, sess session.Session, eventType string, _ interface{}) error {
	s.log.Debug("event", "event_type", eventType, "user_id", sess.UserID.String())
	return nil
}
