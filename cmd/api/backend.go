package main

import (
	"context"
	"fmt"

	"github.com/jwalitptl/agenda-api/internal/config"
	"github.com/jwalitptl/agenda-api/internal/handler/health"
	"github.com/jwalitptl/agenda-api/internal/repository"
	"github.com/jwalitptl/agenda-api/internal/repository/postgres"
	"github.com/jwalitptl/agenda-api/internal/repository/postgrest"
	"github.com/jwalitptl/agenda-api/internal/service/event"
	"github.com/jwalitptl/agenda-api/pkg/logger"
	"github.com/jwalitptl/agenda-api/pkg/messaging"
	"github.com/jwalitptl/agenda-api/pkg/metrics"
)

// backend is the set of stores selected by backend.driver.
type backend struct {
	directory repository.DirectoryStore
	gateway   repository.PersistenceGateway
	agenda    repository.AgendaSource
	history   repository.HistorySource
	events    event.Emitter
	checks    map[string]health.Check
	close     func()
}

// openBackend connects the configured driver. With postgres, events go to
// the outbox and the worker publishes them. With postgrest, events go
// straight to broker when one is configured.
func openBackend(ctx context.Context, cfg *config.Config, broker messaging.Broker, m *metrics.Metrics, log *logger.Logger) (*backend, error) {
	switch cfg.Backend.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := postgres.Apply(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
			log.Info("migrations applied")
		}

		base := postgres.NewBaseRepository(db, m)
		agenda := postgres.NewAgendaRepository(base)
		return &backend{
			directory: postgres.NewDirectoryRepository(base),
			gateway:   postgres.NewAppointmentRepository(base),
			agenda:    agenda,
			history:   agenda,
			events:    event.NewOutboxEmitter(postgres.NewOutboxRepository(base)),
			checks:    map[string]health.Check{"database": db.PingContext},
			close:     func() { db.Close() },
		}, nil

	case config.DriverPostgREST:
		client, err := postgrest.New(postgrest.Config{
			URL:          cfg.Backend.URL,
			APIKey:       cfg.Backend.APIKey,
			Timeout:      cfg.Backend.Timeout,
			MaxFailures:  cfg.Backend.MaxFailures,
			ResetTimeout: cfg.Backend.ResetTimeout,
			Metrics:      m,
		})
		if err != nil {
			return nil, err
		}

		var events event.Emitter = event.NewLogEmitter(log)
		if broker != nil {
			events = event.NewBrokerEmitter(broker)
		}
		agenda := postgrest.NewAgendaRepository(client)
		return &backend{
			directory: postgrest.NewDirectoryRepository(client),
			gateway:   postgrest.NewAppointmentRepository(client),
			agenda:    agenda,
			history:   agenda,
			events:    events,
			checks:    map[string]health.Check{"backend": client.Ping},
			close:     func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
}
