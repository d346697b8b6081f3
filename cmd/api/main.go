package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/agenda-api/internal/booking"
	"github.com/jwalitptl/agenda-api/internal/config"
	agendaHandler "github.com/jwalitptl/agenda-api/internal/handler/agenda"
	appointmentHandler "github.com/jwalitptl/agenda-api/internal/handler/appointment"
	directoryHandler "github.com/jwalitptl/agenda-api/internal/handler/directory"
	"github.com/jwalitptl/agenda-api/internal/handler/health"
	historyHandler "github.com/jwalitptl/agenda-api/internal/handler/history"
	"github.com/jwalitptl/agenda-api/internal/middleware"
	"github.com/jwalitptl/agenda-api/internal/router"
	appointmentService "github.com/jwalitptl/agenda-api/internal/service/appointment"
	directoryService "github.com/jwalitptl/agenda-api/internal/service/directory"
	historyService "github.com/jwalitptl/agenda-api/internal/service/history"
	"github.com/jwalitptl/agenda-api/pkg/logger"
	"github.com/jwalitptl/agenda-api/pkg/messaging"
	"github.com/jwalitptl/agenda-api/pkg/messaging/redis"
	"github.com/jwalitptl/agenda-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics("agenda", registry)

	var broker messaging.Broker
	checks := map[string]health.Check{}
	if cfg.Redis.Enabled {
		rb, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:           cfg.Redis.URL,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
			MaxRetries:    cfg.Redis.MaxRetries,
			RetryBackoff:  cfg.Redis.RetryBackoff,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
		}, *log.Zerolog())
		if err != nil {
			log.Fatal(err, "failed to connect to Redis")
		}
		defer rb.Close()
		broker = rb
		checks["broker"] = rb.Ping
	}

	store, err := openBackend(ctx, cfg, broker, m, log)
	if err != nil {
		log.Fatal(err, "failed to open backend", "driver", cfg.Backend.Driver)
	}
	defer store.close()
	for name, check := range store.checks {
		checks[name] = check
	}

	directorySvc := directoryService.NewService(store.directory, cfg.Cache.DirectoryTTL, cfg.Cache.CleanupInterval, log)
	coordinator := booking.NewCoordinator(store.gateway, store.directory, store.agenda, store.events, m, log)
	appointmentSvc := appointmentService.NewService(store.gateway, store.events, log)
	historySvc := historyService.NewService(store.history, store.events, m, log, historyService.Config{
		DeleteTimeout: cfg.History.DeleteTimeout,
		CommandTTL:    cfg.History.CommandTTL,
	})

	r := router.NewRouter(
		middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer),
		health.NewHandler(checks, registry),
		[]router.Handler{
			directoryHandler.NewHandler(directorySvc),
			appointmentHandler.NewHandler(coordinator, appointmentSvc, directorySvc),
			agendaHandler.NewHandler(coordinator),
			historyHandler.NewHandler(historySvc),
		},
		router.RouterConfig{
			RateLimit:      cfg.Server.RequestsPerSecond,
			RateBurst:      cfg.Server.Burst,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MetricsPrefix:  "agenda_http",
			Registerer:     registry,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr, "driver", cfg.Backend.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	done := make(chan struct{})
	go func() {
		historySvc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("history deletions still running at shutdown")
	}

	log.Info("server exited properly")
}
