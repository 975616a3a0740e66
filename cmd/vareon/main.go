package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	vanthropic "github.com/muhammad-robitulloh/vareon/internal/adapter/anthropic"
	vhttp "github.com/muhammad-robitulloh/vareon/internal/adapter/http"
	vnats "github.com/muhammad-robitulloh/vareon/internal/adapter/nats"
	vopenai "github.com/muhammad-robitulloh/vareon/internal/adapter/openai"
	votel "github.com/muhammad-robitulloh/vareon/internal/adapter/otel"
	"github.com/muhammad-robitulloh/vareon/internal/adapter/postgres"
	"github.com/muhammad-robitulloh/vareon/internal/adapter/ristretto"
	"github.com/muhammad-robitulloh/vareon/internal/adapter/ws"
	"github.com/muhammad-robitulloh/vareon/internal/config"
	"github.com/muhammad-robitulloh/vareon/internal/logger"
	"github.com/muhammad-robitulloh/vareon/internal/middleware"
	"github.com/muhammad-robitulloh/vareon/internal/port/eventsink"
	"github.com/muhammad-robitulloh/vareon/internal/port/modelbackend"
	"github.com/muhammad-robitulloh/vareon/internal/secrets"
	"github.com/muhammad-robitulloh/vareon/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_iterations", cfg.Engine.MaxIterations,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// Metrics export is optional; an empty endpoint yields a no-op provider.
	otelShutdown, err := votel.Init(ctx, cfg.Metrics, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	var metrics *votel.Metrics
	if cfg.Metrics.OTLPEndpoint != "" {
		metrics, err = votel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Event sinks ---

	hub := ws.NewHub()
	sinks := []eventsink.Sink{hub}

	if cfg.NATS.URL != "" {
		relay, err := vnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = relay.Close() }()
		sinks = append(sinks, relay)
		slog.Info("nats relay connected", "url", cfg.NATS.URL)
	}

	// --- Model backends ---

	backends := modelbackend.NewRegistry()
	backends.Register(vopenai.NewBackend())
	backends.Register(vanthropic.NewBackend())

	// --- Services ---

	store := postgres.NewStore(pool)
	creds := secrets.NewCredentialStore(store, cfg.Secrets.EncryptionKey)

	cache, err := ristretto.NewCatalogCache(cfg.Engine.ModelCacheTTL)
	if err != nil {
		return fmt.Errorf("catalog cache: %w", err)
	}
	defer cache.Close()

	router := service.NewRouter(store, creds, cache)
	audit := service.NewAuditor(store, sinks...)
	supervisor := service.NewSupervisor()
	orch := service.NewOrchestrator(store, router, backends, audit, supervisor, cfg.Engine, metrics)

	handlers := &vhttp.Handlers{
		Agents:  service.NewAgentService(store),
		Jobs:    orch,
		Catalog: service.NewCatalogService(store, router),
		Hub:     hub,
		DB:      pool,
	}

	// --- HTTP ---

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Metrics.OTLPEndpoint != "" {
		r.Use(votel.HTTPMiddleware(cfg.Logging.Service))
	}

	vhttp.MountRoutes(r, handlers, store)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server", "jobs_in_flight", supervisor.Count())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// In-flight jobs are goroutines; give them the rest of the grace period
	// to reach a stopping point before the process exits.
	for supervisor.Count() > 0 {
		select {
		case <-shutdownCtx.Done():
			slog.Warn("exiting with jobs still in flight", "count", supervisor.Count())
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}
