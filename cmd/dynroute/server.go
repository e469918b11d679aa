package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/api"
	"github.com/artpar/dynroute/internal/shell/events"
	"github.com/artpar/dynroute/internal/shell/metrics"
	"github.com/artpar/dynroute/internal/shell/pattern"
	"github.com/artpar/dynroute/internal/shell/scheduler"
	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/artpar/dynroute/internal/shell/store"
	"github.com/artpar/dynroute/internal/shell/suppress"
	"github.com/artpar/dynroute/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitRedisError      = 3
	ExitHTTPServerError = 4
	ExitNATSError       = 5
	ExitConflict        = 6
)

// =============================================================================
// Core Components
// =============================================================================

// app holds the components shared by the server and the one-shot commands.
type app struct {
	store    *store.SQLiteStore
	table    suppress.Table
	redis    *suppress.RedisTable
	recorder *metrics.PrometheusRecorder
	service  *scheduler.Service
}

// newApp opens the store and wires the build engine and scheduling service.
func newApp(cfg *Config, logger *slog.Logger) (*app, error) {
	if dsn := cfg.Database.DSN; dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, &ServerError{Op: "newApp", Err: err, ExitCode: ExitDatabaseError}
		}
	}

	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{Op: "newApp", Err: err, ExitCode: ExitDatabaseError}
	}
	a := &app{store: s}

	if strings.EqualFold(cfg.Suppress.Backend, "redis") {
		rt, err := suppress.NewRedisTable(suppress.RedisOptions{
			URL:    cfg.Suppress.RedisURL,
			Prefix: cfg.Suppress.Prefix,
		})
		if err != nil {
			s.Close()
			return nil, &ServerError{Op: "newApp", Err: err, ExitCode: ExitRedisError}
		}
		a.redis = rt
		a.table = rt
		logger.Info("suppression table backed by redis", "url", cfg.Suppress.RedisURL)
	} else {
		a.table = suppress.NewMemoryTable()
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		a.recorder = metrics.NewPrometheusRecorder(nil)
		recorder = a.recorder
	}

	mode, _ := routing.ParseConflictMode(cfg.Routing.ConflictMode)
	engine := slugbuild.NewEngine(s, s, pattern.NewResolver(), slugbuild.EngineConfig{
		WriteRetryLimit: cfg.Routing.WriteRetryLimit,
	}, logger)
	a.service = scheduler.NewService(s, engine, a.table, recorder, scheduler.Config{
		ConflictMode:            mode,
		GenerateIfLocaleMissing: cfg.Routing.GenerateIfLocaleMissing,
		SuppressTTL:             cfg.Suppress.TTL,
	}, logger)
	return a, nil
}

// Close releases the store and the redis connection.
func (a *app) Close(logger *slog.Logger) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
}

// =============================================================================
// Server
// =============================================================================

// Server represents the dynroute application server.
type Server struct {
	config     *Config
	app        *app
	httpServer *http.Server
	subscriber *events.Subscriber
	reconciler *workers.Reconciler
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	a, err := newApp(cfg, logger)
	if err != nil {
		return nil, err
	}

	apiCfg := api.Config{
		Service: a.service,
		Store:   a.store,
		Token:   cfg.Server.APIToken,
		Logger:  logger,
	}
	if a.recorder != nil {
		apiCfg.Metrics = a.recorder.Handler()
	}
	handler := api.NewHandler(apiCfg)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var subscriber *events.Subscriber
	if cfg.Events.Enabled {
		subscriber = events.NewSubscriber(a.service, events.Config{
			URL:           cfg.Events.URL,
			Subject:       cfg.Events.Subject,
			Queue:         cfg.Events.Queue,
			HandleTimeout: cfg.Events.HandleTimeout,
		}, logger)
	} else {
		logger.Info("NATS trigger ingestion disabled")
	}

	var reconciler *workers.Reconciler
	if cfg.Reconcile.Enabled {
		reconciler = workers.NewReconciler(a.store, a.service, workers.ReconcilerConfig{
			Interval:      cfg.Reconcile.Interval,
			SiteTimeout:   cfg.Reconcile.SiteTimeout,
			MaxConcurrent: cfg.Reconcile.MaxConcurrent,
			RunOnStart:    cfg.Reconcile.RunOnStart,
		}, logger)
	} else {
		logger.Info("periodic reconcile disabled")
	}

	return &Server{
		config:     cfg,
		app:        a,
		httpServer: httpServer,
		subscriber: subscriber,
		reconciler: reconciler,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if s.subscriber != nil {
		if err := s.subscriber.Start(ctx); err != nil {
			s.app.Close(s.logger)
			return &ServerError{Op: "Start", Err: err, ExitCode: ExitNATSError}
		}
	}

	if s.reconciler != nil {
		if err := s.reconciler.Start(); err != nil {
			s.logger.Error("failed to start reconciler", "error", err)
		}
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.subscriber != nil {
		s.subscriber.Stop()
	}

	if s.reconciler != nil {
		if err := s.reconciler.Stop(); err != nil {
			s.logger.Error("reconciler shutdown error", "error", err)
		}
	}

	s.app.Close(s.logger)

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
