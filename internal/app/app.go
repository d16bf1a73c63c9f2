// Package app wires configuration, storage, transports, the campaign
// engine and the HTTP API into one runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mailtide/mailtide/internal/api"
	"github.com/mailtide/mailtide/internal/config"
	"github.com/mailtide/mailtide/internal/engine"
	"github.com/mailtide/mailtide/internal/metrics"
	"github.com/mailtide/mailtide/internal/store"
	"github.com/mailtide/mailtide/internal/template"
	"github.com/mailtide/mailtide/internal/transport"
)

// App is the main application.
type App struct {
	config    *config.Config
	db        *store.DB
	sandboxDB *bolt.DB
	engine    *engine.Engine
	apiServer *api.Server
	logger    *slog.Logger
}

// New creates a new application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Sandbox.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}
	sandboxDB, err := bolt.Open(cfg.Sandbox.Path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open sandbox storage: %w", err)
	}
	sandboxStorage, err := transport.NewSandboxStorage(sandboxDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox storage: %w", err)
	}

	sandboxTransport := transport.NewSandboxTransport(sandboxStorage, cfg.Server.BaseURL, logger.With("component", "sandbox"))
	if cfg.Sandbox.SimulateErrors {
		sandboxTransport.SetErrorSimulation(true, cfg.Sandbox.ErrorProbability)
		logger.Info("sandbox error simulation enabled", "probability", cfg.Sandbox.ErrorProbability)
	}

	var provider transport.Transport
	if cfg.Provider.Configured() {
		provider = transport.NewProviderTransport(
			cfg.Provider.Name, cfg.Provider.BaseURL, cfg.Provider.APIKey,
			logger.With("component", "provider"),
		)
		logger.Info("bulk provider enabled", "provider", cfg.Provider.Name)
	}

	selector := transport.NewSelector(provider, sandboxTransport, logger.With("component", "transport"))
	renderer := template.NewRenderer(cfg.Server.BaseURL)
	m := metrics.New()

	campaigns := store.NewCampaignRepository(db.DB)
	eng := engine.New(
		engine.Stores{
			Campaigns: campaigns,
			Lists:     store.NewListRepository(db.DB),
			Templates: store.NewTemplateRepository(db.DB),
			Users:     store.NewUserRepository(db.DB),
			Snapshots: store.NewSnapshotRepository(db.DB),
		},
		selector,
		renderer,
		engine.Options{
			BatchInterval:    cfg.Engine.BatchInterval,
			DefaultBatchSize: cfg.Engine.DefaultBatchSize,
			SenderName:       cfg.Engine.SenderName,
			FromEmail:        cfg.Engine.FromEmail,
			ReplyToEmail:     cfg.Engine.ReplyToEmail,
		},
		m,
		logger,
	)

	apiServer := api.NewServer(eng, campaigns, sandboxStorage, m.Handler(), cfg, logger)

	return &App{
		config:    cfg,
		db:        db,
		sandboxDB: sandboxDB,
		engine:    eng,
		apiServer: apiServer,
		logger:    logger,
	}, nil
}

// SendTestEmail delivers one ad-hoc template send through the engine,
// outside any campaign. Used by the send subcommand.
func (a *App) SendTestEmail(ctx context.Context, templateID, recipient, userID string) (*engine.DeliveryResult, error) {
	return a.engine.SendTestEmail(ctx, templateID, recipient, userID)
}

// Run starts all components and waits for shutdown.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting mailtide",
		"api_addr", a.config.Server.ListenAddr,
		"database", a.config.Database.Path,
		"batch_interval", a.config.Engine.BatchInterval,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Re-arm timers for campaigns that were scheduled when the process last
	// stopped. Past-due campaigns fire right away.
	if err := a.engine.Recover(ctx); err != nil {
		return fmt.Errorf("recovery scan failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop arming new batches first; an in-flight batch finishes on its own.
	a.engine.Shutdown()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if err := a.sandboxDB.Close(); err != nil {
		a.logger.Error("sandbox storage close error", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
