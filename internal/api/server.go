// Package api exposes the campaign administration HTTP API: campaign
// lifecycle operations, test sends and the sandbox message browser.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailtide/mailtide/internal/config"
	"github.com/mailtide/mailtide/internal/engine"
	"github.com/mailtide/mailtide/internal/models"
	"github.com/mailtide/mailtide/internal/transport"
)

// Engine is the subset of the campaign engine the API drives.
type Engine interface {
	ScheduleCampaign(ctx context.Context, campaignID string) error
	CancelCampaign(ctx context.Context, campaignID string) error
	ProcessBatch(ctx context.Context, campaignID string, batchSize int) (*engine.BatchResult, error)
	SendTestEmail(ctx context.Context, templateID, recipientEmail, userID string) (*engine.DeliveryResult, error)
}

// CampaignStore is the campaign persistence the API reads and writes.
type CampaignStore interface {
	Create(ctx context.Context, c *models.Campaign) error
	Get(ctx context.Context, id string) (*models.Campaign, error)
}

// SandboxReader lists and fetches sandbox-captured messages.
type SandboxReader interface {
	Get(id string) (*transport.CapturedMessage, error)
	List(limit int) ([]*transport.CapturedMessage, error)
	Count() (int, error)
}

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	engine    Engine
	campaigns CampaignStore
	sandbox   SandboxReader

	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time
}

// NewServer creates the API server. sandbox and metricsHandler may be nil;
// the corresponding routes are then not mounted.
func NewServer(eng Engine, campaigns CampaignStore, sandbox SandboxReader, metricsHandler http.Handler, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		engine:    eng,
		campaigns: campaigns,
		sandbox:   sandbox,
		cfg:       cfg,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes(metricsHandler)
	return s
}

func (s *Server) setupRoutes(metricsHandler http.Handler) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health and metrics carry no auth.
	s.router.Get("/health", s.handleHealth)
	if metricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Post("/campaigns/{id}/schedule", s.handleScheduleCampaign)
		r.Post("/campaigns/{id}/cancel", s.handleCancelCampaign)
		r.Post("/campaigns/{id}/batch", s.handleProcessBatch)

		r.Post("/test-send", s.handleTestSend)

		if s.sandbox != nil {
			r.Get("/sandbox/messages", s.handleSandboxList)
			r.Get("/sandbox/messages/{id}", s.handleSandboxGet)
		}
	})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.cfg.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
