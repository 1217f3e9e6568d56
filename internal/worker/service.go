// Package worker provides the HTTP API service for medguardian.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/adithyakrish0/medguardian/internal/config"
	dbgorm "github.com/adithyakrish0/medguardian/internal/db/gorm"
	"github.com/adithyakrish0/medguardian/internal/refstore"
	"github.com/adithyakrish0/medguardian/internal/session"
	"github.com/adithyakrish0/medguardian/internal/worker/sse"
)

// Service is the HTTP API for the verification engine. It fronts the session
// manager; all decisions happen in the manager's session actors, the service
// only translates HTTP to manager calls.
type Service struct {
	version string
	config  *config.Config

	manager  *session.Manager
	registry *refstore.Registry
	audit    *dbgorm.AuditStore // nil when auditing is disabled
	sseCast  *sse.Broadcaster

	router     *chi.Mux
	httpServer *http.Server

	ctx       context.Context
	cancel    context.CancelFunc
	ready     atomic.Bool
	startTime time.Time
}

// NewService creates the HTTP service. audit may be nil.
func NewService(version string, cfg *config.Config, manager *session.Manager, registry *refstore.Registry, audit *dbgorm.AuditStore, broadcaster *sse.Broadcaster) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:   version,
		config:    cfg,
		manager:   manager,
		registry:  registry,
		audit:     audit,
		sseCast:   broadcaster,
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// setupRoutes wires all API routes.
func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.sseCast.HandleSSE)
		r.Get("/medications", s.handleListMedications)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleListSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleStopSession)
				r.Post("/frames", s.handleSubmitFrame)
				r.Post("/confirm", s.handleManualConfirm)
				r.Post("/sensor-error", s.handleSensorError)
			})
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/sessions", s.handleAuditSessions)
			r.Get("/sessions/{sessionID}/events", s.handleAuditEvents)
		})
	})
}

// Start begins serving HTTP on the configured port. Blocks until the server
// exits.
func (s *Service) Start() error {
	addr := fmt.Sprintf(":%d", s.config.WorkerPort)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.ready.Store(true)
	log.Info().Str("addr", addr).Str("version", s.version).Msg("HTTP API listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Service) Stop(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the chi mux, used by tests.
func (s *Service) Router() http.Handler {
	return s.router
}
