// Package server exposes the analysis pipeline over HTTP: enqueue runs, poll
// jobs, fetch completed results.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"commentpulse/internal/config"
	"commentpulse/internal/core"
	"commentpulse/internal/jobs"
	"commentpulse/internal/logger"
	"commentpulse/internal/pipeline"
	"commentpulse/internal/queue"
	"commentpulse/internal/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ResultGetter fetches completed analysis results.
type ResultGetter interface {
	GetAnalysisResult(ctx context.Context, id string) (*core.AnalysisResult, error)
}

// Server is the HTTP server.
type Server struct {
	router       *chi.Mux
	httpServer   *http.Server
	service      *queue.Service
	lifecycle    *jobs.Lifecycle
	orchestrator *pipeline.Orchestrator
	results      ResultGetter
	config       config.Server
	limiter      ratelimit.Store
	log          *slog.Logger
}

// New creates the HTTP server.
func New(service *queue.Service, lifecycle *jobs.Lifecycle, orchestrator *pipeline.Orchestrator, results ResultGetter, limiter ratelimit.Store, cfg config.Server) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		service:      service,
		lifecycle:    lifecycle,
		orchestrator: orchestrator,
		results:      results,
		config:       cfg,
		limiter:      limiter,
		log:          logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			// Enqueue is the expensive surface; only it gets rate limited.
			if s.limiter != nil && s.config.RateLimit.Requests > 0 {
				r.With(ratelimit.Middleware(s.limiter, int64(s.config.RateLimit.Requests))).
					Post("/", s.handleEnqueue)
			} else {
				r.Post("/", s.handleEnqueue)
			}
			r.Get("/{id}", s.handleGetResult)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/{id}", s.handleGetJob)
			r.Post("/{id}/retry", s.handleRetryJob)
			r.Post("/{id}/cancel", s.handleCancelJob)
		})
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance, useful for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
