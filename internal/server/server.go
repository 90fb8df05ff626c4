// Package server wires the admin HTTP API: routes, middleware, and a
// listener that shuts down gracefully when its context ends.
//
// ROUTES:
//
//	GET  /healthz                   → liveness
//	GET  /api/leaders/{category}    → persisted leader set
//	GET  /api/sessions              → which categories are authorized
//	POST /api/jobs/{category}/run   → run one cycle now (operator token)
//
// Reads are open to anyone who can reach the admin address; the only
// endpoint with side effects requires an operator JWT.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/highest-aircraft/internal/auth"
	"github.com/sakif/highest-aircraft/internal/handler"
	"github.com/sakif/highest-aircraft/internal/middleware"
)

const shutdownGrace = 30 * time.Second

// Config holds admin server configuration.
type Config struct {
	Addr string
	// RunTimeout bounds a manual job run. The write timeout is derived from
	// it so a long run is not cut off mid-response.
	RunTimeout time.Duration
}

// Server is the admin HTTP server.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
}

// New builds the router. Nothing listens until Run.
func New(cfg Config, jobs handler.JobService, sessions handler.SessionLister, tokens *auth.TokenService, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(jobs, sessions, tokens)
	return s
}

// setupRoutes registers middleware and handlers. Order matters:
// RequestID must run before Logger so every log line carries the ID.
func (s *Server) setupRoutes(jobs handler.JobService, sessions handler.SessionLister, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	jobHandler := handler.NewJobHandler(jobs, s.config.RunTimeout, s.logger)
	sessionHandler := handler.NewSessionHandler(sessions, s.logger)

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/leaders/{category}", jobHandler.HandleLeaders)
		r.Get("/sessions", sessionHandler.HandleList)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOperator(tokens))
			r.Post("/jobs/{category}/run", jobHandler.HandleRun)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then gives in-flight requests
// shutdownGrace to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.RunTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("admin server starting", slog.String("addr", s.config.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: admin listener: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("admin server stopped gracefully")
		return nil
	}
}
