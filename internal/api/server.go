// Package api provides the HTTP and websocket surface over the session
// manager.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/danabrams/codegen/internal/logging"
	"github.com/danabrams/codegen/internal/manager"
	"github.com/danabrams/codegen/internal/metrics"
	"github.com/danabrams/codegen/internal/runner"
)

// Runner executes generated code.
type Runner interface {
	Run(ctx context.Context, code string) (*runner.Result, error)
}

// Server is the HTTP server for codegen.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	manager    *manager.Manager
	runner     Runner
	hub        *Hub
	turns      *rate.Limiter
	apiKey     string
}

// Config holds server configuration.
type Config struct {
	Port           int
	APIKey         string
	CORSOrigins    []string
	TurnsPerSecond float64 // zero disables turn rate limiting
	TurnBurst      int
}

// New creates a new Server. The hub must be the manager's renderer for
// websocket clients to see turn events. runner may be nil when node is not
// available; /api/run then answers 503.
func New(cfg Config, m *manager.Manager, hub *Hub, r Runner) *Server {
	srv := &Server{
		router:  chi.NewRouter(),
		manager: m,
		runner:  r,
		hub:     hub,
		apiKey:  cfg.APIKey,
	}
	if cfg.TurnsPerSecond > 0 {
		burst := cfg.TurnBurst
		if burst < 1 {
			burst = 1
		}
		srv.turns = rate.NewLimiter(rate.Limit(cfg.TurnsPerSecond), burst)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// recovery -> request id -> logging -> cors -> auth -> routes
	srv.router.Use(RecoveryMiddleware)
	srv.router.Use(RequestIDMiddleware)
	srv.router.Use(LoggingMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.APIKey != "" {
		srv.router.Use(AuthMiddleware(cfg.APIKey))
	}
	srv.registerRoutes()

	srv.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     srv.router,
		ReadTimeout: 15 * time.Second,
		// Turns wait on the completion endpoint; no write timeout.
		IdleTimeout: 60 * time.Second,
	}

	return srv
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/activate", s.handleActivateSession)
				r.With(RateLimitMiddleware(s.turns)).Post("/turns", s.handleSubmitTurn)
			})
		})

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Post("/run", s.handleRun)
		r.Get("/events", s.handleEventsWS)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		logging.Info().Str("addr", s.httpServer.Addr).Msg("starting server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logging.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logging.Info().Msg("server stopped gracefully")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
