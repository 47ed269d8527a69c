package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/recognition"
	"github.com/cadetops/muster/internal/web/handlers"
	"github.com/cadetops/muster/internal/web/middleware"
)

// Deps carries everything the HTTP layer needs. Stores are interfaces so
// handler tests can plug in mocks.
type Deps struct {
	Embeddings database.EmbeddingStore
	Attendance database.AttendanceStore
	Attempts   database.AttemptLogStore
	Sessions   database.SessionStore
	Cadets     database.CadetStore
	Officers   database.OfficerStore

	Pipeline *recognition.Pipeline
	Enroller *recognition.Enroller
	Index    *database.EnrollmentIndex
	Embedder handlers.EmbedderStatusChecker

	SessionRepo middleware.SessionRepository
}

// Server represents the web server
type Server struct {
	router         *chi.Mux
	httpServer     *http.Server
	deps           Deps
	sessionManager *middleware.SessionManager
}

// NewServer creates a new web server
func NewServer(port int, host string, sessionSecret string, deps Deps) *Server {
	r := chi.NewRouter()

	// Create session manager with optional persistence
	sessionManager := middleware.NewSessionManager(sessionSecret, deps.SessionRepo)

	s := &Server{
		router:         r,
		deps:           deps,
		sessionManager: sessionManager,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(1 * time.Minute))
	r.Use(middleware.CORS())
	r.Use(middleware.SecurityHeaders())

	// Set up routes
	s.setupRoutes(sessionManager)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	// Stop the session cleanup goroutine
	if s.sessionManager != nil {
		s.sessionManager.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
