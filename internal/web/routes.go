package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/cadetops/muster/internal/web/handlers"
	"github.com/cadetops/muster/internal/web/middleware"
)

func (s *Server) setupRoutes(sessionManager *middleware.SessionManager) {
	// Create handlers
	authHandler := handlers.NewAuthHandler(s.deps.Officers, sessionManager)
	sessionHandler := handlers.NewSessionHandler(s.deps.Sessions)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Pipeline, s.deps.Sessions, s.deps.Attendance, s.deps.Cadets)
	attemptLogHandler := handlers.NewAttemptLogHandler(s.deps.Attempts, s.deps.Sessions)
	faceHandler := handlers.NewFaceHandler(s.deps.Embeddings, s.deps.Cadets, s.deps.Enroller, s.deps.Index)
	cadetHandler := handlers.NewCadetHandler(s.deps.Cadets)
	embedderHandler := handlers.NewEmbedderHandler(s.deps.Embedder)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth routes
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// All other routes require an officer session
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sessionManager))

			// Attendance sessions
			r.Get("/sessions", sessionHandler.List)
			r.Post("/sessions", sessionHandler.Create)
			r.Get("/sessions/{id}", sessionHandler.Get)
			r.Post("/sessions/{id}/close", sessionHandler.Close)
			r.Get("/sessions/{id}/stats", attendanceHandler.Stats)

			// Attendance
			r.Post("/sessions/{id}/attendance/face", attendanceHandler.MarkByFace)
			r.Get("/sessions/{id}/attendance", attendanceHandler.List)
			r.Put("/sessions/{id}/attendance/{cadetID}", attendanceHandler.MarkManual)

			// Probe audit trail
			r.Get("/sessions/{id}/attempts", attemptLogHandler.List)

			// Cadets and face enrollment
			r.Get("/cadets/{id}", cadetHandler.Get)
			r.Get("/units/{id}/cadets", cadetHandler.ListByUnit)
			r.Post("/cadets/{id}/face", faceHandler.Enroll)
			r.Get("/cadets/{id}/face", faceHandler.Status)
			r.Get("/cadets/{id}/face/thumbnail", faceHandler.Thumbnail)
			r.Delete("/cadets/{id}/face", faceHandler.Delete)
			r.Get("/faces/similar", faceHandler.Similar)

			// Embedder capability probe
			r.Get("/embedder/status", embedderHandler.Status)
		})
	})
}
