package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/web/middleware"
)

// SessionHandler handles attendance session lifecycle endpoints
type SessionHandler struct {
	sessions database.SessionStore
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions database.SessionStore) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// createSessionRequest represents a session creation request
type createSessionRequest struct {
	Title       string `json:"title"`
	SessionType string `json:"session_type"`
	Date        string `json:"date"`       // YYYY-MM-DD
	StartTime   string `json:"start_time"` // RFC3339
	EndTime     string `json:"end_time"`   // RFC3339
	UnitID      int64  `json:"unit_id"`
	IsMandatory bool   `json:"is_mandatory"`
	Location    string `json:"location"`
	Notes       string `json:"notes"`
}

func (req *createSessionRequest) toSession() (*database.AttendanceSession, error) {
	if req.Title == "" {
		return nil, errors.New("title is required")
	}
	if req.UnitID <= 0 {
		return nil, errors.New("unit_id is required")
	}
	sessionType := database.SessionType(req.SessionType)
	if !database.ValidSessionType(sessionType) {
		return nil, fmt.Errorf("invalid session_type %q", req.SessionType)
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", err)
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("invalid end_time: %w", err)
	}
	if !end.After(start) {
		return nil, errors.New("end_time must be after start_time")
	}

	return &database.AttendanceSession{
		Title:       req.Title,
		SessionType: sessionType,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		UnitID:      req.UnitID,
		IsMandatory: req.IsMandatory,
		Location:    req.Location,
		Notes:       req.Notes,
		IsActive:    true,
	}, nil
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	session, err := req.toSession()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if auth := middleware.GetSessionFromContext(r.Context()); auth != nil {
		session.CreatedBy = &auth.OfficerID
	}

	created, err := h.sessions.Create(r.Context(), session)
	if err != nil {
		log.Printf("Error creating session %s: %v", sanitizeForLog(req.Title), err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// List handles GET /api/v1/sessions (active sessions only)
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActive(r.Context())
	if err != nil {
		log.Printf("Error listing sessions: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("Error loading session %d: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// Close handles POST /api/v1/sessions/{id}/close
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	if err := h.sessions.Close(r.Context(), sessionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("Error closing session %d: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to close session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
