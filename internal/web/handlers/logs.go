package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/cadetops/muster/internal/database"
)

// defaultAttemptLimit bounds attempt-log listings unless the caller asks
// for fewer.
const defaultAttemptLimit = 100

// AttemptLogHandler serves the per-session probe audit trail
type AttemptLogHandler struct {
	attempts database.AttemptLogStore
	sessions database.SessionStore
}

// NewAttemptLogHandler creates a new attempt log handler
func NewAttemptLogHandler(attempts database.AttemptLogStore, sessions database.SessionStore) *AttemptLogHandler {
	return &AttemptLogHandler{attempts: attempts, sessions: sessions}
}

// AttemptsResponse carries the attempt log of one session, newest first
type AttemptsResponse struct {
	SessionID int64                 `json:"session_id"`
	Attempts  []database.AttemptLog `json:"attempts"`
}

// List handles GET /api/v1/sessions/{id}/attempts?limit=N
func (h *AttemptLogHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("Error loading session %d: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	limit := defaultAttemptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= defaultAttemptLimit {
			limit = n
		}
	}

	attempts, err := h.attempts.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		log.Printf("Error listing attempts for session %d: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	respondJSON(w, http.StatusOK, AttemptsResponse{SessionID: sessionID, Attempts: attempts})
}
