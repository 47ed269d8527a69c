package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/recognition"
	"github.com/cadetops/muster/internal/web/middleware"
)

// clientOrigin derives the attempt-log origin from the request. Direct
// connections carry "host:port" (IPv6 as "[addr]:port") in RemoteAddr, so
// the port is stripped; RealIP middleware rewrites RemoteAddr to a bare IP
// behind a proxy, in which case the value is used as-is.
func clientOrigin(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// AttendanceHandler handles attendance marking and listing
type AttendanceHandler struct {
	pipeline   *recognition.Pipeline
	sessions   database.SessionStore
	attendance database.AttendanceStore
	cadets     database.CadetStore
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(pipeline *recognition.Pipeline, sessions database.SessionStore, attendance database.AttendanceStore, cadets database.CadetStore) *AttendanceHandler {
	return &AttendanceHandler{
		pipeline:   pipeline,
		sessions:   sessions,
		attendance: attendance,
		cadets:     cadets,
	}
}

// faceRequest represents a face attendance probe
type faceRequest struct {
	Image string `json:"image"`
}

// MarkByFace handles POST /api/v1/sessions/{id}/attendance/face
func (h *AttendanceHandler) MarkByFace(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	session, err := h.sessions.GetActive(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no active session with this ID")
			return
		}
		log.Printf("Error loading session %d: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	var req faceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result := h.pipeline.Process(r.Context(), session, req.Image, clientOrigin(r))

	status := http.StatusOK
	if !result.Success {
		switch result.Code {
		case recognition.CodeEmbedderUnavailable:
			status = http.StatusServiceUnavailable
		case recognition.CodeServerError:
			status = http.StatusInternalServerError
		default:
			status = http.StatusUnprocessableEntity
		}
	}
	respondJSON(w, status, result)
}

// manualMarkRequest represents an officer marking attendance by hand
type manualMarkRequest struct {
	Status  string `json:"status"`
	Remarks string `json:"remarks"`
}

// MarkManualResponse represents the manual marking response
type MarkManualResponse struct {
	Success bool                       `json:"success"`
	Created bool                       `json:"created"`
	Record  *database.AttendanceRecord `json:"record"`
}

// MarkManual handles PUT /api/v1/sessions/{id}/attendance/{cadetID}
func (h *AttendanceHandler) MarkManual(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}
	cadetID, ok := idParam(r, "cadetID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cadet ID")
		return
	}

	var req manualMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	status := database.AttendanceStatus(req.Status)
	if !database.ValidAttendanceStatus(status) {
		respondError(w, http.StatusBadRequest, "invalid attendance status")
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
	if _, err := h.cadets.Get(r.Context(), cadetID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "cadet not found")
			return
		}
		log.Printf("Error loading cadet %d: %v", cadetID, err)
		respondError(w, http.StatusInternalServerError, "failed to load cadet")
		return
	}

	upsert := database.AttendanceUpsert{
		SessionID:     sessionID,
		CadetID:       cadetID,
		Status:        status,
		InsertRemarks: req.Remarks,
		UpdateRemarks: req.Remarks,
	}
	if session := middleware.GetSessionFromContext(r.Context()); session != nil {
		upsert.MarkedBy = &session.OfficerID
	}
	if status == database.StatusPresent || status == database.StatusLate {
		now := time.Now()
		upsert.CheckInTime = &now
	}

	record, created, err := h.attendance.Upsert(r.Context(), upsert)
	if err != nil {
		log.Printf("Error marking attendance for cadet %d in session %d: %v", cadetID, sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to mark attendance")
		return
	}

	respondJSON(w, http.StatusOK, MarkManualResponse{
		Success: true,
		Created: created,
		Record:  record,
	})
}

// ListResponse carries the attendance records of one session
type ListResponse struct {
	SessionID int64                       `json:"session_id"`
	Records   []database.AttendanceRecord `json:"records"`
}

// List handles GET /api/v1/sessions/{id}/attendance
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
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

	records, err := h.attendance.ListBySession(r.Context(), sessionID)
	if err != nil {
		log.Printf("Error listing attendance for session %d: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	respondJSON(w, http.StatusOK, ListResponse{SessionID: sessionID, Records: records})
}

// Stats handles GET /api/v1/sessions/{id}/stats
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
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

	stats, err := h.attendance.Stats(r.Context(), sessionID)
	if err != nil {
		log.Printf("Error computing stats for session %d: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
