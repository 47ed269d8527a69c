package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/cadetops/muster/internal/database"
)

// CadetHandler serves cadet roster lookups
type CadetHandler struct {
	cadets database.CadetStore
}

// NewCadetHandler creates a new cadet handler
func NewCadetHandler(cadets database.CadetStore) *CadetHandler {
	return &CadetHandler{cadets: cadets}
}

// Get handles GET /api/v1/cadets/{id}
func (h *CadetHandler) Get(w http.ResponseWriter, r *http.Request) {
	cadetID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cadet ID")
		return
	}

	cadet, err := h.cadets.Get(r.Context(), cadetID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "cadet not found")
			return
		}
		log.Printf("Error loading cadet %d: %v", cadetID, err)
		respondError(w, http.StatusInternalServerError, "failed to load cadet")
		return
	}

	respondJSON(w, http.StatusOK, cadet)
}

// ListByUnit handles GET /api/v1/units/{id}/cadets
func (h *CadetHandler) ListByUnit(w http.ResponseWriter, r *http.Request) {
	unitID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid unit ID")
		return
	}

	cadets, err := h.cadets.ListByUnit(r.Context(), unitID)
	if err != nil {
		log.Printf("Error listing cadets for unit %d: %v", unitID, err)
		respondError(w, http.StatusInternalServerError, "failed to list cadets")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"cadets": cadets})
}
