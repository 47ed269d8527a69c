package handlers

import (
	"context"
	"net/http"
)

// EmbedderStatusChecker is the capability probe the status endpoint needs.
type EmbedderStatusChecker interface {
	IsAvailable(ctx context.Context) bool
	Model() string
}

// EmbedderHandler reports the state of the external embedding service
type EmbedderHandler struct {
	checker EmbedderStatusChecker
}

// NewEmbedderHandler creates a new embedder status handler
func NewEmbedderHandler(checker EmbedderStatusChecker) *EmbedderHandler {
	return &EmbedderHandler{checker: checker}
}

// EmbedderStatusResponse describes embedder availability
type EmbedderStatusResponse struct {
	Available bool   `json:"available"`
	Model     string `json:"model"`
}

// Status handles GET /api/v1/embedder/status
func (h *EmbedderHandler) Status(w http.ResponseWriter, r *http.Request) {
	available := h.checker.IsAvailable(r.Context())

	status := http.StatusOK
	if !available {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, EmbedderStatusResponse{
		Available: available,
		Model:     h.checker.Model(),
	})
}
