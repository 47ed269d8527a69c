package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/embedder"
	"github.com/cadetops/muster/internal/recognition"
)

// FaceHandler handles face enrollment endpoints
type FaceHandler struct {
	embeddings database.EmbeddingStore
	cadets     database.CadetStore
	enroller   *recognition.Enroller
	index      *database.EnrollmentIndex
}

// NewFaceHandler creates a new face enrollment handler
func NewFaceHandler(embeddings database.EmbeddingStore, cadets database.CadetStore, enroller *recognition.Enroller, index *database.EnrollmentIndex) *FaceHandler {
	return &FaceHandler{
		embeddings: embeddings,
		cadets:     cadets,
		enroller:   enroller,
		index:      index,
	}
}

// enrollRequest represents a face enrollment request
type enrollRequest struct {
	Image string `json:"image"`
}

// EnrollResponse represents a face enrollment response
type EnrollResponse struct {
	Success      bool                   `json:"success"`
	CadetID      int64                  `json:"cadet_id"`
	Model        string                 `json:"model,omitempty"`
	SimilarFaces []database.SimilarFace `json:"similar_faces,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Enroll handles POST /api/v1/cadets/{id}/face
func (h *FaceHandler) Enroll(w http.ResponseWriter, r *http.Request) {
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

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	img, err := recognition.DecodeImage(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not decode image data")
		return
	}

	enrolled, similar, err := h.enroller.Enroll(r.Context(), cadet.ID, img)
	if err != nil {
		switch {
		case errors.Is(err, recognition.ErrNoFaceDetected):
			respondJSON(w, http.StatusUnprocessableEntity, EnrollResponse{
				Success: false, CadetID: cadet.ID, Error: recognition.CodeNoFace,
			})
		case errors.Is(err, recognition.ErrMultipleFacesDetected):
			respondJSON(w, http.StatusUnprocessableEntity, EnrollResponse{
				Success: false, CadetID: cadet.ID, Error: recognition.CodeMultipleFaces,
			})
		case errors.Is(err, embedder.ErrUnavailable):
			respondJSON(w, http.StatusServiceUnavailable, EnrollResponse{
				Success: false, CadetID: cadet.ID, Error: recognition.CodeEmbedderUnavailable,
			})
		case errors.Is(err, database.ErrInvalidVector):
			respondJSON(w, http.StatusUnprocessableEntity, EnrollResponse{
				Success: false, CadetID: cadet.ID, Error: recognition.CodeNoEncoding,
			})
		default:
			log.Printf("Error enrolling cadet %d: %v", cadet.ID, err)
			respondError(w, http.StatusInternalServerError, "enrollment failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, EnrollResponse{
		Success:      true,
		CadetID:      cadet.ID,
		Model:        enrolled.Model,
		SimilarFaces: similar,
	})
}

// FaceStatusResponse describes a cadet's enrollment state
type FaceStatusResponse struct {
	CadetID      int64  `json:"cadet_id"`
	Enrolled     bool   `json:"enrolled"`
	Model        string `json:"model,omitempty"`
	HasThumbnail bool   `json:"has_thumbnail"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// Status handles GET /api/v1/cadets/{id}/face
func (h *FaceHandler) Status(w http.ResponseWriter, r *http.Request) {
	cadetID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cadet ID")
		return
	}

	enrolled, err := h.embeddings.Get(r.Context(), cadetID)
	if err != nil {
		log.Printf("Error loading enrollment for cadet %d: %v", cadetID, err)
		respondError(w, http.StatusInternalServerError, "failed to load enrollment")
		return
	}
	if enrolled == nil {
		respondJSON(w, http.StatusOK, FaceStatusResponse{CadetID: cadetID, Enrolled: false})
		return
	}

	respondJSON(w, http.StatusOK, FaceStatusResponse{
		CadetID:      cadetID,
		Enrolled:     true,
		Model:        enrolled.Model,
		HasThumbnail: len(enrolled.Thumbnail) > 0,
		UpdatedAt:    enrolled.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// Thumbnail handles GET /api/v1/cadets/{id}/face/thumbnail
func (h *FaceHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	cadetID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cadet ID")
		return
	}

	enrolled, err := h.embeddings.Get(r.Context(), cadetID)
	if err != nil {
		log.Printf("Error loading enrollment for cadet %d: %v", cadetID, err)
		respondError(w, http.StatusInternalServerError, "failed to load enrollment")
		return
	}
	if enrolled == nil || len(enrolled.Thumbnail) == 0 {
		respondError(w, http.StatusNotFound, "no thumbnail for cadet")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(enrolled.Thumbnail)
}

// Delete handles DELETE /api/v1/cadets/{id}/face
func (h *FaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cadetID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cadet ID")
		return
	}

	if err := h.embeddings.Remove(r.Context(), cadetID); err != nil {
		log.Printf("Error removing enrollment for cadet %d: %v", cadetID, err)
		respondError(w, http.StatusInternalServerError, "failed to remove enrollment")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SimilarResponse lists enrollments close to a cadet's embedding
type SimilarResponse struct {
	CadetID int64                  `json:"cadet_id"`
	Similar []database.SimilarFace `json:"similar"`
}

// Similar handles GET /api/v1/faces/similar?cadet_id=N&k=M.
// This is a diagnostic for spotting duplicate or mixed-up enrollments.
func (h *FaceHandler) Similar(w http.ResponseWriter, r *http.Request) {
	cadetID, err := strconv.ParseInt(r.URL.Query().Get("cadet_id"), 10, 64)
	if err != nil || cadetID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid cadet_id")
		return
	}

	k := 5
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			k = n
		}
	}

	enrolled, err := h.embeddings.Get(r.Context(), cadetID)
	if err != nil {
		log.Printf("Error loading enrollment for cadet %d: %v", cadetID, err)
		respondError(w, http.StatusInternalServerError, "failed to load enrollment")
		return
	}
	if enrolled == nil {
		respondError(w, http.StatusNotFound, "cadet has no enrollment")
		return
	}

	// k+1 because the cadet's own enrollment is its nearest neighbor.
	matches, err := h.index.Search(enrolled.Embedding, k+1, 1.0)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "similarity index unavailable")
		return
	}

	similar := make([]database.SimilarFace, 0, k)
	for _, m := range matches {
		if m.CadetID == cadetID {
			continue
		}
		similar = append(similar, m)
		if len(similar) == k {
			break
		}
	}

	respondJSON(w, http.StatusOK, SimilarResponse{CadetID: cadetID, Similar: similar})
}
