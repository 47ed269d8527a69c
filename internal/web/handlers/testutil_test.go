package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/embedder"
	"github.com/cadetops/muster/internal/facematch"
	"github.com/cadetops/muster/internal/recognition"
	"github.com/cadetops/muster/internal/web/middleware"
)

// stubDetector returns a canned detection or error
type stubDetector struct {
	detection *embedder.Detection
	err       error
}

func (s *stubDetector) DetectFaces(_ context.Context, _ []byte) (*embedder.Detection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.detection, nil
}

// stubEmbedderStatus implements EmbedderStatusChecker
type stubEmbedderStatus struct {
	available bool
	model     string
}

func (s *stubEmbedderStatus) IsAvailable(_ context.Context) bool { return s.available }
func (s *stubEmbedderStatus) Model() string                      { return s.model }

// oneFaceDetection builds a single-face detection with the given embedding
func oneFaceDetection(embedding []float32) *embedder.Detection {
	return &embedder.Detection{
		Faces: []embedder.Face{{
			Index:     0,
			Embedding: embedding,
			Box:       embedder.BoundingBox{X: 10, Y: 10, W: 80, H: 80},
			Score:     0.98,
		}},
		Model: "Facenet512",
		Dim:   len(embedding),
	}
}

// newTestPipeline wires a pipeline over mock stores and a stub detector
func newTestPipeline(embeddings database.EmbeddingStore, attendance database.AttendanceStore, attempts database.AttemptLogStore, detector recognition.Detector) *recognition.Pipeline {
	matcher := facematch.NewMatcher(facematch.MetricCosine, facematch.DefaultMaxEuclideanDistance)
	return recognition.NewPipeline(embeddings, attendance, attempts, detector, matcher, recognition.PipelineConfig{
		Threshold: 0.4,
	})
}

// activeSession builds an active session for tests
func activeSession(id, unitID int64) database.AttendanceSession {
	now := time.Now()
	return database.AttendanceSession{
		ID:          id,
		Title:       "Morning Parade",
		SessionType: database.SessionDaily,
		Date:        now,
		StartTime:   now,
		EndTime:     now.Add(2 * time.Hour),
		UnitID:      unitID,
		IsActive:    true,
		CreatedAt:   now,
	}
}

// encodedImage returns a base64 payload that decodes to arbitrary bytes
func encodedImage() string {
	return base64.StdEncoding.EncodeToString([]byte("not-a-real-jpeg"))
}

// jsonBody marshals v into a request body reader
func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	return bytes.NewReader(data)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// requestWithOfficer attaches an authenticated officer session to the request
func requestWithOfficer(r *http.Request, officerID int64) *http.Request {
	session := &middleware.Session{
		ID:        "test-session",
		OfficerID: officerID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return r.WithContext(middleware.SetSessionInContext(r.Context(), session))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
