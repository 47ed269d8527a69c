package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/database/mock"
	"github.com/cadetops/muster/internal/recognition"
)

type faceFixture struct {
	handler    *FaceHandler
	embeddings *mock.MockEmbeddingStore
	cadets     *mock.MockCadetStore
	detector   *stubDetector
	index      *database.EnrollmentIndex
}

func newFaceFixture(t *testing.T) *faceFixture {
	t.Helper()

	f := &faceFixture{
		embeddings: mock.NewMockEmbeddingStore(),
		cadets:     mock.NewMockCadetStore(),
		detector:   &stubDetector{},
		index:      database.NewEnrollmentIndex(),
	}

	enroller := recognition.NewEnroller(f.embeddings, f.detector, f.index, "Facenet512")
	f.handler = NewFaceHandler(f.embeddings, f.cadets, enroller, f.index)

	cadet := database.Cadet{ID: 5, UnitID: 10, ServiceNumber: "SN001", FullName: "Jan Novak"}
	f.cadets.AddCadet(cadet)
	f.embeddings.AddCadet(cadet)
	return f
}

func enrollRequestBody(t *testing.T) *http.Request {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/cadets/5/face",
		jsonBody(t, map[string]string{"image": encodedImage()}))
	return requestWithChiParams(req, map[string]string{"id": "5"})
}

func TestFaceHandler_Enroll(t *testing.T) {
	f := newFaceFixture(t)
	f.detector.detection = oneFaceDetection([]float32{1, 0, 0})

	w := httptest.NewRecorder()
	f.handler.Enroll(w, enrollRequestBody(t))

	assertStatusCode(t, w, http.StatusOK)

	var resp EnrollResponse
	parseJSONResponse(t, w, &resp)
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.Model != "Facenet512" {
		t.Errorf("Model = %q, want Facenet512", resp.Model)
	}

	enrolled, err := f.embeddings.Get(context.Background(), 5)
	if err != nil || enrolled == nil {
		t.Fatalf("enrollment not stored: %v", err)
	}
}

func TestFaceHandler_EnrollNoFace(t *testing.T) {
	f := newFaceFixture(t)
	f.detector.detection = oneFaceDetection(nil)
	f.detector.detection.Faces = nil

	w := httptest.NewRecorder()
	f.handler.Enroll(w, enrollRequestBody(t))

	assertStatusCode(t, w, http.StatusUnprocessableEntity)

	var resp EnrollResponse
	parseJSONResponse(t, w, &resp)
	if resp.Error != recognition.CodeNoFace {
		t.Errorf("Error = %q, want %q", resp.Error, recognition.CodeNoFace)
	}
}

func TestFaceHandler_EnrollMultipleFaces(t *testing.T) {
	f := newFaceFixture(t)
	detection := oneFaceDetection([]float32{1, 0, 0})
	detection.Faces = append(detection.Faces, detection.Faces[0])
	f.detector.detection = detection

	w := httptest.NewRecorder()
	f.handler.Enroll(w, enrollRequestBody(t))

	assertStatusCode(t, w, http.StatusUnprocessableEntity)

	var resp EnrollResponse
	parseJSONResponse(t, w, &resp)
	if resp.Error != recognition.CodeMultipleFaces {
		t.Errorf("Error = %q, want %q", resp.Error, recognition.CodeMultipleFaces)
	}
}

func TestFaceHandler_EnrollUnknownCadet(t *testing.T) {
	f := newFaceFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/cadets/99/face",
		jsonBody(t, map[string]string{"image": encodedImage()}))
	req = requestWithChiParams(req, map[string]string{"id": "99"})

	f.handler.Enroll(w, req)

	assertStatusCode(t, w, http.StatusNotFound)
	assertJSONError(t, w, "cadet not found")
}

func TestFaceHandler_EnrollBadImagePayload(t *testing.T) {
	f := newFaceFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/cadets/5/face",
		jsonBody(t, map[string]string{"image": "!!! not base64 !!!"}))
	req = requestWithChiParams(req, map[string]string{"id": "5"})

	f.handler.Enroll(w, req)

	assertStatusCode(t, w, http.StatusBadRequest)
}

func TestFaceHandler_StatusNotEnrolled(t *testing.T) {
	f := newFaceFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/cadets/5/face", nil)
	req = requestWithChiParams(req, map[string]string{"id": "5"})

	f.handler.Status(w, req)

	assertStatusCode(t, w, http.StatusOK)

	var resp FaceStatusResponse
	parseJSONResponse(t, w, &resp)
	if resp.Enrolled {
		t.Error("expected not enrolled")
	}
}

func TestFaceHandler_StatusEnrolled(t *testing.T) {
	f := newFaceFixture(t)
	if _, err := f.embeddings.Enroll(context.Background(), 5, []float32{1, 0, 0}, "Facenet512", []byte("jpeg")); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/cadets/5/face", nil)
	req = requestWithChiParams(req, map[string]string{"id": "5"})

	f.handler.Status(w, req)

	assertStatusCode(t, w, http.StatusOK)

	var resp FaceStatusResponse
	parseJSONResponse(t, w, &resp)
	if !resp.Enrolled {
		t.Fatal("expected enrolled")
	}
	if !resp.HasThumbnail {
		t.Error("expected a thumbnail")
	}
	if resp.Model != "Facenet512" {
		t.Errorf("Model = %q, want Facenet512", resp.Model)
	}
}

func TestFaceHandler_Thumbnail(t *testing.T) {
	f := newFaceFixture(t)
	if _, err := f.embeddings.Enroll(context.Background(), 5, []float32{1, 0, 0}, "Facenet512", []byte("jpeg-bytes")); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/cadets/5/face/thumbnail", nil)
	req = requestWithChiParams(req, map[string]string{"id": "5"})

	f.handler.Thumbnail(w, req)

	assertStatusCode(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if w.Body.String() != "jpeg-bytes" {
		t.Error("thumbnail body mismatch")
	}
}

func TestFaceHandler_ThumbnailMissing(t *testing.T) {
	f := newFaceFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/cadets/5/face/thumbnail", nil)
	req = requestWithChiParams(req, map[string]string{"id": "5"})

	f.handler.Thumbnail(w, req)

	assertStatusCode(t, w, http.StatusNotFound)
}

func TestFaceHandler_Delete(t *testing.T) {
	f := newFaceFixture(t)
	if _, err := f.embeddings.Enroll(context.Background(), 5, []float32{1, 0, 0}, "Facenet512", nil); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/api/v1/cadets/5/face", nil)
	req = requestWithChiParams(req, map[string]string{"id": "5"})

	f.handler.Delete(w, req)

	assertStatusCode(t, w, http.StatusOK)

	enrolled, err := f.embeddings.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if enrolled != nil {
		t.Error("enrollment should be removed")
	}
}

func TestFaceHandler_Similar(t *testing.T) {
	f := newFaceFixture(t)

	// Two close enrollments and one distant.
	if _, err := f.embeddings.Enroll(context.Background(), 5, []float32{1, 0, 0}, "Facenet512", nil); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	f.index.Upsert(5, []float32{1, 0, 0})
	f.index.Upsert(6, []float32{0.99, 0.1, 0})
	f.index.Upsert(7, []float32{0, 0, 1})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/faces/similar?cadet_id=5&k=2", nil)

	f.handler.Similar(w, req)

	assertStatusCode(t, w, http.StatusOK)

	var resp SimilarResponse
	parseJSONResponse(t, w, &resp)
	if resp.CadetID != 5 {
		t.Errorf("CadetID = %d, want 5", resp.CadetID)
	}
	if len(resp.Similar) == 0 {
		t.Fatal("expected at least one similar face")
	}
	for _, s := range resp.Similar {
		if s.CadetID == 5 {
			t.Error("result must not contain the cadet's own enrollment")
		}
	}
	if resp.Similar[0].CadetID != 6 {
		t.Errorf("nearest = %d, want 6", resp.Similar[0].CadetID)
	}
}

func TestFaceHandler_SimilarNoEnrollment(t *testing.T) {
	f := newFaceFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/faces/similar?cadet_id=5", nil)

	f.handler.Similar(w, req)

	assertStatusCode(t, w, http.StatusNotFound)
}
