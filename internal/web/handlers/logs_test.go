package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/database/mock"
)

func newLogFixture(t *testing.T) (*AttemptLogHandler, *mock.MockAttemptLogStore) {
	t.Helper()
	attempts := mock.NewMockAttemptLogStore()
	sessions := mock.NewMockSessionStore()
	sessions.AddSession(activeSession(1, 10))
	return NewAttemptLogHandler(attempts, sessions), attempts
}

func TestAttemptLogHandler_List(t *testing.T) {
	handler, attempts := newLogFixture(t)

	cadetID := int64(5)
	confidence := 0.93
	for _, l := range []database.AttemptLog{
		{SessionID: 1, Status: database.AttemptNone, Origin: "10.0.0.1"},
		{SessionID: 1, CadetID: &cadetID, Status: database.AttemptSuccess, Confidence: &confidence, Origin: "10.0.0.1"},
	} {
		log := l
		if err := attempts.Append(context.Background(), &log); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/sessions/1/attempts", nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})

	handler.List(w, req)

	assertStatusCode(t, w, http.StatusOK)

	var resp AttemptsResponse
	parseJSONResponse(t, w, &resp)
	if len(resp.Attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(resp.Attempts))
	}
	// Newest first.
	if resp.Attempts[0].Status != database.AttemptSuccess {
		t.Errorf("first status = %s, want SUCCESS", resp.Attempts[0].Status)
	}
}

func TestAttemptLogHandler_ListLimit(t *testing.T) {
	handler, attempts := newLogFixture(t)

	for i := 0; i < 5; i++ {
		log := database.AttemptLog{SessionID: 1, Status: database.AttemptUnknown, Origin: "10.0.0.1"}
		if err := attempts.Append(context.Background(), &log); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/sessions/1/attempts?limit=3", nil)
	req = requestWithChiParams(req, map[string]string{"id": "1"})

	handler.List(w, req)

	assertStatusCode(t, w, http.StatusOK)

	var resp AttemptsResponse
	parseJSONResponse(t, w, &resp)
	if len(resp.Attempts) != 3 {
		t.Errorf("got %d attempts, want 3", len(resp.Attempts))
	}
}

func TestAttemptLogHandler_ListUnknownSession(t *testing.T) {
	handler, _ := newLogFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/sessions/42/attempts", nil)
	req = requestWithChiParams(req, map[string]string{"id": "42"})

	handler.List(w, req)

	assertStatusCode(t, w, http.StatusNotFound)
}
