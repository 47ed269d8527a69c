package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/database/mock"
	"github.com/cadetops/muster/internal/web/middleware"
)

func newAuthFixture(t *testing.T) (*AuthHandler, *middleware.SessionManager) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	officers := mock.NewMockOfficerStore()
	officers.AddOfficer(database.Officer{
		ID:           7,
		UnitID:       1,
		Username:     "lt.novak",
		FullName:     "Lt. Jana Novak",
		PasswordHash: string(hash),
	})

	sm := middleware.NewSessionManager("test-secret", nil)
	t.Cleanup(sm.Stop)

	return NewAuthHandler(officers, sm), sm
}

func TestAuthHandler_Login(t *testing.T) {
	handler, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login",
		strings.NewReader(`{"username": "lt.novak", "password": "correct-horse"}`))

	handler.Login(w, req)

	assertStatusCode(t, w, http.StatusOK)

	var resp LoginResponse
	parseJSONResponse(t, w, &resp)
	if !resp.Success {
		t.Error("expected successful login")
	}
	if resp.SessionID == "" {
		t.Error("expected a session ID")
	}
	if resp.Officer != "Lt. Jana Novak" {
		t.Errorf("Officer = %q, want Lt. Jana Novak", resp.Officer)
	}

	// Session cookie must be set.
	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "muster_session" {
			found = true
		}
	}
	if !found {
		t.Error("session cookie not set")
	}
}

func TestAuthHandler_LoginWrongPassword(t *testing.T) {
	handler, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login",
		strings.NewReader(`{"username": "lt.novak", "password": "wrong"}`))

	handler.Login(w, req)

	assertStatusCode(t, w, http.StatusUnauthorized)

	var resp LoginResponse
	parseJSONResponse(t, w, &resp)
	if resp.Success {
		t.Error("expected failed login")
	}
	if resp.Error != "invalid credentials" {
		t.Errorf("Error = %q, want invalid credentials", resp.Error)
	}
}

func TestAuthHandler_LoginUnknownUser(t *testing.T) {
	handler, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login",
		strings.NewReader(`{"username": "nobody", "password": "whatever"}`))

	handler.Login(w, req)

	assertStatusCode(t, w, http.StatusUnauthorized)
}

func TestAuthHandler_LoginMissingFields(t *testing.T) {
	handler, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login",
		strings.NewReader(`{"username": "lt.novak"}`))

	handler.Login(w, req)

	assertStatusCode(t, w, http.StatusBadRequest)
	assertJSONError(t, w, "username and password are required")
}

func TestAuthHandler_LoginInvalidBody(t *testing.T) {
	handler, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader("not json"))

	handler.Login(w, req)

	assertStatusCode(t, w, http.StatusBadRequest)
	assertJSONError(t, w, errInvalidRequestBody)
}

func TestAuthHandler_LogoutDeletesSession(t *testing.T) {
	handler, sm := newAuthFixture(t)

	session, _ := sm.CreateSession(7, "Lt. Jana Novak")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)

	handler.Logout(w, req)

	assertStatusCode(t, w, http.StatusOK)
	if sm.GetSession(session.ID) != nil {
		t.Error("session should be deleted after logout")
	}
}

func TestAuthHandler_Status(t *testing.T) {
	handler, sm := newAuthFixture(t)

	// Unauthenticated.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/auth/status", nil)
	handler.Status(w, req)

	assertStatusCode(t, w, http.StatusOK)
	var resp StatusResponse
	parseJSONResponse(t, w, &resp)
	if resp.Authenticated {
		t.Error("expected unauthenticated status")
	}

	// Authenticated.
	session, _ := sm.CreateSession(7, "Lt. Jana Novak")
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/auth/status", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	handler.Status(w, req)

	assertStatusCode(t, w, http.StatusOK)
	parseJSONResponse(t, w, &resp)
	if !resp.Authenticated {
		t.Error("expected authenticated status")
	}
	if resp.Officer != "Lt. Jana Novak" {
		t.Errorf("Officer = %q, want Lt. Jana Novak", resp.Officer)
	}
}
