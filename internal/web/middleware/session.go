package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookieName = "muster_session"
	sessionDuration   = 24 * time.Hour
	cleanupInterval   = 1 * time.Hour
)

// Session represents a logged-in officer's session
type Session struct {
	ID          string    `json:"id"`
	OfficerID   int64     `json:"officer_id"`
	OfficerName string    `json:"officer_name"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// StoredSession is the persisted subset of a session. A session restored
// from storage carries just the officer ID; the officer name is looked up
// again on demand.
type StoredSession struct {
	ID        string
	OfficerID int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository persists sessions so logins survive a restart.
type SessionRepository interface {
	Save(ctx context.Context, id string, officerID int64, createdAt, expiresAt time.Time) error
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionManager handles session creation and validation with an in-memory
// cache backed by optional persistent storage.
type SessionManager struct {
	secret   []byte
	repo     SessionRepository
	sessions map[string]*Session
	mu       sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a new session manager. repo may be nil, in which
// case sessions live only in memory.
func NewSessionManager(secret string, repo SessionRepository) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "muster-dev-secret-change-in-production"
	}
	sm := &SessionManager{
		secret:   []byte(secret),
		repo:     repo,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	go sm.cleanupLoop()
	return sm
}

// CreateSession creates a new session for an officer
func (sm *SessionManager) CreateSession(officerID int64, officerName string) (*Session, error) {
	session := &Session{
		ID:          uuid.NewString(),
		OfficerID:   officerID,
		OfficerName: officerName,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(sessionDuration),
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Save(context.Background(), session.ID, session.OfficerID, session.CreatedAt, session.ExpiresAt); err != nil {
			log.Printf("Warning: failed to persist session: %v", err)
		}
	}

	return session, nil
}

// GetSession retrieves a session by ID, falling back to persistent storage
// when the session is not cached (e.g. after a restart).
func (sm *SessionManager) GetSession(sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if ok {
		if time.Now().After(session.ExpiresAt) {
			go sm.DeleteSession(sessionID)
			return nil
		}
		return session
	}

	if sm.repo == nil {
		return nil
	}

	stored, err := sm.repo.Get(context.Background(), sessionID)
	if err != nil {
		log.Printf("Warning: failed to load session: %v", err)
		return nil
	}
	if stored == nil {
		return nil
	}

	session = &Session{
		ID:        stored.ID,
		OfficerID: stored.OfficerID,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	return session
}

// DeleteSession removes a session from memory and storage
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Delete(context.Background(), sessionID); err != nil {
			log.Printf("Warning: failed to delete session: %v", err)
		}
	}
}

// SetSessionCookie sets the signed session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	signature := sm.signData(session.ID)
	cookieValue := session.ID + "." + signature

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    cookieValue,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from a request
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	// Try cookie first
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		parts := strings.SplitN(cookie.Value, ".", 2)
		if len(parts) == 2 {
			sessionID := parts[0]
			signature := parts[1]
			if sm.verifySignature(sessionID, signature) {
				if session := sm.GetSession(sessionID); session != nil {
					return session
				}
			}
		}
	}

	// Try Authorization header
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		sessionID := strings.TrimPrefix(authHeader, "Bearer ")
		if session := sm.GetSession(sessionID); session != nil {
			return session
		}
	}

	return nil
}

// Stop terminates the background cleanup goroutine
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stop)
	})
}

// cleanupLoop periodically evicts expired sessions from memory and storage.
func (sm *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.cleanupExpired()
		}
	}
}

func (sm *SessionManager) cleanupExpired() {
	now := time.Now()

	sm.mu.Lock()
	for id, session := range sm.sessions {
		if now.After(session.ExpiresAt) {
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	if sm.repo != nil {
		if _, err := sm.repo.DeleteExpired(context.Background()); err != nil {
			log.Printf("Warning: failed to delete expired sessions: %v", err)
		}
	}
}

// signData creates an HMAC signature for data
func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}
