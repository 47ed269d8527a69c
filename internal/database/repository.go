package database

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrInvalidVector is returned by Enroll when the embedding is empty or
// contains non-finite components.
var ErrInvalidVector = errors.New("invalid embedding vector")

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ValidateEmbedding rejects empty vectors and vectors with NaN/Inf
// components before they can reach persistence.
func ValidateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return ErrInvalidVector
	}
	for _, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidVector
		}
	}
	return nil
}

// EmbeddingStore persists at most one active face embedding per cadet.
type EmbeddingStore interface {
	// Enroll replaces any prior embedding for the cadet inside a single
	// transaction, so readers never observe zero or two rows for one
	// identity. Fails with ErrInvalidVector for empty or non-finite vectors.
	Enroll(ctx context.Context, cadetID int64, embedding []float32, model string, thumbnail []byte) (*EnrolledEmbedding, error)
	// Get returns the cadet's active embedding, or nil when none exists.
	Get(ctx context.Context, cadetID int64) (*EnrolledEmbedding, error)
	// CandidatesFor returns all active embeddings for cadets in the
	// session's unit. An empty result is a valid, reportable state.
	CandidatesFor(ctx context.Context, session *AttendanceSession) ([]CandidateEmbedding, error)
	// Remove deactivates the cadet's embedding. Removing an already-absent
	// embedding is not an error.
	Remove(ctx context.Context, cadetID int64) error
	// All returns every active embedding, used to build the in-memory
	// similarity index.
	All(ctx context.Context) ([]EnrolledEmbedding, error)
	// Count returns the number of active embeddings.
	Count(ctx context.Context) (int, error)
}

// AttendanceStore owns attendance records.
type AttendanceStore interface {
	// Upsert performs the atomic get-or-create on (session, cadet) and
	// reports whether the row was newly created.
	Upsert(ctx context.Context, u AttendanceUpsert) (*AttendanceRecord, bool, error)
	// Get returns the record for (session, cadet), or nil when none exists.
	Get(ctx context.Context, sessionID, cadetID int64) (*AttendanceRecord, error)
	// ListBySession returns all records for a session.
	ListBySession(ctx context.Context, sessionID int64) ([]AttendanceRecord, error)
	// Stats summarizes attendance for a session. Total is the cadet count
	// of the session's unit; Percentage treats PRESENT and LATE as
	// attended.
	Stats(ctx context.Context, sessionID int64) (*SessionStats, error)
}

// AttemptLogStore owns the append-only probe log. Rows are never updated
// or deleted by application code.
type AttemptLogStore interface {
	Append(ctx context.Context, log *AttemptLog) error
	ListBySession(ctx context.Context, sessionID int64, limit int) ([]AttemptLog, error)
}

// SessionStore owns attendance sessions.
type SessionStore interface {
	Create(ctx context.Context, s *AttendanceSession) (*AttendanceSession, error)
	Get(ctx context.Context, id int64) (*AttendanceSession, error)
	// GetActive returns the session only if it is active, otherwise
	// ErrNotFound.
	GetActive(ctx context.Context, id int64) (*AttendanceSession, error)
	ListActive(ctx context.Context) ([]AttendanceSession, error)
	// Close deactivates a session. Closing an inactive session is a no-op.
	Close(ctx context.Context, id int64) error
	// CloseExpired deactivates active sessions dated before the given day
	// and returns how many were closed. Run nightly by the scheduler.
	CloseExpired(ctx context.Context, before time.Time) (int64, error)
}

// CadetStore provides read access to the cadet roster plus the upsert used
// by the legacy roster import.
type CadetStore interface {
	Get(ctx context.Context, id int64) (*Cadet, error)
	GetByServiceNumber(ctx context.Context, serviceNumber string) (*Cadet, error)
	// FindByName matches on the normalized full name (lowercase, no
	// diacritics, dashes as spaces).
	FindByName(ctx context.Context, name string) ([]Cadet, error)
	ListByUnit(ctx context.Context, unitID int64) ([]Cadet, error)
	UpsertRoster(ctx context.Context, units []Unit, cadets []Cadet) (int, error)
}

// OfficerStore provides officer lookup for authentication.
type OfficerStore interface {
	GetByUsername(ctx context.Context, username string) (*Officer, error)
}
