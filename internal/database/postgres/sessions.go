package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cadetops/muster/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance sessions.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = "id, title, session_type, session_date, start_time, end_time, unit_id, created_by, is_mandatory, location, notes, is_active, created_at"

func scanSession(row rowScanner) (*database.AttendanceSession, error) {
	var s database.AttendanceSession
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.SessionType,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.UnitID,
		&s.CreatedBy,
		&s.IsMandatory,
		&s.Location,
		&s.Notes,
		&s.IsActive,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session and returns it with generated fields.
func (r *SessionRepository) Create(ctx context.Context, s *database.AttendanceSession) (*database.AttendanceSession, error) {
	query := `
		INSERT INTO attendance_sessions
			(title, session_type, session_date, start_time, end_time, unit_id, created_by, is_mandatory, location, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + sessionColumns

	created, err := scanSession(r.pool.QueryRow(ctx, query,
		s.Title,
		s.SessionType,
		s.Date,
		s.StartTime,
		s.EndTime,
		s.UnitID,
		s.CreatedBy,
		s.IsMandatory,
		s.Location,
		s.Notes,
	))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return created, nil
}

// Get returns the session regardless of its active state.
func (r *SessionRepository) Get(ctx context.Context, id int64) (*database.AttendanceSession, error) {
	query := "SELECT " + sessionColumns + " FROM attendance_sessions WHERE id = $1"

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

// GetActive returns the session only if it is active.
func (r *SessionRepository) GetActive(ctx context.Context, id int64) (*database.AttendanceSession, error) {
	query := "SELECT " + sessionColumns + " FROM attendance_sessions WHERE id = $1 AND is_active"

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query active session: %w", err)
	}
	return s, nil
}

// ListActive returns all active sessions, newest first.
func (r *SessionRepository) ListActive(ctx context.Context) ([]database.AttendanceSession, error) {
	query := "SELECT " + sessionColumns + " FROM attendance_sessions WHERE is_active ORDER BY start_time DESC"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.AttendanceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Close deactivates a session. Closing an already-closed session is a
// no-op, not an error.
func (r *SessionRepository) Close(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, "UPDATE attendance_sessions SET is_active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// CloseExpired deactivates active sessions whose date is before the given
// day and returns how many were closed.
func (r *SessionRepository) CloseExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx,
		"UPDATE attendance_sessions SET is_active = FALSE WHERE is_active AND session_date < $1", before)
	if err != nil {
		return 0, fmt.Errorf("close expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close expired rows affected: %w", err)
	}
	return n, nil
}

// Verify interface compliance
var _ database.SessionStore = (*SessionRepository)(nil)
