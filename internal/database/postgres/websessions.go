package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cadetops/muster/internal/web/middleware"
)

// WebSessionRepository provides PostgreSQL-backed login session storage.
type WebSessionRepository struct {
	pool *Pool
}

// NewWebSessionRepository creates a new PostgreSQL login session repository.
func NewWebSessionRepository(pool *Pool) *WebSessionRepository {
	return &WebSessionRepository{pool: pool}
}

// Save stores a login session in the database.
func (r *WebSessionRepository) Save(ctx context.Context, id string, officerID int64, createdAt, expiresAt time.Time) error {
	query := `
		INSERT INTO web_sessions (id, officer_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			officer_id = EXCLUDED.officer_id,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.pool.Exec(ctx, query, id, officerID, createdAt, expiresAt)
	if err != nil {
		return fmt.Errorf("save web session: %w", err)
	}
	return nil
}

// Get retrieves a login session by ID, returns nil if not found or expired.
func (r *WebSessionRepository) Get(ctx context.Context, sessionID string) (*middleware.StoredSession, error) {
	query := `
		SELECT id, officer_id, created_at, expires_at
		FROM web_sessions
		WHERE id = $1 AND expires_at > NOW()
	`

	var s middleware.StoredSession
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&s.ID,
		&s.OfficerID,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get web session: %w", err)
	}
	return &s, nil
}

// Delete removes a login session from the database.
func (r *WebSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM web_sessions WHERE id = $1", sessionID); err != nil {
		return fmt.Errorf("delete web session: %w", err)
	}
	return nil
}

// DeleteExpired removes all expired login sessions and returns the count.
func (r *WebSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM web_sessions WHERE expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("delete expired web sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}
