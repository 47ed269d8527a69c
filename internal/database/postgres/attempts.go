package postgres

import (
	"context"
	"fmt"

	"github.com/cadetops/muster/internal/database"
)

// AttemptLogRepository provides the PostgreSQL-backed probe log. Rows are
// append-only; nothing in application code updates or deletes them.
type AttemptLogRepository struct {
	pool *Pool
}

// NewAttemptLogRepository creates a new PostgreSQL attempt log repository.
func NewAttemptLogRepository(pool *Pool) *AttemptLogRepository {
	return &AttemptLogRepository{pool: pool}
}

// Append writes one log row and fills in the generated ID and timestamp.
func (r *AttemptLogRepository) Append(ctx context.Context, log *database.AttemptLog) error {
	query := `
		INSERT INTO face_attempt_logs (session_id, cadet_id, status, confidence, origin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		log.SessionID,
		log.CadetID,
		log.Status,
		log.Confidence,
		log.Origin,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("append attempt log: %w", err)
	}
	return nil
}

// ListBySession returns the most recent log rows for a session, newest
// first, capped at limit.
func (r *AttemptLogRepository) ListBySession(ctx context.Context, sessionID int64, limit int) ([]database.AttemptLog, error) {
	query := `
		SELECT id, session_id, cadet_id, status, confidence, origin, created_at
		FROM face_attempt_logs
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempt logs: %w", err)
	}
	defer rows.Close()

	var logs []database.AttemptLog
	for rows.Next() {
		var l database.AttemptLog
		if err := rows.Scan(
			&l.ID,
			&l.SessionID,
			&l.CadetID,
			&l.Status,
			&l.Confidence,
			&l.Origin,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt logs: %w", err)
	}
	return logs, nil
}

// Verify interface compliance
var _ database.AttemptLogStore = (*AttemptLogRepository)(nil)
