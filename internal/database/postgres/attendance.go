package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cadetops/muster/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance records.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = "id, session_id, cadet_id, status, marked_by, check_in_time, remarks, marked_at, updated_at"

// Upsert writes the attendance record for (session, cadet) in one
// statement. Concurrent probes for the same cadet cannot produce two
// rows; the second writer updates the first writer's row. The returned
// bool reports whether the row was newly created (xmax = 0 on insert).
func (r *AttendanceRepository) Upsert(ctx context.Context, u database.AttendanceUpsert) (*database.AttendanceRecord, bool, error) {
	query := `
		INSERT INTO attendance (session_id, cadet_id, status, marked_by, check_in_time, remarks)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, cadet_id) DO UPDATE SET
			status = EXCLUDED.status,
			marked_by = EXCLUDED.marked_by,
			check_in_time = EXCLUDED.check_in_time,
			remarks = $7,
			updated_at = NOW()
		RETURNING ` + attendanceColumns + `, (xmax = 0) AS created`

	var rec database.AttendanceRecord
	var created bool
	err := r.pool.QueryRow(ctx, query,
		u.SessionID,
		u.CadetID,
		u.Status,
		u.MarkedBy,
		u.CheckInTime,
		u.InsertRemarks,
		u.UpdateRemarks,
	).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.CadetID,
		&rec.Status,
		&rec.MarkedBy,
		&rec.CheckInTime,
		&rec.Remarks,
		&rec.MarkedAt,
		&rec.UpdatedAt,
		&created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert attendance: %w", err)
	}
	return &rec, created, nil
}

// Get returns the record for (session, cadet), or nil when none exists.
func (r *AttendanceRepository) Get(ctx context.Context, sessionID, cadetID int64) (*database.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + " FROM attendance WHERE session_id = $1 AND cadet_id = $2"

	var rec database.AttendanceRecord
	err := r.pool.QueryRow(ctx, query, sessionID, cadetID).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.CadetID,
		&rec.Status,
		&rec.MarkedBy,
		&rec.CheckInTime,
		&rec.Remarks,
		&rec.MarkedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	return &rec, nil
}

// ListBySession returns all records for a session ordered by cadet.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID int64) ([]database.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + " FROM attendance WHERE session_id = $1 ORDER BY cadet_id"

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.CadetID,
			&rec.Status,
			&rec.MarkedBy,
			&rec.CheckInTime,
			&rec.Remarks,
			&rec.MarkedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// Stats summarizes attendance for a session. Total counts all cadets in
// the session's unit, not just those with records, so unmarked cadets
// drag the percentage down. Percentage counts PRESENT and LATE as
// attended.
func (r *AttendanceRepository) Stats(ctx context.Context, sessionID int64) (*database.SessionStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM cadets c
			 JOIN attendance_sessions s ON s.unit_id = c.unit_id
			 WHERE s.id = $1) AS total,
			COUNT(*) FILTER (WHERE a.status = 'PRESENT') AS present,
			COUNT(*) FILTER (WHERE a.status = 'ABSENT') AS absent,
			COUNT(*) FILTER (WHERE a.status = 'LATE') AS late
		FROM attendance a
		WHERE a.session_id = $1
	`

	var stats database.SessionStats
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&stats.Total,
		&stats.Present,
		&stats.Absent,
		&stats.Late,
	)
	if err != nil {
		return nil, fmt.Errorf("query session stats: %w", err)
	}

	if stats.Total > 0 {
		attended := stats.Present + stats.Late
		stats.Percentage = float64(attended) / float64(stats.Total) * 100
	}
	return &stats, nil
}

// Verify interface compliance
var _ database.AttendanceStore = (*AttendanceRepository)(nil)
