package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cadetops/muster/internal/database"
)

// OfficerRepository provides PostgreSQL-backed officer lookup.
type OfficerRepository struct {
	pool *Pool
}

// NewOfficerRepository creates a new PostgreSQL officer repository.
func NewOfficerRepository(pool *Pool) *OfficerRepository {
	return &OfficerRepository{pool: pool}
}

// GetByUsername returns the officer for a login name.
func (r *OfficerRepository) GetByUsername(ctx context.Context, username string) (*database.Officer, error) {
	query := `
		SELECT id, unit_id, username, full_name, password_hash, created_at
		FROM officers
		WHERE username = $1
	`

	var o database.Officer
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&o.ID,
		&o.UnitID,
		&o.Username,
		&o.FullName,
		&o.PasswordHash,
		&o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query officer: %w", err)
	}
	return &o, nil
}

// Verify interface compliance
var _ database.OfficerStore = (*OfficerRepository)(nil)
