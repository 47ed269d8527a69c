package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cadetops/muster/internal/database"
)

// CadetRepository provides PostgreSQL-backed cadet roster access.
type CadetRepository struct {
	pool *Pool
}

// NewCadetRepository creates a new PostgreSQL cadet repository.
func NewCadetRepository(pool *Pool) *CadetRepository {
	return &CadetRepository{pool: pool}
}

const cadetColumns = "id, unit_id, service_number, full_name, created_at"

func scanCadet(row rowScanner) (*database.Cadet, error) {
	var c database.Cadet
	err := row.Scan(&c.ID, &c.UnitID, &c.ServiceNumber, &c.FullName, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns a cadet by ID.
func (r *CadetRepository) Get(ctx context.Context, id int64) (*database.Cadet, error) {
	c, err := scanCadet(r.pool.QueryRow(ctx, "SELECT "+cadetColumns+" FROM cadets WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cadet: %w", err)
	}
	return c, nil
}

// GetByServiceNumber returns a cadet by service number.
func (r *CadetRepository) GetByServiceNumber(ctx context.Context, serviceNumber string) (*database.Cadet, error) {
	c, err := scanCadet(r.pool.QueryRow(ctx,
		"SELECT "+cadetColumns+" FROM cadets WHERE service_number = $1", serviceNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cadet by service number: %w", err)
	}
	return c, nil
}

// FindByName matches cadets on the normalized full name.
func (r *CadetRepository) FindByName(ctx context.Context, name string) ([]database.Cadet, error) {
	query := "SELECT " + cadetColumns + " FROM cadets WHERE normalized_name = $1 ORDER BY id"

	rows, err := r.pool.Query(ctx, query, database.NormalizeCadetName(name))
	if err != nil {
		return nil, fmt.Errorf("query cadets by name: %w", err)
	}
	defer rows.Close()

	return collectCadets(rows)
}

// ListByUnit returns all cadets in a unit ordered by service number.
func (r *CadetRepository) ListByUnit(ctx context.Context, unitID int64) ([]database.Cadet, error) {
	query := "SELECT " + cadetColumns + " FROM cadets WHERE unit_id = $1 ORDER BY service_number"

	rows, err := r.pool.Query(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("query cadets by unit: %w", err)
	}
	defer rows.Close()

	return collectCadets(rows)
}

func collectCadets(rows *sql.Rows) ([]database.Cadet, error) {
	var cadets []database.Cadet
	for rows.Next() {
		c, err := scanCadet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cadet: %w", err)
		}
		cadets = append(cadets, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cadets: %w", err)
	}
	return cadets, nil
}

// UpsertRoster imports units and cadets from the legacy roster in one
// transaction. Units are matched on code, cadets on service number.
// Returns the number of cadets written.
func (r *CadetRepository) UpsertRoster(ctx context.Context, units []database.Unit, cadets []database.Cadet) (int, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// Legacy unit ID -> our unit ID. Cadet rows from the import carry the
	// legacy unit ID in UnitID.
	unitIDs := make(map[int64]int64, len(units))
	for _, u := range units {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO units (name, code)
			VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, u.Name, u.Code).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("upsert unit %s: %w", u.Code, err)
		}
		unitIDs[u.ID] = id
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cadets (unit_id, service_number, full_name, normalized_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service_number) DO UPDATE SET
			unit_id = EXCLUDED.unit_id,
			full_name = EXCLUDED.full_name,
			normalized_name = EXCLUDED.normalized_name
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare cadet upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, c := range cadets {
		unitID, ok := unitIDs[c.UnitID]
		if !ok {
			return 0, fmt.Errorf("cadet %s references unknown unit %d", c.ServiceNumber, c.UnitID)
		}
		normalized := database.NormalizeCadetName(c.FullName)
		if _, err := stmt.ExecContext(ctx, unitID, c.ServiceNumber, c.FullName, normalized); err != nil {
			return 0, fmt.Errorf("upsert cadet %s: %w", c.ServiceNumber, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit roster import: %w", err)
	}
	return written, nil
}

// Verify interface compliance
var _ database.CadetStore = (*CadetRepository)(nil)
