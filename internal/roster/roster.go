// Package roster reads units and cadets out of the legacy MySQL personnel
// system for import into the attendance database.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/cadetops/muster/internal/database"
)

// Pool manages a MySQL connection pool against the legacy roster.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MySQL connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("roster MySQL DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping roster database: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing roster connection: %w", err)
		}
	}
	return nil
}

// Units returns all units from the legacy system. IDs are the legacy IDs;
// the importer remaps them on write.
func (p *Pool) Units(ctx context.Context) ([]database.Unit, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT id, name, code FROM units ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query legacy units: %w", err)
	}
	defer rows.Close()

	var units []database.Unit
	for rows.Next() {
		var u database.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Code); err != nil {
			return nil, fmt.Errorf("scan legacy unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy units: %w", err)
	}
	return units, nil
}

// Cadets returns all active cadets from the legacy system. UnitID carries
// the legacy unit ID.
func (p *Pool) Cadets(ctx context.Context) ([]database.Cadet, error) {
	query := `
		SELECT c.id, c.unit_id, c.service_number, c.full_name
		FROM cadets c
		WHERE c.is_active = 1
		ORDER BY c.service_number
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query legacy cadets: %w", err)
	}
	defer rows.Close()

	var cadets []database.Cadet
	for rows.Next() {
		var c database.Cadet
		if err := rows.Scan(&c.ID, &c.UnitID, &c.ServiceNumber, &c.FullName); err != nil {
			return nil, fmt.Errorf("scan legacy cadet: %w", err)
		}
		cadets = append(cadets, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy cadets: %w", err)
	}
	return cadets, nil
}

// Import pulls the full legacy roster and upserts it through the cadet
// store. Returns unit and cadet counts.
func Import(ctx context.Context, pool *Pool, store database.CadetStore) (int, int, error) {
	units, err := pool.Units(ctx)
	if err != nil {
		return 0, 0, err
	}
	cadets, err := pool.Cadets(ctx)
	if err != nil {
		return 0, 0, err
	}

	written, err := store.UpsertRoster(ctx, units, cadets)
	if err != nil {
		return 0, 0, fmt.Errorf("writing roster: %w", err)
	}
	return len(units), written, nil
}
