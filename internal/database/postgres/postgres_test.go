//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cadetops/muster/internal/config"
	"github.com/cadetops/muster/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

// seedRoster inserts one unit with two cadets and returns their IDs.
func seedRoster(t *testing.T, pool *Pool) (unitID, cadetA, cadetB int64) {
	t.Helper()
	ctx := context.Background()

	err := pool.QueryRow(ctx,
		"INSERT INTO units (name, code) VALUES ('Alpha Company', 'ALPHA') RETURNING id").Scan(&unitID)
	if err != nil {
		t.Fatalf("Failed to seed unit: %v", err)
	}
	err = pool.QueryRow(ctx,
		"INSERT INTO cadets (unit_id, service_number, full_name, normalized_name) VALUES ($1, 'SN001', 'Jan Novák', 'jan novak') RETURNING id",
		unitID).Scan(&cadetA)
	if err != nil {
		t.Fatalf("Failed to seed cadet A: %v", err)
	}
	err = pool.QueryRow(ctx,
		"INSERT INTO cadets (unit_id, service_number, full_name, normalized_name) VALUES ($1, 'SN002', 'John Doe', 'john doe') RETURNING id",
		unitID).Scan(&cadetB)
	if err != nil {
		t.Fatalf("Failed to seed cadet B: %v", err)
	}
	return unitID, cadetA, cadetB
}

func seedSession(t *testing.T, pool *Pool, unitID int64) *database.AttendanceSession {
	t.Helper()
	ctx := context.Background()

	repo := NewSessionRepository(pool)
	now := time.Now()
	s, err := repo.Create(ctx, &database.AttendanceSession{
		Title:       "Morning Parade",
		SessionType: database.SessionDaily,
		Date:        now,
		StartTime:   now,
		EndTime:     now.Add(2 * time.Hour),
		UnitID:      unitID,
		IsMandatory: true,
	})
	if err != nil {
		t.Fatalf("Failed to seed session: %v", err)
	}
	return s
}

func makeEmbedding(seed int) []float32 {
	emb := make([]float32, 512)
	for i := range emb {
		emb[i] = float32(i+seed) / 512.0
	}
	return emb
}

func TestEmbeddingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	_, cadetA, cadetB := seedRoster(t, pool)
	repo := NewEmbeddingRepository(pool, nil)

	t.Run("EnrollAndGet", func(t *testing.T) {
		emb, err := repo.Enroll(ctx, cadetA, makeEmbedding(0), "Facenet512", []byte{0xff, 0xd8})
		if err != nil {
			t.Fatalf("Failed to enroll: %v", err)
		}
		if emb.CadetID != cadetA {
			t.Errorf("Expected cadet %d, got %d", cadetA, emb.CadetID)
		}
		if emb.Dim != 512 {
			t.Errorf("Expected dim 512, got %d", emb.Dim)
		}

		got, err := repo.Get(ctx, cadetA)
		if err != nil {
			t.Fatalf("Failed to get embedding: %v", err)
		}
		if got == nil {
			t.Fatal("Expected embedding, got nil")
		}
		if len(got.Embedding) != 512 {
			t.Errorf("Expected 512 dimensions, got %d", len(got.Embedding))
		}
		if len(got.Thumbnail) != 2 {
			t.Errorf("Expected thumbnail bytes back, got %d", len(got.Thumbnail))
		}
	})

	t.Run("EnrollReplacesPrior", func(t *testing.T) {
		if _, err := repo.Enroll(ctx, cadetA, makeEmbedding(7), "Facenet512", nil); err != nil {
			t.Fatalf("Failed to re-enroll: %v", err)
		}

		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected 1 embedding after re-enrollment, got %d", count)
		}
	})

	t.Run("EnrollRejectsInvalidVector", func(t *testing.T) {
		if _, err := repo.Enroll(ctx, cadetB, nil, "Facenet512", nil); err != database.ErrInvalidVector {
			t.Errorf("Expected ErrInvalidVector, got %v", err)
		}
	})

	t.Run("CandidatesFor", func(t *testing.T) {
		if _, err := repo.Enroll(ctx, cadetB, makeEmbedding(3), "Facenet512", nil); err != nil {
			t.Fatalf("Failed to enroll cadet B: %v", err)
		}

		unitID2 := seedOtherUnit(t, pool)
		session := seedSession(t, pool, unitID2)

		candidates, err := repo.CandidatesFor(ctx, session)
		if err != nil {
			t.Fatalf("Failed to get candidates: %v", err)
		}
		if len(candidates) != 0 {
			t.Errorf("Expected no candidates in other unit, got %d", len(candidates))
		}
	})

	t.Run("RemoveIsIdempotent", func(t *testing.T) {
		if err := repo.Remove(ctx, cadetB); err != nil {
			t.Fatalf("Failed to remove: %v", err)
		}
		if err := repo.Remove(ctx, cadetB); err != nil {
			t.Fatalf("Second remove should not fail: %v", err)
		}

		got, err := repo.Get(ctx, cadetB)
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if got != nil {
			t.Error("Expected nil after remove")
		}
	})
}

func seedOtherUnit(t *testing.T, pool *Pool) int64 {
	t.Helper()

	var unitID int64
	err := pool.QueryRow(context.Background(),
		"INSERT INTO units (name, code) VALUES ('Bravo Company', 'BRAVO') RETURNING id").Scan(&unitID)
	if err != nil {
		t.Fatalf("Failed to seed unit: %v", err)
	}
	return unitID
}

func TestAttendanceUpsert(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	unitID, cadetA, _ := seedRoster(t, pool)
	session := seedSession(t, pool, unitID)
	repo := NewAttendanceRepository(pool)

	now := time.Now()
	upsert := database.AttendanceUpsert{
		SessionID:     session.ID,
		CadetID:       cadetA,
		Status:        database.StatusPresent,
		CheckInTime:   &now,
		InsertRemarks: "Marked via face recognition",
		UpdateRemarks: "Updated via face recognition",
	}

	rec, created, err := repo.Upsert(ctx, upsert)
	if err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if !created {
		t.Error("First upsert should report created")
	}
	if rec.Remarks != "Marked via face recognition" {
		t.Errorf("Expected insert remarks, got %q", rec.Remarks)
	}

	rec, created, err = repo.Upsert(ctx, upsert)
	if err != nil {
		t.Fatalf("Failed to re-upsert: %v", err)
	}
	if created {
		t.Error("Second upsert should report updated")
	}
	if rec.Remarks != "Updated via face recognition" {
		t.Errorf("Expected update remarks, got %q", rec.Remarks)
	}

	records, err := repo.ListBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected exactly 1 record after double upsert, got %d", len(records))
	}

	stats, err := repo.Stats(ctx, session.ID)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Expected total 2 cadets, got %d", stats.Total)
	}
	if stats.Present != 1 {
		t.Errorf("Expected 1 present, got %d", stats.Present)
	}
	if stats.Percentage != 50.0 {
		t.Errorf("Expected 50%%, got %f", stats.Percentage)
	}
}

func TestSessionLifecycle(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	unitID, _, _ := seedRoster(t, pool)
	repo := NewSessionRepository(pool)

	session := seedSession(t, pool, unitID)
	if !session.IsActive {
		t.Error("New session should be active")
	}

	if _, err := repo.GetActive(ctx, session.ID); err != nil {
		t.Fatalf("GetActive should find the new session: %v", err)
	}

	if err := repo.Close(ctx, session.ID); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if _, err := repo.GetActive(ctx, session.ID); err != database.ErrNotFound {
		t.Errorf("Expected ErrNotFound for closed session, got %v", err)
	}
	// Closed session is still visible via Get
	if _, err := repo.Get(ctx, session.ID); err != nil {
		t.Errorf("Get should still find closed session: %v", err)
	}

	// CloseExpired sweeps old active sessions
	old := seedSession(t, pool, unitID)
	if _, err := pool.Exec(ctx,
		"UPDATE attendance_sessions SET session_date = session_date - INTERVAL '3 days' WHERE id = $1", old.ID); err != nil {
		t.Fatalf("Failed to backdate session: %v", err)
	}
	n, err := repo.CloseExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("Failed to close expired: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired session closed, got %d", n)
	}
}

func TestAttemptLogAppendOnly(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	unitID, cadetA, _ := seedRoster(t, pool)
	session := seedSession(t, pool, unitID)
	repo := NewAttemptLogRepository(pool)

	conf := 0.92
	logs := []*database.AttemptLog{
		{SessionID: session.ID, CadetID: &cadetA, Status: database.AttemptSuccess, Confidence: &conf, Origin: "10.0.0.5"},
		{SessionID: session.ID, Status: database.AttemptNone, Origin: "10.0.0.5"},
		{SessionID: session.ID, Status: database.AttemptMultiple, Origin: "10.0.0.6"},
	}
	for _, l := range logs {
		if err := repo.Append(ctx, l); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
		if l.ID == 0 {
			t.Error("Append should fill in the generated ID")
		}
	}

	got, err := repo.ListBySession(ctx, session.ID, 10)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 log rows, got %d", len(got))
	}
	// Newest first
	if got[0].Status != database.AttemptMultiple {
		t.Errorf("Expected newest row first, got %s", got[0].Status)
	}

	limited, err := repo.ListBySession(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("Failed to list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected limit to cap at 2, got %d", len(limited))
	}
}

func TestCadetRoster(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewCadetRepository(pool)

	units := []database.Unit{{ID: 42, Name: "Alpha Company", Code: "ALPHA"}}
	cadets := []database.Cadet{
		{UnitID: 42, ServiceNumber: "SN001", FullName: "Jan Novák"},
		{UnitID: 42, ServiceNumber: "SN002", FullName: "John Doe"},
	}

	written, err := repo.UpsertRoster(ctx, units, cadets)
	if err != nil {
		t.Fatalf("Failed to import roster: %v", err)
	}
	if written != 2 {
		t.Errorf("Expected 2 cadets written, got %d", written)
	}

	// Re-import is idempotent
	if _, err := repo.UpsertRoster(ctx, units, cadets); err != nil {
		t.Fatalf("Re-import failed: %v", err)
	}

	c, err := repo.GetByServiceNumber(ctx, "SN001")
	if err != nil {
		t.Fatalf("Failed to get by service number: %v", err)
	}
	if c.FullName != "Jan Novák" {
		t.Errorf("Expected 'Jan Novák', got %q", c.FullName)
	}

	// Diacritics-insensitive name lookup
	found, err := repo.FindByName(ctx, "jan-novak")
	if err != nil {
		t.Fatalf("Failed to find by name: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("Expected 1 match for normalized name, got %d", len(found))
	}
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	applied, err := pool.MigrationsApplied(context.Background())
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0001_init.sql" {
		t.Errorf("Expected [0001_init.sql], got %v", applied)
	}
}
