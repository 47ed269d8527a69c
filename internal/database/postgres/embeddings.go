package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/cadetops/muster/internal/database"
)

// EmbeddingRepository provides PostgreSQL-backed face embedding storage.
// An optional in-memory HNSW index is kept in sync on writes; it serves
// similar-face lookups only, never the attendance match itself.
type EmbeddingRepository struct {
	pool  *Pool
	index *database.EnrollmentIndex
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository.
// The index may be nil when similarity lookups are not needed (CLI tools).
func NewEmbeddingRepository(pool *Pool, index *database.EnrollmentIndex) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool, index: index}
}

const embeddingColumns = "id, cadet_id, embedding, dim, model, thumbnail, is_active, created_at, updated_at"

// Enroll replaces any existing embedding for the cadet inside a single
// transaction. A reader either sees the old row or the new one, never
// both and never neither.
func (r *EmbeddingRepository) Enroll(ctx context.Context, cadetID int64, embedding []float32, model string, thumbnail []byte) (*database.EnrolledEmbedding, error) {
	if err := database.ValidateEmbedding(embedding); err != nil {
		return nil, err
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM face_embeddings WHERE cadet_id = $1", cadetID); err != nil {
		return nil, fmt.Errorf("delete prior embedding: %w", err)
	}

	query := `
		INSERT INTO face_embeddings (cadet_id, embedding, dim, model, thumbnail)
		VALUES ($1, $2::vector, $3, $4, $5)
		RETURNING ` + embeddingColumns

	vec := pgvector.NewVector(embedding)
	row := tx.QueryRowContext(ctx, query, cadetID, vec, len(embedding), model, thumbnail)
	emb, err := scanEmbeddingRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert embedding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrollment: %w", err)
	}

	if r.index != nil {
		r.index.Upsert(cadetID, embedding)
	}
	return emb, nil
}

// Get returns the cadet's active embedding, or nil if none exists.
func (r *EmbeddingRepository) Get(ctx context.Context, cadetID int64) (*database.EnrolledEmbedding, error) {
	query := "SELECT " + embeddingColumns + " FROM face_embeddings WHERE cadet_id = $1 AND is_active"

	emb, err := scanEmbeddingRow(r.pool.QueryRow(ctx, query, cadetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	return emb, nil
}

// CandidatesFor returns active embeddings for all cadets in the session's
// unit. Zero candidates is a valid result the caller must handle.
func (r *EmbeddingRepository) CandidatesFor(ctx context.Context, session *database.AttendanceSession) ([]database.CandidateEmbedding, error) {
	query := `
		SELECT c.id, c.full_name, c.service_number, e.embedding
		FROM face_embeddings e
		JOIN cadets c ON c.id = e.cadet_id
		WHERE e.is_active AND c.unit_id = $1
		ORDER BY c.id
	`

	rows, err := r.pool.Query(ctx, query, session.UnitID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []database.CandidateEmbedding
	for rows.Next() {
		var c database.CandidateEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&c.CadetID, &c.CadetName, &c.ServiceNumber, &vec); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Embedding = vec.Slice()
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return candidates, nil
}

// Remove deletes the cadet's embedding. Removing an absent embedding is
// not an error.
func (r *EmbeddingRepository) Remove(ctx context.Context, cadetID int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM face_embeddings WHERE cadet_id = $1", cadetID); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	if r.index != nil {
		r.index.Delete(cadetID)
	}
	return nil
}

// All returns every active embedding, used to build the in-memory index
// at startup.
func (r *EmbeddingRepository) All(ctx context.Context) ([]database.EnrolledEmbedding, error) {
	query := "SELECT " + embeddingColumns + " FROM face_embeddings WHERE is_active ORDER BY cadet_id"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.EnrolledEmbedding
	for rows.Next() {
		var emb database.EnrolledEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(
			&emb.ID,
			&emb.CadetID,
			&vec,
			&emb.Dim,
			&emb.Model,
			&emb.Thumbnail,
			&emb.IsActive,
			&emb.CreatedAt,
			&emb.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// Count returns the number of active embeddings.
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_embeddings WHERE is_active").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// BuildIndex loads all active embeddings into the in-memory HNSW index.
// Called once at startup.
func (r *EmbeddingRepository) BuildIndex(ctx context.Context) error {
	if r.index == nil {
		return nil
	}
	embeddings, err := r.All(ctx)
	if err != nil {
		return fmt.Errorf("load embeddings for index: %w", err)
	}
	r.index.Build(embeddings)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmbeddingRow(row rowScanner) (*database.EnrolledEmbedding, error) {
	var emb database.EnrolledEmbedding
	var vec pgvector.Vector

	err := row.Scan(
		&emb.ID,
		&emb.CadetID,
		&vec,
		&emb.Dim,
		&emb.Model,
		&emb.Thumbnail,
		&emb.IsActive,
		&emb.CreatedAt,
		&emb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	emb.Embedding = vec.Slice()
	return &emb, nil
}

// Verify interface compliance
var _ database.EmbeddingStore = (*EmbeddingRepository)(nil)
