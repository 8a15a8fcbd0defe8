package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/config"
	"github.com/gymgate/gymgate/internal/database"
	"github.com/pgvector/pgvector-go"
)

// BiometricRepository provides PostgreSQL-backed biometric storage with an
// optional in-memory HNSW index for similarity search.
type BiometricRepository struct {
	pool        *Pool
	hnswIndex   *database.HNSWIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

// NewBiometricRepository creates a new PostgreSQL biometric repository.
func NewBiometricRepository(pool *Pool) *BiometricRepository {
	return &BiometricRepository{pool: pool}
}

// Store persists a new enrollment and deactivates the subject's previous
// active record for the same type in the same transaction. The advisory
// lock serializes concurrent re-enrollments per (subject, type) so exactly
// one active record survives.
func (r *BiometricRepository) Store(ctx context.Context, rec *database.BiometricRecord) (*database.BiometricRecord, error) {
	if len(rec.Embedding) != config.EmbeddingDim {
		return nil, &database.DimensionError{Got: len(rec.Embedding), Want: config.EmbeddingDim}
	}

	stored := *rec
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Active = true

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	lockKey := stored.SubjectID.String() + ":" + string(stored.Type)
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", lockKey); err != nil {
		return nil, fmt.Errorf("acquire enrollment lock: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		UPDATE biometrics SET active = FALSE
		WHERE subject_id = $1 AND type = $2 AND active
		RETURNING id
	`, stored.SubjectID, string(stored.Type))
	if err != nil {
		return nil, fmt.Errorf("deactivate previous enrollment: %w", err)
	}
	var deactivated []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan deactivated id: %w", err)
		}
		deactivated = append(deactivated, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deactivated ids: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO biometrics (id, subject_id, type, embedding, thumbnail, thumbnail_nonce, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
	`, stored.ID, stored.SubjectID, string(stored.Type),
		pgvector.NewVector(stored.Embedding), stored.Thumbnail, stored.ThumbnailNonce, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrollment: %w", err)
	}

	// Keep the in-memory index in step with the committed state.
	if r.isHNSWEnabled() {
		for _, id := range deactivated {
			r.hnswIndex.Remove(id)
		}
		r.hnswIndex.Add(&stored)
	}

	return &stored, nil
}

// Deactivate soft-deletes the active enrollment for a subject.
func (r *BiometricRepository) Deactivate(ctx context.Context, subjectID uuid.UUID, typ database.BiometricType) error {
	rows, err := r.pool.Query(ctx, `
		UPDATE biometrics SET active = FALSE
		WHERE subject_id = $1 AND type = $2 AND active
		RETURNING id
	`, subjectID, string(typ))
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	defer rows.Close()

	var deactivated []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan deactivated id: %w", err)
		}
		deactivated = append(deactivated, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate deactivated ids: %w", err)
	}
	if len(deactivated) == 0 {
		return database.ErrNoActiveBiometric
	}

	if r.isHNSWEnabled() {
		for _, id := range deactivated {
			r.hnswIndex.Remove(id)
		}
	}
	return nil
}

// GetActive retrieves the active enrollment for a subject, nil if none.
func (r *BiometricRepository) GetActive(ctx context.Context, subjectID uuid.UUID, typ database.BiometricType) (*database.BiometricRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, subject_id, type, embedding, thumbnail, thumbnail_nonce, active, created_at
		FROM biometrics
		WHERE subject_id = $1 AND type = $2 AND active
	`, subjectID, string(typ))

	rec, err := scanBiometric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active enrollment: %w", err)
	}
	return rec, nil
}

// ActiveRecords returns all active enrollments, ordered by id.
func (r *BiometricRepository) ActiveRecords(ctx context.Context) ([]database.BiometricRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subject_id, type, embedding, thumbnail, thumbnail_nonce, active, created_at
		FROM biometrics
		WHERE active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query active enrollments: %w", err)
	}
	defer rows.Close()

	var records []database.BiometricRecord
	for rows.Next() {
		rec, err := scanBiometric(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return records, nil
}

// Count returns the number of active enrollments.
func (r *BiometricRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM biometrics WHERE active").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// SearchNearest finds the k most similar active enrollments. Uses the
// in-memory HNSW index when enabled, otherwise pgvector cosine search.
// Ties break on ascending record id in both paths.
func (r *BiometricRepository) SearchNearest(ctx context.Context, embedding []float32, k int) ([]database.SubjectMatch, error) {
	if len(embedding) != config.EmbeddingDim {
		return nil, &database.DimensionError{Got: len(embedding), Want: config.EmbeddingDim}
	}
	if k <= 0 {
		k = 1
	}

	if r.isHNSWEnabled() {
		return r.hnswIndex.Search(embedding, k)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, subject_id, 1 - (embedding <=> $1::vector) AS similarity
		FROM biometrics
		WHERE active
		ORDER BY embedding <=> $1::vector, id
		LIMIT $2
	`, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query similar enrollments: %w", err)
	}
	defer rows.Close()

	var matches []database.SubjectMatch
	for rows.Next() {
		var m database.SubjectMatch
		if err := rows.Scan(&m.RecordID, &m.SubjectID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// EnableHNSW builds (or loads from indexPath) the in-memory index and
// switches similarity search over to it. A persisted index can lag behind
// the database — enrollments made after its last save are missing from the
// file — so the loaded index is validated against the active records and
// rebuilt on any mismatch.
func (r *BiometricRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	index := database.NewHNSWIndex()

	if indexPath != "" {
		if err := index.Load(indexPath); err != nil {
			return fmt.Errorf("load HNSW index: %w", err)
		}
	}

	records, err := r.ActiveRecords(ctx)
	if err != nil {
		return fmt.Errorf("load enrollments for index: %w", err)
	}

	if !index.Covers(records) {
		if err := index.BuildFromRecords(records); err != nil {
			return fmt.Errorf("build HNSW index: %w", err)
		}
		index.SetPath(indexPath)
		if err := index.Save(); err != nil {
			return fmt.Errorf("persist HNSW index: %w", err)
		}
	}

	r.hnswMu.Lock()
	r.hnswIndex = index
	r.hnswEnabled = true
	r.hnswMu.Unlock()
	return nil
}

// HNSWCount returns the number of indexed enrollments.
func (r *BiometricRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// isHNSWEnabled checks whether the HNSW index is active.
func (r *BiometricRepository) isHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBiometric(row rowScanner) (*database.BiometricRecord, error) {
	var rec database.BiometricRecord
	var typ string
	var vec pgvector.Vector
	if err := row.Scan(&rec.ID, &rec.SubjectID, &typ, &vec,
		&rec.Thumbnail, &rec.ThumbnailNonce, &rec.Active, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Type = database.BiometricType(typ)
	rec.Embedding = vec.Slice()
	return &rec, nil
}
