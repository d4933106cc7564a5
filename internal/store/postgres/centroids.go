package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// CentroidRepository provides PostgreSQL-backed centroid metadata storage.
// Centroid vectors themselves live in the vector store; this table keeps
// the versioning and staleness bookkeeping.
type CentroidRepository struct {
	pool *Pool
}

// NewCentroidRepository creates a new PostgreSQL centroid repository.
func NewCentroidRepository(pool *Pool) *CentroidRepository {
	return &CentroidRepository{pool: pool}
}

// LatestCentroid returns the newest centroid version for a person, or
// nil when the person has none yet.
func (r *CentroidRepository) LatestCentroid(ctx context.Context, personID int64) (*store.PersonCentroid, error) {
	var c store.PersonCentroid
	err := r.pool.QueryRow(ctx, `
		SELECT id, person_id, version, face_count, source_hash, created_at
		FROM person_centroids
		WHERE person_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, personID).Scan(&c.ID, &c.PersonID, &c.Version, &c.FaceCount, &c.SourceHash, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest centroid: %w", err)
	}
	return &c, nil
}

// InsertCentroid writes a new centroid version. The version must be
// one past the current latest; the unique constraint rejects races.
func (r *CentroidRepository) InsertCentroid(ctx context.Context, c store.PersonCentroid) (*store.PersonCentroid, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO person_centroids (person_id, version, face_count, source_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, person_id, version, face_count, source_hash, created_at
	`, c.PersonID, c.Version, c.FaceCount, c.SourceHash)

	var out store.PersonCentroid
	err := row.Scan(&out.ID, &out.PersonID, &out.Version, &out.FaceCount, &out.SourceHash, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert centroid: %w", err)
	}
	return &out, nil
}

// Verify interface compliance.
var _ store.CentroidStore = (*CentroidRepository)(nil)
