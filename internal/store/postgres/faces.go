package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

const faceColumns = `id, image_uid, bbox, det_score, quality, embedding_id, person_id, cluster_id, taken_at, created_at`

// FaceRepository provides PostgreSQL-backed face storage.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

// scanFaceRow scans a single row into a Face.
func scanFaceRow(scanner interface{ Scan(...any) error }) (store.Face, error) {
	var face store.Face
	var bbox pq.Float64Array
	var personID, clusterID sql.NullInt64
	var takenAt sql.NullTime

	if err := scanner.Scan(
		&face.ID,
		&face.ImageUID,
		&bbox,
		&face.DetScore,
		&face.Quality,
		&face.EmbeddingID,
		&personID,
		&clusterID,
		&takenAt,
		&face.CreatedAt,
	); err != nil {
		return face, fmt.Errorf("scan face: %w", err)
	}

	face.BBox = []float64(bbox)
	if personID.Valid {
		face.PersonID = &personID.Int64
	}
	if clusterID.Valid {
		face.ClusterID = &clusterID.Int64
	}
	if takenAt.Valid {
		t := takenAt.Time
		face.TakenAt = &t
	}
	return face, nil
}

func scanFaces(rows *sql.Rows) ([]store.Face, error) {
	var faces []store.Face
	for rows.Next() {
		face, err := scanFaceRow(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// CreateFace inserts a detected face and returns it with its id.
func (r *FaceRepository) CreateFace(ctx context.Context, f store.Face) (*store.Face, error) {
	var takenAt sql.NullTime
	if f.TakenAt != nil {
		takenAt = sql.NullTime{Time: *f.TakenAt, Valid: true}
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO faces (image_uid, bbox, det_score, quality, embedding_id, taken_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+faceColumns,
		f.ImageUID, pq.Array(f.BBox), f.DetScore, f.Quality, f.EmbeddingID, takenAt)

	face, err := scanFaceRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert face: %w", err)
	}
	return &face, nil
}

// GetFace retrieves a face by id.
func (r *FaceRepository) GetFace(ctx context.Context, id int64) (*store.Face, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+faceColumns+" FROM faces WHERE id = $1", id)
	face, err := scanFaceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("face %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &face, nil
}

// GetFaces retrieves faces by id, skipping missing ids.
func (r *FaceRepository) GetFaces(ctx context.Context, ids []int64) ([]store.Face, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE id = ANY($1) ORDER BY id", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// ListUnassigned returns faces with neither person nor cluster,
// optionally restricted to an image scope.
func (r *FaceRepository) ListUnassigned(ctx context.Context, imageScope []string) ([]store.Face, error) {
	query := "SELECT " + faceColumns + " FROM faces WHERE person_id IS NULL AND cluster_id IS NULL"
	args := []any{}
	if len(imageScope) > 0 {
		query += " AND image_uid = ANY($1)"
		args = append(args, pq.Array(imageScope))
	}
	query += " ORDER BY id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unassigned faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// ListByPerson returns all faces owned by a person.
func (r *FaceRepository) ListByPerson(ctx context.Context, personID int64) ([]store.Face, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+faceColumns+" FROM faces WHERE person_id = $1 ORDER BY quality DESC, id", personID)
	if err != nil {
		return nil, fmt.Errorf("query faces by person: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// CountByPerson returns the number of faces owned by a person.
func (r *FaceRepository) CountByPerson(ctx context.Context, personID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces WHERE person_id = $1", personID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces by person: %w", err)
	}
	return count, nil
}

// AssignFaces writes person ownership for a batch of faces in one
// transaction, clearing any cluster membership.
func (r *FaceRepository) AssignFaces(ctx context.Context, assignments []store.FaceAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE faces SET person_id = $1, cluster_id = NULL WHERE id = $2")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range assignments {
		res, err := stmt.ExecContext(ctx, a.PersonID, a.FaceID)
		if err != nil {
			return fmt.Errorf("assign face %d: %w", a.FaceID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("face %d: %w", a.FaceID, store.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UnassignFace clears person ownership and returns the previous owner.
func (r *FaceRepository) UnassignFace(ctx context.Context, faceID int64) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var previous sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT person_id FROM faces WHERE id = $1 FOR UPDATE", faceID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("face %d: %w", faceID, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lock face: %w", err)
	}
	if !previous.Valid {
		return 0, fmt.Errorf("face %d not assigned: %w", faceID, store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE faces SET person_id = NULL WHERE id = $1", faceID); err != nil {
		return 0, fmt.Errorf("unassign face: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return previous.Int64, nil
}

// SetClusterMemberships writes cluster ids for a batch of faces.
// Person-owned faces are never touched; the single-owner constraint
// backs this up at the schema level.
func (r *FaceRepository) SetClusterMemberships(ctx context.Context, memberships []store.ClusterMembership) error {
	if len(memberships) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE faces SET cluster_id = $1 WHERE id = $2 AND person_id IS NULL")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range memberships {
		if _, err := stmt.ExecContext(ctx, m.ClusterID, m.FaceID); err != nil {
			return fmt.Errorf("set cluster for face %d: %w", m.FaceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// MoveFaces re-points all faces from one person to another and returns
// the moved face ids. Used by person merge.
func (r *FaceRepository) MoveFaces(ctx context.Context, fromPersonID, toPersonID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE faces SET person_id = $2
		WHERE person_id = $1
		RETURNING id
	`, fromPersonID, toPersonID)
	if err != nil {
		return nil, fmt.Errorf("move faces: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan face id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face ids: %w", err)
	}
	return ids, nil
}

// Verify interface compliance.
var _ store.FaceStore = (*FaceRepository)(nil)
