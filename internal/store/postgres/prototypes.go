package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

const prototypeColumns = `id, person_id, face_id, role, pinned, quality, created_at`

// PrototypeRepository provides PostgreSQL-backed prototype storage.
type PrototypeRepository struct {
	pool *Pool
}

// NewPrototypeRepository creates a new PostgreSQL prototype repository.
func NewPrototypeRepository(pool *Pool) *PrototypeRepository {
	return &PrototypeRepository{pool: pool}
}

func scanPrototypeRow(scanner interface{ Scan(...any) error }) (store.Prototype, error) {
	var p store.Prototype
	if err := scanner.Scan(&p.ID, &p.PersonID, &p.FaceID, &p.Role, &p.Pinned, &p.Quality, &p.CreatedAt); err != nil {
		return p, fmt.Errorf("scan prototype: %w", err)
	}
	return p, nil
}

// ListPrototypes returns all prototypes for a person, pinned first and
// best quality first within each group.
func (r *PrototypeRepository) ListPrototypes(ctx context.Context, personID int64) ([]store.Prototype, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prototypeColumns+` FROM prototypes
		WHERE person_id = $1
		ORDER BY pinned DESC, quality DESC, id
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("query prototypes: %w", err)
	}
	defer rows.Close()

	var prototypes []store.Prototype
	for rows.Next() {
		p, err := scanPrototypeRow(rows)
		if err != nil {
			return nil, err
		}
		prototypes = append(prototypes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prototypes: %w", err)
	}
	return prototypes, nil
}

// GetPrototype retrieves a prototype by id.
func (r *PrototypeRepository) GetPrototype(ctx context.Context, id int64) (*store.Prototype, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+prototypeColumns+" FROM prototypes WHERE id = $1", id)
	p, err := scanPrototypeRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prototype %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReplacePrototypes swaps out a person's unpinned prototypes for a new
// set in one transaction. Pinned prototypes survive untouched. Returns
// the full resulting set.
func (r *PrototypeRepository) ReplacePrototypes(ctx context.Context, personID int64, unpinned []store.Prototype) ([]store.Prototype, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM prototypes WHERE person_id = $1 AND NOT pinned", personID); err != nil {
		return nil, fmt.Errorf("delete unpinned prototypes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prototypes (person_id, face_id, role, pinned, quality)
		VALUES ($1, $2, $3, FALSE, $4)
		ON CONFLICT (person_id, face_id) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range unpinned {
		if _, err := stmt.ExecContext(ctx, personID, p.FaceID, p.Role, p.Quality); err != nil {
			return nil, fmt.Errorf("insert prototype for face %d: %w", p.FaceID, err)
		}
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+prototypeColumns+` FROM prototypes
		WHERE person_id = $1
		ORDER BY pinned DESC, quality DESC, id
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("query resulting prototypes: %w", err)
	}
	defer rows.Close()

	var result []store.Prototype
	for rows.Next() {
		p, err := scanPrototypeRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prototypes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

// SetPinned toggles the pin flag on a prototype.
func (r *PrototypeRepository) SetPinned(ctx context.Context, id int64, pinned bool) error {
	res, err := r.pool.Exec(ctx, "UPDATE prototypes SET pinned = $1 WHERE id = $2", pinned, id)
	if err != nil {
		return fmt.Errorf("set prototype pinned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("prototype %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// CountPinned returns the number of pinned prototypes for a person.
func (r *PrototypeRepository) CountPinned(ctx context.Context, personID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM prototypes WHERE person_id = $1 AND pinned", personID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pinned prototypes: %w", err)
	}
	return count, nil
}

// MovePrototypes re-points all prototypes from one person to another,
// dropping any that would collide on (person, face). Used by merge.
func (r *PrototypeRepository) MovePrototypes(ctx context.Context, fromPersonID, toPersonID int64) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM prototypes p
		WHERE p.person_id = $1
		  AND EXISTS (
		    SELECT 1 FROM prototypes q
		    WHERE q.person_id = $2 AND q.face_id = p.face_id
		  )
	`, fromPersonID, toPersonID); err != nil {
		return fmt.Errorf("drop colliding prototypes: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE prototypes SET person_id = $2 WHERE person_id = $1",
		fromPersonID, toPersonID); err != nil {
		return fmt.Errorf("move prototypes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ store.PrototypeStore = (*PrototypeRepository)(nil)
