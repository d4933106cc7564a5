package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/MacPhobos/image-search-sub004/internal/facematch"
	"github.com/MacPhobos/image-search-sub004/internal/store"
)

const personColumns = `id, name, status, merged_into, created_at`

// PersonRepository provides PostgreSQL-backed person storage.
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new PostgreSQL person repository.
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

func scanPersonRow(scanner interface{ Scan(...any) error }) (store.Person, error) {
	var p store.Person
	var mergedInto sql.NullInt64
	if err := scanner.Scan(&p.ID, &p.Name, &p.Status, &mergedInto, &p.CreatedAt); err != nil {
		return p, fmt.Errorf("scan person: %w", err)
	}
	if mergedInto.Valid {
		p.MergedInto = &mergedInto.Int64
	}
	return p, nil
}

// CreatePerson inserts a new active person. Names are deduplicated on
// their normalized form.
func (r *PersonRepository) CreatePerson(ctx context.Context, name string) (*store.Person, error) {
	normalized := facematch.NormalizePersonName(name)
	if normalized == "" {
		return nil, fmt.Errorf("empty person name: %w", store.ErrInvalidArgument)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO persons (name, name_normalized, status)
		VALUES ($1, $2, $3)
		RETURNING `+personColumns, name, normalized, store.PersonActive)
	person, err := scanPersonRow(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("person %q: %w", name, store.ErrDuplicateName)
		}
		return nil, fmt.Errorf("create person: %w", err)
	}
	return &person, nil
}

// GetPerson retrieves a person by id.
func (r *PersonRepository) GetPerson(ctx context.Context, id int64) (*store.Person, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+personColumns+" FROM persons WHERE id = $1", id)
	person, err := scanPersonRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &person, nil
}

// GetPersonByName looks a person up by normalized name.
func (r *PersonRepository) GetPersonByName(ctx context.Context, name string) (*store.Person, error) {
	normalized := facematch.NormalizePersonName(name)
	row := r.pool.QueryRow(ctx,
		"SELECT "+personColumns+" FROM persons WHERE name_normalized = $1", normalized)
	person, err := scanPersonRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &person, nil
}

// ListPersons returns all persons ordered by name. Merged persons are
// included so callers can follow merge chains.
func (r *PersonRepository) ListPersons(ctx context.Context) ([]store.Person, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+personColumns+" FROM persons ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []store.Person
	for rows.Next() {
		person, err := scanPersonRow(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// MarkMerged records that one person was merged into another.
func (r *PersonRepository) MarkMerged(ctx context.Context, fromID, intoID int64) error {
	if fromID == intoID {
		return fmt.Errorf("cannot merge person %d into itself: %w", fromID, store.ErrInvalidArgument)
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE persons SET status = $1, merged_into = $2
		WHERE id = $3 AND status = $4
	`, store.PersonMerged, intoID, fromID, store.PersonActive)
	if err != nil {
		return fmt.Errorf("mark person merged: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("person %d not active: %w", fromID, store.ErrNotFound)
	}
	return nil
}

// Verify interface compliance.
var _ store.PersonStore = (*PersonRepository)(nil)
