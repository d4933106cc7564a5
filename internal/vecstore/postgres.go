package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// ef_search matches the in-memory HNSW over-query factor.
const pgEfSearch = 400

// PostgresStore is a pgvector-backed VectorStore. Points live in the
// vector_points table, one row per (namespace, id), payload as jsonb.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a VectorStore on an existing connection
// pool. The vector_points table is created by the store migrations.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert inserts or replaces points in a single transaction.
func (s *PostgresStore) Upsert(ctx context.Context, namespace string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_points (namespace, id, embedding, payload)
		VALUES ($1, $2, $3::vector, $4)
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range points {
		p := &points[i]
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, namespace, p.ID, pgvector.NewVector(p.Vector), payload); err != nil {
			return fmt.Errorf("upsert point %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Search runs a cosine similarity query with payload containment
// filtering, raising ef_search for better recall.
func (s *PostgresStore) Search(ctx context.Context, namespace string, vector []float32, limit int, scoreThreshold float64, filter Filter) ([]ScoredPoint, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", pgEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}

	query := `
		SELECT id, embedding, payload, 1 - (embedding <=> $2::vector) AS score
		FROM vector_points
		WHERE namespace = $1
		AND payload @> $3
		AND 1 - (embedding <=> $2::vector) >= $4
		ORDER BY embedding <=> $2::vector
		LIMIT $5
	`

	rows, err := tx.QueryContext(ctx, query, namespace, pgvector.NewVector(vector), filterJSON, scoreThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar points: %w", err)
	}
	defer rows.Close()

	var results []ScoredPoint
	for rows.Next() {
		var sp ScoredPoint
		var vec pgvector.Vector
		var payload []byte
		if err := rows.Scan(&sp.ID, &vec, &payload, &sp.Score); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		sp.Vector = vec.Slice()
		if err := json.Unmarshal(payload, &sp.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload %s: %w", sp.ID, err)
		}
		results = append(results, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points: %w", err)
	}
	return results, nil
}

// UpdatePayload merges fields into a point's jsonb payload.
func (s *PostgresStore) UpdatePayload(ctx context.Context, namespace, id string, fields map[string]string) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal payload patch: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE vector_points SET payload = payload || $3
		WHERE namespace = $1 AND id = $2
	`, namespace, id, patch)
	if err != nil {
		return fmt.Errorf("update payload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePayloads merges per-point patches in one statement. Ids with
// no matching row are skipped; the index may lag the relational store.
func (s *PostgresStore) UpdatePayloads(ctx context.Context, namespace string, updates []PayloadUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ids := make([]string, 0, len(updates))
	patches := make([]string, 0, len(updates))
	for _, u := range updates {
		patch, err := json.Marshal(u.Fields)
		if err != nil {
			return fmt.Errorf("marshal payload patch for %s: %w", u.ID, err)
		}
		ids = append(ids, u.ID)
		patches = append(patches, string(patch))
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE vector_points AS vp SET payload = vp.payload || u.patch::jsonb
		FROM unnest($2::text[], $3::text[]) AS u(id, patch)
		WHERE vp.namespace = $1 AND vp.id = u.id
	`, namespace, pq.Array(ids), pq.Array(patches))
	if err != nil {
		return fmt.Errorf("update payloads: %w", err)
	}
	return nil
}

// Delete removes points by id.
func (s *PostgresStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM vector_points WHERE namespace = $1 AND id = ANY($2)",
		namespace, pq.Array(ids),
	); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Scroll iterates all points matching the filter, ordered by id so the
// iteration is stable across calls.
func (s *PostgresStore) Scroll(ctx context.Context, namespace string, filter Filter, fn func(Point) error) error {
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("marshal filter: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding, payload FROM vector_points
		WHERE namespace = $1 AND payload @> $2
		ORDER BY id
	`, namespace, filterJSON)
	if err != nil {
		return fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Point
		var vec pgvector.Vector
		var payload []byte
		if err := rows.Scan(&p.ID, &vec, &payload); err != nil {
			return fmt.Errorf("scan point: %w", err)
		}
		p.Vector = vec.Slice()
		if err := json.Unmarshal(payload, &p.Payload); err != nil {
			return fmt.Errorf("unmarshal payload %s: %w", p.ID, err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate points: %w", err)
	}
	return nil
}

// GetVector returns the embedding of a single point.
func (s *PostgresStore) GetVector(ctx context.Context, namespace, id string) ([]float32, error) {
	var vec pgvector.Vector
	err := s.db.QueryRowContext(ctx,
		"SELECT embedding FROM vector_points WHERE namespace = $1 AND id = $2",
		namespace, id,
	).Scan(&vec)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query point vector: %w", err)
	}
	return vec.Slice(), nil
}

// Verify interface compliance.
var _ VectorStore = (*PostgresStore)(nil)
