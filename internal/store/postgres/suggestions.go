package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

const suggestionColumns = `id, face_id, person_id, score, prototype_scores, confidence, status, created_at, resolved_at`

// SuggestionRepository provides PostgreSQL-backed suggestion storage.
type SuggestionRepository struct {
	pool *Pool
}

// NewSuggestionRepository creates a new PostgreSQL suggestion repository.
func NewSuggestionRepository(pool *Pool) *SuggestionRepository {
	return &SuggestionRepository{pool: pool}
}

func scanSuggestionRow(scanner interface{ Scan(...any) error }) (store.FaceSuggestion, error) {
	var s store.FaceSuggestion
	var protoScores []byte
	var resolvedAt sql.NullTime

	if err := scanner.Scan(
		&s.ID, &s.FaceID, &s.PersonID, &s.Score,
		&protoScores, &s.Confidence, &s.Status, &s.CreatedAt, &resolvedAt,
	); err != nil {
		return s, fmt.Errorf("scan suggestion: %w", err)
	}

	if len(protoScores) > 0 {
		if err := json.Unmarshal(protoScores, &s.PrototypeScores); err != nil {
			return s, fmt.Errorf("decode prototype scores: %w", err)
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		s.ResolvedAt = &t
	}
	return s, nil
}

func scanSuggestions(rows *sql.Rows) ([]store.FaceSuggestion, error) {
	var suggestions []store.FaceSuggestion
	for rows.Next() {
		s, err := scanSuggestionRow(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return suggestions, nil
}

// CreateSuggestion inserts a pending suggestion. When a pending
// suggestion for the same (face, person) pair already exists, its score
// is refreshed in place and created is false.
func (r *SuggestionRepository) CreateSuggestion(ctx context.Context, s store.FaceSuggestion) (*store.FaceSuggestion, bool, error) {
	protoScores, err := json.Marshal(s.PrototypeScores)
	if err != nil {
		return nil, false, fmt.Errorf("encode prototype scores: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO face_suggestions (face_id, person_id, score, prototype_scores, confidence, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (face_id, person_id) WHERE status = 'pending'
		DO UPDATE SET score = EXCLUDED.score,
		              prototype_scores = EXCLUDED.prototype_scores,
		              confidence = EXCLUDED.confidence
		RETURNING `+suggestionColumns+`, (xmax = 0) AS inserted
	`, s.FaceID, s.PersonID, s.Score, protoScores, s.Confidence, store.SuggestionPending)

	var out store.FaceSuggestion
	var rawScores []byte
	var resolvedAt sql.NullTime
	var inserted bool
	err = row.Scan(
		&out.ID, &out.FaceID, &out.PersonID, &out.Score,
		&rawScores, &out.Confidence, &out.Status, &out.CreatedAt, &resolvedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert suggestion: %w", err)
	}
	if len(rawScores) > 0 {
		if err := json.Unmarshal(rawScores, &out.PrototypeScores); err != nil {
			return nil, false, fmt.Errorf("decode prototype scores: %w", err)
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		out.ResolvedAt = &t
	}
	return &out, inserted, nil
}

// GetSuggestion retrieves a suggestion by id.
func (r *SuggestionRepository) GetSuggestion(ctx context.Context, id int64) (*store.FaceSuggestion, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+suggestionColumns+" FROM face_suggestions WHERE id = $1", id)
	s, err := scanSuggestionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListPendingByFace returns pending suggestions for a face, best first.
func (r *SuggestionRepository) ListPendingByFace(ctx context.Context, faceID int64) ([]store.FaceSuggestion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+suggestionColumns+` FROM face_suggestions
		WHERE face_id = $1 AND status = $2
		ORDER BY score DESC, id
	`, faceID, store.SuggestionPending)
	if err != nil {
		return nil, fmt.Errorf("query suggestions by face: %w", err)
	}
	defer rows.Close()
	return scanSuggestions(rows)
}

// ListPendingByPerson returns pending suggestions for a person, best first.
func (r *SuggestionRepository) ListPendingByPerson(ctx context.Context, personID int64) ([]store.FaceSuggestion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+suggestionColumns+` FROM face_suggestions
		WHERE person_id = $1 AND status = $2
		ORDER BY score DESC, id
	`, personID, store.SuggestionPending)
	if err != nil {
		return nil, fmt.Errorf("query suggestions by person: %w", err)
	}
	defer rows.Close()
	return scanSuggestions(rows)
}

// ListGrouped returns pending suggestions grouped by person, persons
// with the most pending work first, capped at perGroup suggestions per
// person.
func (r *SuggestionRepository) ListGrouped(ctx context.Context, groupLimit, groupOffset, perGroup int) ([]store.SuggestionGroup, error) {
	rows, err := r.pool.Query(ctx, `
		WITH pending AS (
			SELECT s.*,
			       COUNT(*) OVER (PARTITION BY s.person_id) AS pending_count,
			       ROW_NUMBER() OVER (PARTITION BY s.person_id ORDER BY s.score DESC, s.id) AS rank
			FROM face_suggestions s
			WHERE s.status = 'pending'
		),
		grp AS (
			SELECT DISTINCT person_id, pending_count
			FROM pending
			ORDER BY pending_count DESC, person_id
			LIMIT $1 OFFSET $2
		)
		SELECT p.id, p.name, p.status, p.merged_into, p.created_at,
		       g.pending_count,
		       s.id, s.face_id, s.person_id, s.score, s.prototype_scores,
		       s.confidence, s.status, s.created_at, s.resolved_at
		FROM grp g
		JOIN persons p ON p.id = g.person_id
		JOIN pending s ON s.person_id = g.person_id AND s.rank <= $3
		ORDER BY g.pending_count DESC, p.id, s.score DESC, s.id
	`, groupLimit, groupOffset, perGroup)
	if err != nil {
		return nil, fmt.Errorf("query grouped suggestions: %w", err)
	}
	defer rows.Close()

	var groups []store.SuggestionGroup
	byPerson := map[int64]int{}
	for rows.Next() {
		var person store.Person
		var mergedInto sql.NullInt64
		var pendingCount int
		var s store.FaceSuggestion
		var protoScores []byte
		var resolvedAt sql.NullTime

		if err := rows.Scan(
			&person.ID, &person.Name, &person.Status, &mergedInto, &person.CreatedAt,
			&pendingCount,
			&s.ID, &s.FaceID, &s.PersonID, &s.Score, &protoScores,
			&s.Confidence, &s.Status, &s.CreatedAt, &resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan suggestion group: %w", err)
		}
		if mergedInto.Valid {
			person.MergedInto = &mergedInto.Int64
		}
		if len(protoScores) > 0 {
			if err := json.Unmarshal(protoScores, &s.PrototypeScores); err != nil {
				return nil, fmt.Errorf("decode prototype scores: %w", err)
			}
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			s.ResolvedAt = &t
		}

		idx, ok := byPerson[person.ID]
		if !ok {
			groups = append(groups, store.SuggestionGroup{
				Person:       person,
				PendingCount: pendingCount,
			})
			idx = len(groups) - 1
			byPerson[person.ID] = idx
		}
		groups[idx].Suggestions = append(groups[idx].Suggestions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestion groups: %w", err)
	}
	return groups, nil
}

// Resolve moves a pending suggestion to a terminal status.
func (r *SuggestionRepository) Resolve(ctx context.Context, id int64, status store.SuggestionStatus) error {
	if status == store.SuggestionPending {
		return fmt.Errorf("cannot resolve to pending: %w", store.ErrInvalidArgument)
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE face_suggestions SET status = $1, resolved_at = NOW()
		WHERE id = $2 AND status = $3
	`, status, id, store.SuggestionPending)
	if err != nil {
		return fmt.Errorf("resolve suggestion: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM face_suggestions WHERE id = $1)", id).Scan(&exists); err != nil {
			return fmt.Errorf("check suggestion: %w", err)
		}
		if !exists {
			return fmt.Errorf("suggestion %d: %w", id, store.ErrNotFound)
		}
		return fmt.Errorf("suggestion %d already resolved: %w", id, store.ErrInvalidArgument)
	}
	return nil
}

// ExpirePendingForFace expires all pending suggestions for a face,
// except an optional survivor (0 means none). Returns the expired count.
func (r *SuggestionRepository) ExpirePendingForFace(ctx context.Context, faceID, exceptID int64) (int, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE face_suggestions SET status = $1, resolved_at = NOW()
		WHERE face_id = $2 AND status = $3 AND id <> $4
	`, store.SuggestionExpired, faceID, store.SuggestionPending, exceptID)
	if err != nil {
		return 0, fmt.Errorf("expire suggestions for face: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

// ExpirePendingForFaces expires all pending suggestions for a set of
// faces in one statement. Returns the expired count.
func (r *SuggestionRepository) ExpirePendingForFaces(ctx context.Context, faceIDs []int64) (int, error) {
	if len(faceIDs) == 0 {
		return 0, nil
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE face_suggestions SET status = $1, resolved_at = NOW()
		WHERE face_id = ANY($2) AND status = $3
	`, store.SuggestionExpired, pq.Array(faceIDs), store.SuggestionPending)
	if err != nil {
		return 0, fmt.Errorf("expire suggestions for faces: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

// ExpirePendingForPerson expires all pending suggestions targeting a
// person. Used when a person is merged away.
func (r *SuggestionRepository) ExpirePendingForPerson(ctx context.Context, personID int64) (int, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE face_suggestions SET status = $1, resolved_at = NOW()
		WHERE person_id = $2 AND status = $3
	`, store.SuggestionExpired, personID, store.SuggestionPending)
	if err != nil {
		return 0, fmt.Errorf("expire suggestions for person: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

// Verify interface compliance.
var _ store.SuggestionStore = (*SuggestionRepository)(nil)
