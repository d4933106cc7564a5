package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// EventRepository provides PostgreSQL-backed assignment audit storage.
type EventRepository struct {
	pool *Pool
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(pool *Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// RecordEvent appends an assignment event to the audit trail.
func (r *EventRepository) RecordEvent(ctx context.Context, event store.AssignmentEvent) error {
	var fromID, toID any
	if event.FromPersonID != nil {
		fromID = *event.FromPersonID
	}
	if event.ToPersonID != nil {
		toID = *event.ToPersonID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assignment_events (kind, face_ids, from_person_id, to_person_id)
		VALUES ($1, $2, $3, $4)
	`, event.Kind, pq.Array(event.FaceIDs), fromID, toID)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// ListEventsByFace returns the newest events touching a face.
func (r *EventRepository) ListEventsByFace(ctx context.Context, faceID int64, limit int) ([]store.AssignmentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, face_ids, from_person_id, to_person_id, created_at
		FROM assignment_events
		WHERE $1 = ANY(face_ids)
		ORDER BY id DESC
		LIMIT $2
	`, faceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []store.AssignmentEvent
	for rows.Next() {
		var e store.AssignmentEvent
		var faceIDs pq.Int64Array
		var fromID, toID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Kind, &faceIDs, &fromID, &toID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.FaceIDs = []int64(faceIDs)
		if fromID.Valid {
			e.FromPersonID = &fromID.Int64
		}
		if toID.Valid {
			e.ToPersonID = &toID.Int64
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Verify interface compliance.
var _ store.EventStore = (*EventRepository)(nil)
