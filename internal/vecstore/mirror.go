package vecstore

import (
	"context"
	"errors"
	"fmt"
)

// warmBatchSize bounds the upsert batches used while warming the mirror.
const warmBatchSize = 500

// MirroredStore keeps an in-memory HNSW replica of a primary store and
// serves similarity searches from it. Writes go through the primary
// first; the mirror is updated after the primary accepts them, so the
// primary stays the complete record. Scroll reads the primary for the
// same reason.
type MirroredStore struct {
	primary VectorStore
	mirror  *HNSWStore
}

// NewMirroredStore wraps a primary store with an empty in-memory
// mirror. Call Warm before serving searches.
func NewMirroredStore(primary VectorStore) *MirroredStore {
	return &MirroredStore{primary: primary, mirror: NewHNSWStore()}
}

// Warm loads every point of the given namespaces from the primary into
// the mirror. Returns the number of points loaded.
func (s *MirroredStore) Warm(ctx context.Context, namespaces ...string) (int, error) {
	total := 0
	for _, ns := range namespaces {
		batch := make([]Point, 0, warmBatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := s.mirror.Upsert(ctx, ns, batch); err != nil {
				return err
			}
			total += len(batch)
			batch = batch[:0]
			return nil
		}
		err := s.primary.Scroll(ctx, ns, nil, func(p Point) error {
			batch = append(batch, p)
			if len(batch) == warmBatchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("warm namespace %q: %w", ns, err)
		}
		if err := flush(); err != nil {
			return total, fmt.Errorf("warm namespace %q: %w", ns, err)
		}
	}
	return total, nil
}

// Upsert writes to the primary, then replicates into the mirror.
func (s *MirroredStore) Upsert(ctx context.Context, namespace string, points []Point) error {
	if err := s.primary.Upsert(ctx, namespace, points); err != nil {
		return err
	}
	return s.mirror.Upsert(ctx, namespace, points)
}

// Search queries the in-memory mirror.
func (s *MirroredStore) Search(ctx context.Context, namespace string, vector []float32, limit int, scoreThreshold float64, filter Filter) ([]ScoredPoint, error) {
	return s.mirror.Search(ctx, namespace, vector, limit, scoreThreshold, filter)
}

// UpdatePayload patches the primary, then the mirror. A point missing
// from the mirror is not an error; it simply was never warmed.
func (s *MirroredStore) UpdatePayload(ctx context.Context, namespace, id string, fields map[string]string) error {
	if err := s.primary.UpdatePayload(ctx, namespace, id, fields); err != nil {
		return err
	}
	if err := s.mirror.UpdatePayload(ctx, namespace, id, fields); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// UpdatePayloads patches the primary, then the mirror.
func (s *MirroredStore) UpdatePayloads(ctx context.Context, namespace string, updates []PayloadUpdate) error {
	if err := s.primary.UpdatePayloads(ctx, namespace, updates); err != nil {
		return err
	}
	return s.mirror.UpdatePayloads(ctx, namespace, updates)
}

// Delete removes points from the primary, then the mirror.
func (s *MirroredStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if err := s.primary.Delete(ctx, namespace, ids); err != nil {
		return err
	}
	return s.mirror.Delete(ctx, namespace, ids)
}

// Scroll iterates the primary, the complete record.
func (s *MirroredStore) Scroll(ctx context.Context, namespace string, filter Filter, fn func(Point) error) error {
	return s.primary.Scroll(ctx, namespace, filter, fn)
}

// GetVector reads the mirror and falls back to the primary for points
// that were never warmed.
func (s *MirroredStore) GetVector(ctx context.Context, namespace, id string) ([]float32, error) {
	vec, err := s.mirror.GetVector(ctx, namespace, id)
	if err == nil {
		return vec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.primary.GetVector(ctx, namespace, id)
}

// Count returns the number of mirrored points in a namespace.
func (s *MirroredStore) Count(namespace string) int {
	return s.mirror.Count(namespace)
}

// Verify interface compliance.
var _ VectorStore = (*MirroredStore)(nil)
