// Package vecstore provides the similarity index used for face and
// anchor embeddings. The relational store is the source of truth; the
// vector store is a best-effort derived index and may briefly lag it.
package vecstore

import (
	"context"
	"errors"
)

// Namespaces. Faces holds one point per detected face. Anchors holds
// prototype and centroid vectors; it is written only by the prototype
// manager and centroid recompute so payloads stay trustworthy for
// staleness checks.
const (
	NamespaceFaces   = "faces"
	NamespaceAnchors = "anchors"
)

// Payload keys used by the engine.
const (
	PayloadPersonID = "person_id"
	PayloadFaceID   = "face_id"
	PayloadKind     = "kind" // "prototype" or "centroid"
	PayloadAssigned = "assigned"
)

// Anchor kinds stored in the PayloadKind field.
const (
	KindPrototype = "prototype"
	KindCentroid  = "centroid"
)

// ErrNotFound is returned when a requested point id does not exist.
var ErrNotFound = errors.New("vector point not found")

// Point is one stored embedding with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// ScoredPoint is a search hit. Score is cosine similarity in [-1, 1].
type ScoredPoint struct {
	Point
	Score float64
}

// PayloadUpdate is one point's payload patch within a batch update.
type PayloadUpdate struct {
	ID     string
	Fields map[string]string
}

// Filter restricts search and scroll to points whose payload matches
// every listed field exactly.
type Filter map[string]string

// Matches reports whether a payload satisfies the filter.
func (f Filter) Matches(payload map[string]string) bool {
	for k, v := range f {
		if payload[k] != v {
			return false
		}
	}
	return true
}

// VectorStore stores embeddings in namespaces and answers similarity
// queries. Implementations must be safe for concurrent use.
type VectorStore interface {
	// Upsert inserts or replaces points in a namespace.
	Upsert(ctx context.Context, namespace string, points []Point) error
	// Search returns up to limit points ordered by descending score,
	// keeping only scores >= scoreThreshold and payloads matching the
	// filter.
	Search(ctx context.Context, namespace string, vector []float32, limit int, scoreThreshold float64, filter Filter) ([]ScoredPoint, error)
	// UpdatePayload merges fields into a point's payload.
	UpdatePayload(ctx context.Context, namespace, id string, fields map[string]string) error
	// UpdatePayloads merges per-point fields for many points in one
	// round-trip. Unknown ids are skipped, not errors: the index may
	// lag the relational store.
	UpdatePayloads(ctx context.Context, namespace string, updates []PayloadUpdate) error
	// Delete removes points by id; missing ids are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error
	// Scroll iterates all points matching the filter. Iteration stops
	// when fn returns an error.
	Scroll(ctx context.Context, namespace string, filter Filter, fn func(Point) error) error
	// GetVector returns the embedding of a single point.
	GetVector(ctx context.Context, namespace, id string) ([]float32, error)
}
