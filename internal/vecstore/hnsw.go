package vecstore

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// HNSW graph parameters, matching the pgvector index configuration so
// the two implementations return comparable neighborhoods.
const (
	hnswMaxNeighbors     = 16
	hnswSearchMultiplier = 4
	hnswMinSearchK       = 100
)

type hnswNamespace struct {
	graph  *hnsw.Graph[string]
	points map[string]*Point
}

// HNSWStore is an in-memory VectorStore backed by a coder/hnsw graph
// per namespace. MirroredStore replicates the Postgres store into one
// at serve startup; tests use it directly.
type HNSWStore struct {
	mu         sync.RWMutex
	namespaces map[string]*hnswNamespace
}

// NewHNSWStore creates an empty in-memory vector store.
func NewHNSWStore() *HNSWStore {
	return &HNSWStore{namespaces: make(map[string]*hnswNamespace)}
}

func (s *HNSWStore) namespace(name string) *hnswNamespace {
	ns, ok := s.namespaces[name]
	if !ok {
		g := hnsw.NewGraph[string]()
		g.M = hnswMaxNeighbors
		g.Ml = 1.0 / float64(hnswMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		ns = &hnswNamespace{graph: g, points: make(map[string]*Point)}
		s.namespaces[name] = ns
	}
	return ns
}

// Upsert inserts or replaces points.
func (s *HNSWStore) Upsert(ctx context.Context, namespace string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespace(namespace)
	for i := range points {
		p := points[i]
		if len(p.Vector) == 0 {
			continue
		}
		if p.Payload == nil {
			p.Payload = make(map[string]string)
		}
		ns.graph.Add(hnsw.MakeNode(p.ID, p.Vector))
		ns.points[p.ID] = &p
	}
	return nil
}

// Search returns the best-scoring points above the threshold. The graph
// is over-queried because deleted and filtered points are dropped after
// the neighbor lookup, the same recall trick the pgvector path uses
// with ef_search.
func (s *HNSWStore) Search(ctx context.Context, namespace string, vector []float32, limit int, scoreThreshold float64, filter Filter) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok || len(ns.points) == 0 {
		return nil, nil
	}

	searchK := limit * hnswSearchMultiplier
	searchK = max(searchK, hnswMinSearchK)

	neighbors := ns.graph.Search(vector, searchK)

	results := make([]ScoredPoint, 0, limit)
	for _, n := range neighbors {
		p, ok := ns.points[n.Key]
		if !ok {
			continue // deleted from the map, graph node is stale
		}
		if !filter.Matches(p.Payload) {
			continue
		}
		score := store.CosineSimilarity(vector, p.Vector)
		if score < scoreThreshold {
			continue
		}
		results = append(results, ScoredPoint{Point: *p, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// UpdatePayload merges fields into a point's payload.
func (s *HNSWStore) UpdatePayload(ctx context.Context, namespace, id string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return ErrNotFound
	}
	p, ok := ns.points[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		p.Payload[k] = v
	}
	return nil
}

// UpdatePayloads merges payload patches for many points under one lock.
// Unknown ids are skipped.
func (s *HNSWStore) UpdatePayloads(ctx context.Context, namespace string, updates []PayloadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil
	}
	for _, u := range updates {
		p, ok := ns.points[u.ID]
		if !ok {
			continue
		}
		for k, v := range u.Fields {
			p.Payload[k] = v
		}
	}
	return nil
}

// Delete removes points by id. The HNSW graph does not support true
// deletion; removing from the point map hides the node from results.
func (s *HNSWStore) Delete(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(ns.points, id)
	}
	return nil
}

// Scroll iterates all live points matching the filter.
func (s *HNSWStore) Scroll(ctx context.Context, namespace string, filter Filter, fn func(Point) error) error {
	s.mu.RLock()
	snapshot := make([]Point, 0)
	if ns, ok := s.namespaces[namespace]; ok {
		for _, p := range ns.points {
			if filter.Matches(p.Payload) {
				snapshot = append(snapshot, *p)
			}
		}
	}
	s.mu.RUnlock()

	for _, p := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// GetVector returns the embedding of a single point.
func (s *HNSWStore) GetVector(ctx context.Context, namespace, id string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil, ErrNotFound
	}
	p, ok := ns.points[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Vector, nil
}

// Count returns the number of live points in a namespace.
func (s *HNSWStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return 0
	}
	return len(ns.points)
}

// Verify interface compliance.
var _ VectorStore = (*HNSWStore)(nil)
