package engine

import (
	"context"
	"log"
	"math"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/store/mock"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// fakeVectorStore is an in-memory vector store for engine tests.
// Search is brute-force cosine similarity by default; SearchFunc
// overrides it when a test needs exact scripted scores.
type fakeVectorStore struct {
	mu     sync.RWMutex
	points map[string]map[string]vecstore.Point

	SearchFunc func(namespace string, vector []float32, limit int, scoreThreshold float64, filter vecstore.Filter) ([]vecstore.ScoredPoint, error)

	// Error injection
	UpsertError        error
	UpdatePayloadError error
	DeleteError        error
	SearchError        error

	// Call counters for round-trip assertions
	UpdatePayloadCalls  int
	UpdatePayloadsCalls int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string]map[string]vecstore.Point)}
}

func (f *fakeVectorStore) ns(name string) map[string]vecstore.Point {
	if f.points[name] == nil {
		f.points[name] = make(map[string]vecstore.Point)
	}
	return f.points[name]
}

func (f *fakeVectorStore) Upsert(ctx context.Context, namespace string, points []vecstore.Point) error {
	if f.UpsertError != nil {
		return f.UpsertError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range points {
		f.ns(namespace)[p.ID] = p
	}
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, namespace string, vector []float32, limit int, scoreThreshold float64, filter vecstore.Filter) ([]vecstore.ScoredPoint, error) {
	if f.SearchError != nil {
		return nil, f.SearchError
	}
	if f.SearchFunc != nil {
		return f.SearchFunc(namespace, vector, limit, scoreThreshold, filter)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var hits []vecstore.ScoredPoint
	for _, p := range f.ns(namespace) {
		if filter != nil && !filter.Matches(p.Payload) {
			continue
		}
		score := store.CosineSimilarity(vector, p.Vector)
		if score >= scoreThreshold {
			hits = append(hits, vecstore.ScoredPoint{Point: p, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeVectorStore) UpdatePayload(ctx context.Context, namespace, id string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdatePayloadCalls++
	if f.UpdatePayloadError != nil {
		return f.UpdatePayloadError
	}
	p, ok := f.ns(namespace)[id]
	if !ok {
		return vecstore.ErrNotFound
	}
	if p.Payload == nil {
		p.Payload = make(map[string]string)
	}
	for k, v := range fields {
		p.Payload[k] = v
	}
	f.ns(namespace)[id] = p
	return nil
}

func (f *fakeVectorStore) UpdatePayloads(ctx context.Context, namespace string, updates []vecstore.PayloadUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdatePayloadsCalls++
	if f.UpdatePayloadError != nil {
		return f.UpdatePayloadError
	}
	for _, u := range updates {
		p, ok := f.ns(namespace)[u.ID]
		if !ok {
			continue
		}
		if p.Payload == nil {
			p.Payload = make(map[string]string)
		}
		for k, v := range u.Fields {
			p.Payload[k] = v
		}
		f.ns(namespace)[u.ID] = p
	}
	return nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if f.DeleteError != nil {
		return f.DeleteError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.ns(namespace), id)
	}
	return nil
}

func (f *fakeVectorStore) Scroll(ctx context.Context, namespace string, filter vecstore.Filter, fn func(vecstore.Point) error) error {
	f.mu.RLock()
	points := make([]vecstore.Point, 0, len(f.ns(namespace)))
	for _, p := range f.ns(namespace) {
		if filter == nil || filter.Matches(p.Payload) {
			points = append(points, p)
		}
	}
	f.mu.RUnlock()
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	for _, p := range points {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeVectorStore) GetVector(ctx context.Context, namespace, id string) ([]float32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.ns(namespace)[id]
	if !ok {
		return nil, vecstore.ErrNotFound
	}
	return p.Vector, nil
}

var _ vecstore.VectorStore = (*fakeVectorStore)(nil)

// fixture bundles the engine under test with its fakes.
type fixture struct {
	engine  *Engine
	stores  *store.Stores
	faces   *mock.MockFaceStore
	persons *mock.MockPersonStore
	vectors *fakeVectorStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores := mock.NewStores()
	vectors := newFakeVectorStore()
	return &fixture{
		engine:  New(stores, vectors, log.New(testWriter{t}, "", 0)),
		stores:  stores,
		faces:   stores.Faces.(*mock.MockFaceStore),
		persons: stores.Persons.(*mock.MockPersonStore),
		vectors: vectors,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// addFace seeds a face with its embedding.
func (fx *fixture) addFace(t *testing.T, quality float64, vector []float32) store.Face {
	t.Helper()
	face := fx.faces.AddFace(store.Face{Quality: quality, DetScore: quality, ImageUID: "img"})
	face.EmbeddingID = "emb-" + strconv.FormatInt(face.ID, 10)
	fx.faces.AddFace(face)
	err := fx.vectors.Upsert(context.Background(), vecstore.NamespaceFaces, []vecstore.Point{{
		ID:     face.EmbeddingID,
		Vector: vector,
		Payload: map[string]string{
			vecstore.PayloadFaceID:   strconv.FormatInt(face.ID, 10),
			vecstore.PayloadAssigned: "false",
		},
	}})
	if err != nil {
		t.Fatalf("seed face vector: %v", err)
	}
	return face
}

// addPersonWithAnchor seeds a person plus one prototype anchor point.
func (fx *fixture) addPersonWithAnchor(t *testing.T, name string, anchor []float32) store.Person {
	t.Helper()
	person := fx.persons.AddPerson(store.Person{Name: name})
	err := fx.vectors.Upsert(context.Background(), vecstore.NamespaceAnchors, []vecstore.Point{{
		ID:     "proto-" + strconv.FormatInt(person.ID, 10) + "00",
		Vector: anchor,
		Payload: map[string]string{
			vecstore.PayloadKind:     vecstore.KindPrototype,
			vecstore.PayloadPersonID: strconv.FormatInt(person.ID, 10),
		},
	}})
	if err != nil {
		t.Fatalf("seed anchor vector: %v", err)
	}
	return person
}

// unitVec builds a unit-norm 2D-ish vector at the given cosine against
// the x axis, padded to four dimensions.
func unitVec(cos float64) []float32 {
	sin := math.Sqrt(1 - cos*cos)
	return []float32{float32(cos), float32(sin), 0, 0}
}

var xAxis = []float32{1, 0, 0, 0}

func assignedTo(t *testing.T, fx *fixture, faceID int64) *int64 {
	t.Helper()
	face, err := fx.stores.Faces.GetFace(context.Background(), faceID)
	if err != nil {
		t.Fatalf("get face %d: %v", faceID, err)
	}
	return face.PersonID
}
