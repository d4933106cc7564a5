package engine

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// addLabeledFace seeds an assigned face whose vector payload is in
// sync with the relational assignment.
func addLabeledFace(t *testing.T, fx *fixture, personID int64, vector []float32) store.Face {
	t.Helper()
	ctx := context.Background()
	face := fx.addFace(t, 0.9, vector)
	err := fx.stores.Faces.AssignFaces(ctx, []store.FaceAssignment{
		{FaceID: face.ID, PersonID: personID, Score: 1},
	})
	if err != nil {
		t.Fatalf("AssignFaces failed: %v", err)
	}
	err = fx.vectors.UpdatePayload(ctx, vecstore.NamespaceFaces, face.EmbeddingID, map[string]string{
		vecstore.PayloadAssigned: "true",
		vecstore.PayloadPersonID: strconv.FormatInt(personID, 10),
	})
	if err != nil {
		t.Fatalf("UpdatePayload failed: %v", err)
	}
	return face
}

func TestFindMorePrototypeMode(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})
	addLabeledFace(t, fx, alice.ID, xAxis)
	addLabeledFace(t, fx, alice.ID, xAxis)

	near := fx.addFace(t, 0.9, unitVec(0.9))
	far := fx.addFace(t, 0.9, unitVec(0.75))
	fx.addFace(t, 0.9, []float32{0, 1, 0, 0}) // below threshold

	result, err := fx.engine.FindMore(ctx, alice.ID, SearchModeAuto)
	if err != nil {
		t.Fatalf("FindMore failed: %v", err)
	}
	if result.Mode != SearchModePrototype {
		t.Errorf("Few labeled faces must use prototype mode, got %s", result.Mode)
	}
	if result.Anchors != 2 {
		t.Errorf("Expected 2 anchors, got %d", result.Anchors)
	}
	if result.Created != 2 {
		t.Errorf("Expected 2 suggestions created, got %d", result.Created)
	}

	pending, _ := fx.stores.Suggestions.ListPendingByPerson(ctx, alice.ID)
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending suggestions, got %d", len(pending))
	}
	got := map[int64]bool{}
	for _, s := range pending {
		got[s.FaceID] = true
	}
	if !got[near.ID] || !got[far.ID] {
		t.Errorf("Expected suggestions for faces %d and %d, got %v", near.ID, far.ID, got)
	}
}

func TestFindMoreCentroidMode(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})
	for i := 0; i < store.DefaultCentroidMinFaces; i++ {
		addLabeledFace(t, fx, alice.ID, xAxis)
	}
	err := fx.vectors.Upsert(ctx, vecstore.NamespaceAnchors, []vecstore.Point{{
		ID:     centroidAnchorID(alice.ID),
		Vector: xAxis,
		Payload: map[string]string{
			vecstore.PayloadKind:     vecstore.KindCentroid,
			vecstore.PayloadPersonID: strconv.FormatInt(alice.ID, 10),
		},
	}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	fx.addFace(t, 0.9, unitVec(0.9))

	result, err := fx.engine.FindMore(ctx, alice.ID, SearchModeAuto)
	if err != nil {
		t.Fatalf("FindMore failed: %v", err)
	}
	if result.Mode != SearchModeCentroid {
		t.Errorf("Enough labeled faces must use centroid mode, got %s", result.Mode)
	}
	if result.Anchors != 1 {
		t.Errorf("Centroid mode uses a single anchor, got %d", result.Anchors)
	}
	if result.Created != 1 {
		t.Errorf("Expected 1 suggestion, got %d", result.Created)
	}
}

func TestFindMoreCentroidBelowMinimumFallsBack(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})
	addLabeledFace(t, fx, alice.ID, xAxis)

	result, err := fx.engine.FindMore(ctx, alice.ID, SearchModeCentroid)
	if err != nil {
		t.Fatalf("FindMore failed: %v", err)
	}
	if result.Mode != SearchModePrototype {
		t.Errorf("Centroid mode below the face minimum must fall back, got %s", result.Mode)
	}
}

func TestFindMoreMissingCentroidFallsBack(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})
	for i := 0; i < store.DefaultCentroidMinFaces; i++ {
		addLabeledFace(t, fx, alice.ID, xAxis)
	}
	// Enough faces for centroid mode, but no centroid was computed yet.

	result, err := fx.engine.FindMore(ctx, alice.ID, SearchModeAuto)
	if err != nil {
		t.Fatalf("FindMore failed: %v", err)
	}
	if result.Mode != SearchModePrototype {
		t.Errorf("Missing centroid must fall back to prototype mode, got %s", result.Mode)
	}
}

func TestFindMoreIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})
	addLabeledFace(t, fx, alice.ID, xAxis)
	fx.addFace(t, 0.9, unitVec(0.9))

	first, err := fx.engine.FindMore(ctx, alice.ID, SearchModeAuto)
	if err != nil {
		t.Fatalf("first FindMore failed: %v", err)
	}
	if first.Created != 1 {
		t.Fatalf("Expected 1 created, got %d", first.Created)
	}

	second, err := fx.engine.FindMore(ctx, alice.ID, SearchModeAuto)
	if err != nil {
		t.Fatalf("second FindMore failed: %v", err)
	}
	if second.Created != 0 {
		t.Errorf("Re-running must refresh, not duplicate, got %d created", second.Created)
	}
}

func TestFindMoreSkipsLaggedPayloads(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})
	bob := fx.persons.AddPerson(store.Person{Name: "Bob"})
	addLabeledFace(t, fx, alice.ID, xAxis)

	// Relationally assigned to Bob but the vector payload still says
	// unassigned; relational truth wins.
	lagged := fx.addFace(t, 0.9, unitVec(0.9))
	err := fx.stores.Faces.AssignFaces(ctx, []store.FaceAssignment{
		{FaceID: lagged.ID, PersonID: bob.ID, Score: 1},
	})
	if err != nil {
		t.Fatalf("AssignFaces failed: %v", err)
	}

	result, err := fx.engine.FindMore(ctx, alice.ID, SearchModeAuto)
	if err != nil {
		t.Fatalf("FindMore failed: %v", err)
	}
	if result.Created != 0 {
		t.Errorf("Lagged candidate must not get a suggestion, got %d created", result.Created)
	}
}

func TestFindMoreInvalidInput(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})

	if _, err := fx.engine.FindMore(ctx, alice.ID, SearchModeAuto); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Person without labeled faces must be rejected, got %v", err)
	}

	addLabeledFace(t, fx, alice.ID, xAxis)
	if _, err := fx.engine.FindMore(ctx, alice.ID, SearchMode("psychic")); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Unknown mode must be rejected, got %v", err)
	}

	if _, err := fx.engine.FindMore(ctx, 9999, SearchModeAuto); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Unknown person must be rejected, got %v", err)
	}
}

func TestPropagateRespectsLimit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	axes := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
	var ids []int64
	for i, axis := range axes {
		p := fx.persons.AddPerson(store.Person{Name: "Person " + strconv.Itoa(i)})
		addLabeledFace(t, fx, p.ID, axis)
		ids = append(ids, p.ID)
	}

	results, err := fx.engine.Propagate(ctx, ids)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if len(results) != store.DefaultPropagationLimit {
		t.Errorf("Expected fan-out capped at %d, got %d", store.DefaultPropagationLimit, len(results))
	}
}
