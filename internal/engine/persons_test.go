package engine

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

func TestMergePersons(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	duplicate := fx.addPersonWithAnchor(t, "Alicia", xAxis)
	survivor := fx.persons.AddPerson(store.Person{Name: "Alice"})

	moved1 := addLabeledFace(t, fx, duplicate.ID, xAxis)
	moved2 := addLabeledFace(t, fx, duplicate.ID, unitVec(0.95))
	kept := addLabeledFace(t, fx, survivor.ID, unitVec(0.9))

	// A pending suggestion targeting the duplicate must expire.
	pending := fx.addFace(t, 0.9, unitVec(0.8))
	seedSuggestion(t, fx, pending.ID, duplicate.ID, 0.8)

	result, err := fx.engine.MergePersons(ctx, duplicate.ID, survivor.ID)
	if err != nil {
		t.Fatalf("MergePersons failed: %v", err)
	}
	if result.MovedFaces != 2 {
		t.Errorf("Expected 2 moved faces, got %d", result.MovedFaces)
	}
	if result.ExpiredSuggestions != 1 {
		t.Errorf("Expected 1 expired suggestion, got %d", result.ExpiredSuggestions)
	}

	for _, f := range []store.Face{moved1, moved2, kept} {
		owner := assignedTo(t, fx, f.ID)
		if owner == nil || *owner != survivor.ID {
			t.Errorf("Face %d should belong to the survivor, got %v", f.ID, owner)
		}
	}

	merged, err := fx.stores.Persons.GetPerson(ctx, duplicate.ID)
	if err != nil {
		t.Fatalf("GetPerson failed: %v", err)
	}
	if merged.Status != store.PersonMerged || merged.MergedInto == nil || *merged.MergedInto != survivor.ID {
		t.Errorf("Duplicate should be marked merged into %d, got %+v", survivor.ID, merged)
	}

	// The duplicate's anchor points leave the index.
	var remaining int
	err = fx.vectors.Scroll(ctx, vecstore.NamespaceAnchors, vecstore.Filter{
		vecstore.PayloadPersonID: strconv.FormatInt(duplicate.ID, 10),
	}, func(p vecstore.Point) error {
		remaining++
		return nil
	})
	if err != nil {
		t.Fatalf("Scroll failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Expected duplicate's anchors removed, found %d", remaining)
	}

	events, _ := fx.stores.Events.ListEventsByFace(ctx, moved1.ID, 10)
	var sawMove bool
	for _, e := range events {
		if e.Kind == store.EventMove {
			sawMove = true
		}
	}
	if !sawMove {
		t.Error("Expected a move event for the merged faces")
	}

	// The survivor's centroid was refreshed over the combined face set.
	centroid, err := fx.stores.Centroids.LatestCentroid(ctx, survivor.ID)
	if err != nil {
		t.Fatalf("LatestCentroid failed: %v", err)
	}
	if centroid == nil || centroid.FaceCount != 3 {
		t.Errorf("Expected centroid over 3 faces, got %+v", centroid)
	}
}

func TestMergePersonsInvalidInput(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})
	old := fx.persons.AddPerson(store.Person{Name: "Old", Status: store.PersonMerged})

	if _, err := fx.engine.MergePersons(ctx, alice.ID, alice.ID); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Self-merge must fail, got %v", err)
	}
	if _, err := fx.engine.MergePersons(ctx, old.ID, alice.ID); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Merging an already-merged person must fail, got %v", err)
	}
	if _, err := fx.engine.MergePersons(ctx, alice.ID, old.ID); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Merging into a merged person must fail, got %v", err)
	}
	if _, err := fx.engine.MergePersons(ctx, alice.ID, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Unknown survivor must fail, got %v", err)
	}
}

func TestMergePersonsRepeatFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	duplicate := fx.persons.AddPerson(store.Person{Name: "Alicia"})
	survivor := fx.persons.AddPerson(store.Person{Name: "Alice"})
	addLabeledFace(t, fx, duplicate.ID, xAxis)

	if _, err := fx.engine.MergePersons(ctx, duplicate.ID, survivor.ID); err != nil {
		t.Fatalf("MergePersons failed: %v", err)
	}
	if _, err := fx.engine.MergePersons(ctx, duplicate.ID, survivor.ID); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Repeating a merge must fail, got %v", err)
	}
}
