package engine

import (
	"context"
	"strconv"
	"testing"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// scriptedHit makes the vector store report one anchor hit with an
// exact score, regardless of query vector.
func scriptedHit(fx *fixture, personID int64, score float64) {
	pid := personID
	fx.vectors.SearchFunc = func(namespace string, vector []float32, limit int, scoreThreshold float64, filter vecstore.Filter) ([]vecstore.ScoredPoint, error) {
		if score < scoreThreshold {
			return nil, nil
		}
		return []vecstore.ScoredPoint{{
			Point: vecstore.Point{
				ID: "proto-1",
				Payload: map[string]string{
					vecstore.PayloadKind:     vecstore.KindPrototype,
					vecstore.PayloadPersonID: strconv.FormatInt(pid, 10),
				},
			},
			Score: score,
		}}, nil
	}
}

func TestAssignBatchAboveAutoThreshold(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	face := fx.addFace(t, 0.9, xAxis)
	scriptedHit(fx, person.ID, 0.90)

	result, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings())
	if err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}
	if result.AutoAssigned != 1 || result.Suggested != 0 || result.Deferred != 0 {
		t.Errorf("Expected 1 auto-assigned, got %+v", result)
	}

	owner := assignedTo(t, fx, face.ID)
	if owner == nil || *owner != person.ID {
		t.Errorf("Expected face assigned to person %d, got %v", person.ID, owner)
	}

	// No suggestion rides along with an auto-assignment.
	pending, _ := fx.stores.Suggestions.ListPendingByFace(ctx, face.ID)
	if len(pending) != 0 {
		t.Errorf("Expected no suggestions, got %d", len(pending))
	}

	events, _ := fx.stores.Events.ListEventsByFace(ctx, face.ID, 10)
	if len(events) != 1 || events[0].Kind != store.EventAssign {
		t.Errorf("Expected one assign event, got %v", events)
	}
}

func TestAssignBatchExactAutoThreshold(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	face := fx.addFace(t, 0.9, xAxis)
	scriptedHit(fx, person.ID, store.DefaultAutoAssignThreshold)

	result, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings())
	if err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}
	if result.AutoAssigned != 1 {
		t.Errorf("Score exactly at the auto threshold must auto-assign, got %+v", result)
	}
}

func TestAssignBatchSuggestionBand(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	face := fx.addFace(t, 0.9, xAxis)
	scriptedHit(fx, person.ID, 0.75)

	result, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings())
	if err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}
	if result.Suggested != 1 || result.AutoAssigned != 0 {
		t.Errorf("Expected 1 suggested, got %+v", result)
	}

	if owner := assignedTo(t, fx, face.ID); owner != nil {
		t.Error("Suggested face must stay unassigned")
	}

	pending, _ := fx.stores.Suggestions.ListPendingByFace(ctx, face.ID)
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending suggestion, got %d", len(pending))
	}
	if pending[0].PersonID != person.ID || pending[0].Score != 0.75 {
		t.Errorf("Unexpected suggestion %+v", pending[0])
	}
}

func TestAssignBatchExactSuggestionThreshold(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	face := fx.addFace(t, 0.9, xAxis)
	scriptedHit(fx, person.ID, store.DefaultSuggestionThreshold)

	result, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings())
	if err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}
	if result.Suggested != 1 {
		t.Errorf("Score exactly at the suggestion threshold must suggest, got %+v", result)
	}
}

func TestAssignBatchBelowSuggestionThreshold(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	face := fx.addFace(t, 0.9, xAxis)
	scriptedHit(fx, person.ID, store.DefaultSuggestionThreshold-0.001)

	result, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings())
	if err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}
	if result.Deferred != 1 || result.Suggested != 0 || result.AutoAssigned != 0 {
		t.Errorf("Expected 1 deferred, got %+v", result)
	}

	pending, _ := fx.stores.Suggestions.ListPendingByFace(ctx, face.ID)
	if len(pending) != 0 {
		t.Errorf("Expected no suggestions below the band, got %d", len(pending))
	}
}

func TestAssignBatchIdempotentSuggestions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	face := fx.addFace(t, 0.9, xAxis)
	scriptedHit(fx, person.ID, 0.75)

	for run := 0; run < 2; run++ {
		if _, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings()); err != nil {
			t.Fatalf("AssignBatch run %d failed: %v", run, err)
		}
	}

	pending, _ := fx.stores.Suggestions.ListPendingByFace(ctx, face.ID)
	if len(pending) != 1 {
		t.Errorf("Two runs must leave exactly one pending suggestion, got %d", len(pending))
	}
}

func TestAssignBatchExpiresSuggestionsOnAutoAssign(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	alice := fx.persons.AddPerson(store.Person{Name: "Alice"})
	bob := fx.persons.AddPerson(store.Person{Name: "Bob"})
	face := fx.addFace(t, 0.9, xAxis)

	// An older pending suggestion for Bob exists; auto-assigning to
	// Alice must expire it.
	if _, _, err := fx.stores.Suggestions.CreateSuggestion(ctx, store.FaceSuggestion{
		FaceID: face.ID, PersonID: bob.ID, Score: 0.72, Confidence: 0.72,
	}); err != nil {
		t.Fatalf("seed suggestion: %v", err)
	}

	scriptedHit(fx, alice.ID, 0.95)
	if _, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings()); err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}

	pending, _ := fx.stores.Suggestions.ListPendingByFace(ctx, face.ID)
	if len(pending) != 0 {
		t.Errorf("Expected stale suggestions expired, got %d pending", len(pending))
	}
}

func TestAssignBatchSingleVectorRoundTrip(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	faces := []store.Face{
		fx.addFace(t, 0.9, xAxis),
		fx.addFace(t, 0.9, xAxis),
		fx.addFace(t, 0.9, xAxis),
	}
	scriptedHit(fx, person.ID, 0.95)

	result, err := fx.engine.AssignBatch(ctx, faces, store.DefaultSettings())
	if err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}
	if result.AutoAssigned != 3 {
		t.Fatalf("Expected 3 auto-assigned, got %+v", result)
	}

	// The payload push for a whole batch is one round-trip, not one
	// call per face.
	if fx.vectors.UpdatePayloadsCalls != 1 {
		t.Errorf("Expected 1 batched payload update, got %d", fx.vectors.UpdatePayloadsCalls)
	}
	if fx.vectors.UpdatePayloadCalls != 0 {
		t.Errorf("Expected no per-face payload updates, got %d", fx.vectors.UpdatePayloadCalls)
	}

	for _, face := range faces {
		p := fx.vectors.ns(vecstore.NamespaceFaces)[face.EmbeddingID]
		if p.Payload[vecstore.PayloadAssigned] != "true" {
			t.Errorf("Face %d payload not marked assigned: %v", face.ID, p.Payload)
		}
	}
}

func TestAssignBatchFailedEmbedding(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	face := fx.faces.AddFace(store.Face{Quality: 0.9, EmbeddingID: "missing"})

	result, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings())
	if err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("Face without embedding must be reported failed, got %+v", result)
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Err == nil {
		t.Errorf("Failed outcome must carry the error, got %+v", result.Outcomes)
	}
}

func TestAssignBatchMultiPrototypeCorroboration(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	person := fx.persons.AddPerson(store.Person{Name: "Alice"})
	face := fx.addFace(t, 0.9, xAxis)

	fx.vectors.SearchFunc = func(namespace string, vector []float32, limit int, scoreThreshold float64, filter vecstore.Filter) ([]vecstore.ScoredPoint, error) {
		payload := map[string]string{
			vecstore.PayloadKind:     vecstore.KindPrototype,
			vecstore.PayloadPersonID: strconv.FormatInt(person.ID, 10),
		}
		return []vecstore.ScoredPoint{
			{Point: vecstore.Point{ID: "proto-1", Payload: payload}, Score: 0.78},
			{Point: vecstore.Point{ID: "proto-2", Payload: payload}, Score: 0.74},
		}, nil
	}

	if _, err := fx.engine.AssignBatch(ctx, []store.Face{face}, store.DefaultSettings()); err != nil {
		t.Fatalf("AssignBatch failed: %v", err)
	}

	pending, _ := fx.stores.Suggestions.ListPendingByFace(ctx, face.ID)
	if len(pending) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(pending))
	}
	if len(pending[0].PrototypeScores) != 2 {
		t.Errorf("Expected per-prototype scores for both anchors, got %v", pending[0].PrototypeScores)
	}
	if pending[0].Score != 0.78 {
		t.Errorf("Expected best score 0.78, got %f", pending[0].Score)
	}
}
