package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// labelFace assigns a face relationally and marks its payload assigned,
// the state an accepted or auto-assigned face ends up in.
func labelFace(t *testing.T, env *testEnv, face store.Face, personID int64) {
	t.Helper()
	err := env.stores.Faces.AssignFaces(context.Background(), []store.FaceAssignment{
		{FaceID: face.ID, PersonID: personID, Score: 1},
	})
	if err != nil {
		t.Fatalf("assigning face %d: %v", face.ID, err)
	}
	err = env.vectors.UpdatePayload(context.Background(), vecstore.NamespaceFaces, face.EmbeddingID, map[string]string{
		vecstore.PayloadAssigned: "true",
		vecstore.PayloadPersonID: strconv.FormatInt(personID, 10),
	})
	if err != nil {
		t.Fatalf("updating payload for face %d: %v", face.ID, err)
	}
}

func TestFindMoreStartCompletes(t *testing.T) {
	env := newTestEnv(t)
	h := NewFindMoreHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	labeled := env.addFace(t, "img-1", []float32{1, 0, 0, 0})
	labelFace(t, env, labeled, alice.ID)
	// A near-identical unassigned face to be suggested.
	env.addFace(t, "img-2", []float32{0.99, 0.14, 0, 0})

	req := jsonRequest(t, http.MethodPost, "/api/v1/findmore", FindMoreRequest{PersonID: alice.ID})
	recorder := httptest.NewRecorder()
	h.Start(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)
	var started map[string]any
	parseJSONResponse(t, recorder, &started)
	jobID, _ := started["job_id"].(string)
	if jobID == "" {
		t.Fatal("expected a job_id")
	}

	job := waitForJob(t, env.jm, jobID)
	if job.GetStatus() != JobStatusCompleted {
		t.Fatalf("expected completed job, got %s (%s)", job.GetStatus(), job.Error)
	}

	result, ok := job.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", job.Result)
	}
	if result["mode"] != "prototype" {
		t.Errorf("expected prototype mode, got %v", result["mode"])
	}
	if result["created"] != 1 {
		t.Errorf("expected 1 created suggestion, got %v", result["created"])
	}

	pending, err := env.stores.Suggestions.ListPendingByPerson(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("listing suggestions: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending suggestion, got %d", len(pending))
	}
}

func TestFindMoreStartUnknownPerson(t *testing.T) {
	env := newTestEnv(t)
	h := NewFindMoreHandler(env.engine, env.stores, env.jm)

	req := jsonRequest(t, http.MethodPost, "/api/v1/findmore", FindMoreRequest{PersonID: 9999})
	recorder := httptest.NewRecorder()
	h.Start(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestFindMoreStartInvalidMode(t *testing.T) {
	env := newTestEnv(t)
	h := NewFindMoreHandler(env.engine, env.stores, env.jm)
	alice := env.addPerson(t, "Alice")

	req := jsonRequest(t, http.MethodPost, "/api/v1/findmore", FindMoreRequest{
		PersonID: alice.ID,
		Mode:     "psychic",
	})
	recorder := httptest.NewRecorder()
	h.Start(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestFindMoreStartMissingPersonID(t *testing.T) {
	env := newTestEnv(t)
	h := NewFindMoreHandler(env.engine, env.stores, env.jm)

	req := jsonRequest(t, http.MethodPost, "/api/v1/findmore", FindMoreRequest{})
	recorder := httptest.NewRecorder()
	h.Start(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "person_id is required")
}

func TestFindMoreJobFailsWithoutLabeledFaces(t *testing.T) {
	env := newTestEnv(t)
	h := NewFindMoreHandler(env.engine, env.stores, env.jm)
	alice := env.addPerson(t, "Alice")

	req := jsonRequest(t, http.MethodPost, "/api/v1/findmore", FindMoreRequest{PersonID: alice.ID})
	recorder := httptest.NewRecorder()
	h.Start(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)
	var started map[string]any
	parseJSONResponse(t, recorder, &started)
	jobID, _ := started["job_id"].(string)

	job := waitForJob(t, env.jm, jobID)
	if job.GetStatus() != JobStatusFailed {
		t.Fatalf("expected failed job, got %s", job.GetStatus())
	}
	if job.Error == "" {
		t.Error("expected an error message on the failed job")
	}
}
