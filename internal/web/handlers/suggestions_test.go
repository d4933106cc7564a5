package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MacPhobos/image-search-sub004/internal/store"
)

var testVec = []float32{1, 0, 0, 0}

func TestSuggestionsList(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	bob := env.addPerson(t, "Bob")
	f1 := env.addFace(t, "img-1", testVec)
	f2 := env.addFace(t, "img-2", testVec)
	f3 := env.addFace(t, "img-3", testVec)
	env.addSuggestion(t, f1.ID, alice.ID, 0.8)
	env.addSuggestion(t, f2.ID, alice.ID, 0.75)
	env.addSuggestion(t, f3.ID, bob.ID, 0.72)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/suggestions", nil)
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Groups []suggestionGroupJSON `json:"groups"`
	}
	parseJSONResponse(t, recorder, &resp)

	if len(resp.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(resp.Groups))
	}
	// Groups are ordered by pending count descending.
	if resp.Groups[0].PersonID != alice.ID || resp.Groups[0].PendingCount != 2 {
		t.Errorf("expected Alice first with 2 pending, got person %d count %d",
			resp.Groups[0].PersonID, resp.Groups[0].PendingCount)
	}
	if resp.Groups[1].PersonID != bob.ID || len(resp.Groups[1].Suggestions) != 1 {
		t.Errorf("expected Bob with 1 suggestion, got person %d with %d",
			resp.Groups[1].PersonID, len(resp.Groups[1].Suggestions))
	}
}

func TestSuggestionsListPerGroupLimit(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	for i := 0; i < 5; i++ {
		f := env.addFace(t, "img", testVec)
		env.addSuggestion(t, f.ID, alice.ID, 0.8)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/suggestions?per_group=2", nil)
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Groups []suggestionGroupJSON `json:"groups"`
	}
	parseJSONResponse(t, recorder, &resp)

	if len(resp.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(resp.Groups))
	}
	if resp.Groups[0].PendingCount != 5 {
		t.Errorf("expected pending count 5, got %d", resp.Groups[0].PendingCount)
	}
	if len(resp.Groups[0].Suggestions) != 2 {
		t.Errorf("expected 2 suggestions in page, got %d", len(resp.Groups[0].Suggestions))
	}
}

func TestSuggestionAccept(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	face := env.addFace(t, "img-1", testVec)
	sugg := env.addSuggestion(t, face.ID, alice.ID, 0.8)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodPost, "/api/v1/suggestions/1/accept", nil),
		map[string]string{"id": itoa(sugg.ID)},
	)
	recorder := httptest.NewRecorder()
	h.Accept(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Suggestion suggestionJSON `json:"suggestion"`
		Warning    string         `json:"warning"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Suggestion.Status != string(store.SuggestionAccepted) {
		t.Errorf("expected accepted status, got %s", resp.Suggestion.Status)
	}
	if resp.Warning != "" {
		t.Errorf("unexpected warning: %s", resp.Warning)
	}

	got, err := env.stores.Faces.GetFace(context.Background(), face.ID)
	if err != nil {
		t.Fatalf("loading face: %v", err)
	}
	if got.PersonID == nil || *got.PersonID != alice.ID {
		t.Errorf("expected face assigned to %d, got %v", alice.ID, got.PersonID)
	}
}

func TestSuggestionAcceptUnknown(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodPost, "/api/v1/suggestions/9999/accept", nil),
		map[string]string{"id": "9999"},
	)
	recorder := httptest.NewRecorder()
	h.Accept(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestSuggestionAcceptInvalidID(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodPost, "/api/v1/suggestions/abc/accept", nil),
		map[string]string{"id": "abc"},
	)
	recorder := httptest.NewRecorder()
	h.Accept(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "invalid id")
}

func TestSuggestionReject(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	face := env.addFace(t, "img-1", testVec)
	sugg := env.addSuggestion(t, face.ID, alice.ID, 0.8)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodPost, "/api/v1/suggestions/1/reject", nil),
		map[string]string{"id": itoa(sugg.ID)},
	)
	recorder := httptest.NewRecorder()
	h.Reject(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	got, err := env.stores.Faces.GetFace(context.Background(), face.ID)
	if err != nil {
		t.Fatalf("loading face: %v", err)
	}
	if got.PersonID != nil {
		t.Errorf("rejected face must stay unassigned, got person %d", *got.PersonID)
	}

	// A second reject hits a terminal suggestion.
	recorder = httptest.NewRecorder()
	h.Reject(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestSuggestionsBulkIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	f1 := env.addFace(t, "img-1", testVec)
	f2 := env.addFace(t, "img-2", testVec)
	s1 := env.addSuggestion(t, f1.ID, alice.ID, 0.8)
	s2 := env.addSuggestion(t, f2.ID, alice.ID, 0.75)

	req := jsonRequest(t, http.MethodPost, "/api/v1/suggestions/bulk", BulkRequest{
		SuggestionIDs: []int64{s1.ID, 9999, s2.ID},
		Action:        "accept",
	})
	recorder := httptest.NewRecorder()
	h.Bulk(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Accepted int            `json:"accepted"`
		Failed   int            `json:"failed"`
		Items    []bulkItemJSON `json:"items"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Accepted != 2 || resp.Failed != 1 {
		t.Errorf("expected 2 accepted 1 failed, got %d/%d", resp.Accepted, resp.Failed)
	}
	if len(resp.Items) != 3 || resp.Items[1].Error == "" {
		t.Errorf("expected per-item errors, got %+v", resp.Items)
	}
}

func TestSuggestionsBulkPropagateRunsAsJob(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	f1 := env.addFace(t, "img-1", testVec)
	f2 := env.addFace(t, "img-2", testVec)
	s1 := env.addSuggestion(t, f1.ID, alice.ID, 0.85)
	s2 := env.addSuggestion(t, f2.ID, alice.ID, 0.8)
	// A similar unassigned face for propagation to discover.
	extra := env.addFace(t, "img-3", testVec)

	req := jsonRequest(t, http.MethodPost, "/api/v1/suggestions/bulk", BulkRequest{
		SuggestionIDs: []int64{s1.ID, s2.ID},
		Action:        "accept",
		Propagate:     true,
	})
	recorder := httptest.NewRecorder()
	h.Bulk(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Accepted         int    `json:"accepted"`
		PropagationJobID string `json:"propagation_job_id"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", resp.Accepted)
	}
	// The accept response returns immediately with a job handle; the
	// find-more fan-out runs detached from the request.
	if resp.PropagationJobID == "" {
		t.Fatal("expected a propagation job id in the bulk response")
	}

	job := waitForJob(t, env.jm, resp.PropagationJobID)
	if job.Kind != JobKindPropagate {
		t.Errorf("expected propagate job kind, got %s", job.Kind)
	}
	if job.GetStatus() != JobStatusCompleted {
		t.Fatalf("expected completed job, got %s (%s)", job.GetStatus(), job.Error)
	}

	pending, err := env.stores.Suggestions.ListPendingByFace(context.Background(), extra.ID)
	if err != nil {
		t.Fatalf("listing suggestions: %v", err)
	}
	if len(pending) != 1 || pending[0].PersonID != alice.ID {
		t.Errorf("expected propagation to suggest the similar face, got %+v", pending)
	}
}

func TestSuggestionsBulkValidation(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	req := jsonRequest(t, http.MethodPost, "/api/v1/suggestions/bulk", BulkRequest{
		SuggestionIDs: []int64{1},
		Action:        "maybe",
	})
	recorder := httptest.NewRecorder()
	h.Bulk(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)

	req = jsonRequest(t, http.MethodPost, "/api/v1/suggestions/bulk", BulkRequest{Action: "accept"})
	recorder = httptest.NewRecorder()
	h.Bulk(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "suggestion_ids is required")
}

func TestFaceUnassign(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	face := env.addFace(t, "img-1", testVec)
	err := env.stores.Faces.AssignFaces(context.Background(), []store.FaceAssignment{
		{FaceID: face.ID, PersonID: alice.ID, Score: 1},
	})
	if err != nil {
		t.Fatalf("assigning face: %v", err)
	}

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodPost, "/api/v1/faces/1/unassign", nil),
		map[string]string{"faceId": itoa(face.ID)},
	)
	recorder := httptest.NewRecorder()
	h.Unassign(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		PreviousPersonID int64 `json:"previous_person_id"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.PreviousPersonID != alice.ID {
		t.Errorf("expected previous person %d, got %d", alice.ID, resp.PreviousPersonID)
	}

	// Unassigning an unassigned face is not found.
	recorder = httptest.NewRecorder()
	h.Unassign(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestFaceHistory(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	alice := env.addPerson(t, "Alice")
	face := env.addFace(t, "img-1", testVec)
	sugg := env.addSuggestion(t, face.ID, alice.ID, 0.8)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodPost, "/api/v1/suggestions/1/accept", nil),
		map[string]string{"id": itoa(sugg.ID)},
	)
	h.Accept(httptest.NewRecorder(), req)

	req = requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/v1/faces/1/events", nil),
		map[string]string{"faceId": itoa(face.ID)},
	)
	recorder := httptest.NewRecorder()
	h.History(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Events []struct {
			Kind       string `json:"kind"`
			ToPersonID *int64 `json:"to_person_id"`
		} `json:"events"`
	}
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(resp.Events))
	}
	if resp.Events[0].Kind != string(store.EventAssign) {
		t.Errorf("expected assign event, got %s", resp.Events[0].Kind)
	}
	if resp.Events[0].ToPersonID == nil || *resp.Events[0].ToPersonID != alice.ID {
		t.Errorf("expected event to point at person %d", alice.ID)
	}
}

func TestFaceHistoryUnknownFace(t *testing.T) {
	env := newTestEnv(t)
	h := NewSuggestionsHandler(env.engine, env.stores, env.jm)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/v1/faces/9999/events", nil),
		map[string]string{"faceId": "9999"},
	)
	recorder := httptest.NewRecorder()
	h.History(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}
