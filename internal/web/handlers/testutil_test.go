package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
	"github.com/MacPhobos/image-search-sub004/internal/store"
	"github.com/MacPhobos/image-search-sub004/internal/store/mock"
	"github.com/MacPhobos/image-search-sub004/internal/vecstore"
)

// testEnv wires an engine over in-memory stores for handler tests.
type testEnv struct {
	stores  *store.Stores
	vectors *vecstore.HNSWStore
	engine  *engine.Engine
	jm      *JobManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	stores := mock.NewStores()
	vectors := vecstore.NewHNSWStore()
	return &testEnv{
		stores:  stores,
		vectors: vectors,
		engine:  engine.New(stores, vectors, log.New(io.Discard, "", 0)),
		jm:      NewJobManager(),
	}
}

// addPerson seeds an active person.
func (env *testEnv) addPerson(t *testing.T, name string) *store.Person {
	t.Helper()
	p, err := env.stores.Persons.CreatePerson(context.Background(), name)
	if err != nil {
		t.Fatalf("creating person %q: %v", name, err)
	}
	return p
}

// addFace seeds a face with its embedding in the faces namespace.
func (env *testEnv) addFace(t *testing.T, imageUID string, vector []float32) store.Face {
	t.Helper()
	f := env.stores.Faces.(*mock.MockFaceStore).AddFace(store.Face{
		ImageUID: imageUID,
		Quality:  0.9,
	})
	f.EmbeddingID = "face-" + strconv.FormatInt(f.ID, 10)
	f = env.stores.Faces.(*mock.MockFaceStore).AddFace(f)
	err := env.vectors.Upsert(context.Background(), vecstore.NamespaceFaces, []vecstore.Point{{
		ID:     f.EmbeddingID,
		Vector: vector,
		Payload: map[string]string{
			vecstore.PayloadFaceID:   strconv.FormatInt(f.ID, 10),
			vecstore.PayloadAssigned: "false",
		},
	}})
	if err != nil {
		t.Fatalf("upserting face vector: %v", err)
	}
	return f
}

// addSuggestion seeds a pending suggestion.
func (env *testEnv) addSuggestion(t *testing.T, faceID, personID int64, score float64) *store.FaceSuggestion {
	t.Helper()
	s, _, err := env.stores.Suggestions.CreateSuggestion(context.Background(), store.FaceSuggestion{
		FaceID:     faceID,
		PersonID:   personID,
		Score:      score,
		Confidence: score,
	})
	if err != nil {
		t.Fatalf("creating suggestion: %v", err)
	}
	return s
}

// itoa formats an id for URL parameters.
func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// jsonRequest creates a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// waitForJob polls a job until it reaches a terminal state.
func waitForJob(t *testing.T, jm *JobManager, id string) *EngineJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		job := jm.GetJob(id)
		if job == nil {
			t.Fatalf("job %s disappeared", id)
		}
		if isJobTerminal(job.GetStatus()) {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s did not finish, status %s", id, job.GetStatus())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
