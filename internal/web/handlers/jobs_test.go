package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJobsListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	h := NewJobsHandler(env.jm)

	done := env.jm.CreateJob("job-done", JobKindRun)
	done.complete(map[string]any{"processed": 0})
	running := env.jm.CreateJob("job-running", JobKindFindMore)
	running.Status = JobStatusRunning

	recorder := httptest.NewRecorder()
	h.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var listed struct {
		Jobs []EngineJob `json:"jobs"`
	}
	parseJSONResponse(t, recorder, &listed)
	if len(listed.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(listed.Jobs))
	}

	// A running job cannot be removed.
	recorder = httptest.NewRecorder()
	h.Delete(recorder, requestWithChiParams(
		httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/job-running", nil),
		map[string]string{"jobId": "job-running"},
	))
	assertStatusCode(t, recorder, http.StatusConflict)

	recorder = httptest.NewRecorder()
	h.Delete(recorder, requestWithChiParams(
		httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/job-done", nil),
		map[string]string{"jobId": "job-done"},
	))
	assertStatusCode(t, recorder, http.StatusOK)
	if env.jm.GetJob("job-done") != nil {
		t.Error("expected job-done to be removed")
	}
}

func TestJobsDeleteUnknown(t *testing.T) {
	env := newTestEnv(t)
	h := NewJobsHandler(env.jm)

	recorder := httptest.NewRecorder()
	h.Delete(recorder, requestWithChiParams(
		httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/nope", nil),
		map[string]string{"jobId": "nope"},
	))
	assertStatusCode(t, recorder, http.StatusNotFound)
}
