package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// FindMoreHandler triggers find-more searches as background jobs.
type FindMoreHandler struct {
	engine     *engine.Engine
	stores     *store.Stores
	jobManager *JobManager
}

// NewFindMoreHandler creates a new find-more handler.
func NewFindMoreHandler(eng *engine.Engine, stores *store.Stores, jm *JobManager) *FindMoreHandler {
	return &FindMoreHandler{
		engine:     eng,
		stores:     stores,
		jobManager: jm,
	}
}

// FindMoreRequest represents a find-more start request.
type FindMoreRequest struct {
	PersonID int64  `json:"person_id"`
	Mode     string `json:"mode,omitempty"`
}

// Start starts a find-more search for a person.
func (h *FindMoreHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req FindMoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.PersonID <= 0 {
		respondError(w, http.StatusBadRequest, "person_id is required")
		return
	}

	mode := engine.SearchMode(req.Mode)
	if mode == "" {
		mode = engine.SearchModeAuto
	}
	switch mode {
	case engine.SearchModeAuto, engine.SearchModePrototype, engine.SearchModeCentroid:
	default:
		respondError(w, http.StatusBadRequest, "mode must be \"auto\", \"prototype\" or \"centroid\"")
		return
	}

	// Fail fast on unknown persons before spawning a job.
	if _, err := h.stores.Persons.GetPerson(r.Context(), req.PersonID); err != nil {
		respondStoreError(w, err)
		return
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID, JobKindFindMore)

	go h.runFindMoreJob(job, req.PersonID, mode)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id":    jobID,
		"person_id": req.PersonID,
		"mode":      string(mode),
		"status":    string(JobStatusPending),
	})
}

// Status returns the status of a find-more job.
func (h *FindMoreHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// Events streams find-more job events via SSE.
func (h *FindMoreHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job
		},
	)
}

// Cancel cancels a find-more job.
func (h *FindMoreHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// runFindMoreJob runs a find-more search in the background.
func (h *FindMoreHandler) runFindMoreJob(job *EngineJob, personID int64, mode engine.SearchMode) {
	ctx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel
	defer cancel()

	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Find-more search started"})

	result, err := h.engine.FindMore(ctx, personID, mode)
	if err != nil && !store.IsDesync(err) {
		if errors.Is(ctx.Err(), context.Canceled) {
			job.mu.Lock()
			job.Status = JobStatusCancelled
			job.mu.Unlock()
			job.SendEvent(JobEvent{Type: "cancelled", Message: "Job was cancelled"})
			return
		}
		job.fail(fmt.Sprintf("find-more failed: %v", err))
		return
	}

	job.complete(map[string]any{
		"person_id":  result.PersonID,
		"mode":       string(result.Mode),
		"anchors":    result.Anchors,
		"candidates": result.Candidates,
		"created":    result.Created,
	})
}
