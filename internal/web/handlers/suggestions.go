package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
	"github.com/MacPhobos/image-search-sub004/internal/store"
)

// SuggestionsHandler handles the suggestion review surface.
type SuggestionsHandler struct {
	engine     *engine.Engine
	stores     *store.Stores
	jobManager *JobManager
}

// NewSuggestionsHandler creates a new suggestions handler.
func NewSuggestionsHandler(eng *engine.Engine, stores *store.Stores, jm *JobManager) *SuggestionsHandler {
	return &SuggestionsHandler{
		engine:     eng,
		stores:     stores,
		jobManager: jm,
	}
}

// suggestionJSON is the wire shape of a face suggestion.
type suggestionJSON struct {
	ID         int64      `json:"id"`
	FaceID     int64      `json:"face_id"`
	PersonID   int64      `json:"person_id"`
	Score      float64    `json:"score"`
	Confidence float64    `json:"confidence"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func toSuggestionJSON(s store.FaceSuggestion) suggestionJSON {
	return suggestionJSON{
		ID:         s.ID,
		FaceID:     s.FaceID,
		PersonID:   s.PersonID,
		Score:      s.Score,
		Confidence: s.Confidence,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
		ResolvedAt: s.ResolvedAt,
	}
}

// suggestionGroupJSON is one person bucket of the grouped listing.
type suggestionGroupJSON struct {
	PersonID     int64            `json:"person_id"`
	PersonName   string           `json:"person_name"`
	PendingCount int              `json:"pending_count"`
	Suggestions  []suggestionJSON `json:"suggestions"`
}

// List returns pending suggestions grouped by person. Pagination is
// two-dimensional: groups selects person buckets, per_group bounds the
// suggestions shown inside each bucket.
func (h *SuggestionsHandler) List(w http.ResponseWriter, r *http.Request) {
	groupLimit := queryInt(r, "groups", 10)
	groupOffset := queryInt(r, "group_offset", 0)
	perGroup := queryInt(r, "per_group", 20)

	groups, err := h.engine.ListSuggestions(r.Context(), groupLimit, groupOffset, perGroup)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	out := make([]suggestionGroupJSON, 0, len(groups))
	for _, g := range groups {
		gj := suggestionGroupJSON{
			PersonID:     g.Person.ID,
			PersonName:   g.Person.Name,
			PendingCount: g.PendingCount,
			Suggestions:  make([]suggestionJSON, 0, len(g.Suggestions)),
		}
		for _, s := range g.Suggestions {
			gj.Suggestions = append(gj.Suggestions, toSuggestionJSON(s))
		}
		out = append(out, gj)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"groups":       out,
		"group_offset": groupOffset,
	})
}

// Accept accepts a suggestion and assigns the face. A vector-store
// desync does not fail the request: the assignment is committed, the
// response carries a warning instead.
func (h *SuggestionsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted, err := h.engine.Accept(r.Context(), id)
	if err != nil && !store.IsDesync(err) {
		respondStoreError(w, err)
		return
	}

	resp := map[string]any{"suggestion": toSuggestionJSON(*accepted)}
	if err != nil {
		resp["warning"] = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Reject rejects a suggestion, leaving the face unassigned.
func (h *SuggestionsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Reject(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"rejected": true})
}

// BulkRequest represents a bulk suggestion action.
type BulkRequest struct {
	SuggestionIDs []int64 `json:"suggestion_ids"`
	Action        string  `json:"action"` // "accept" or "reject"
	// Propagate triggers find-more for the accepted persons.
	Propagate bool `json:"propagate,omitempty"`
}

// bulkItemJSON is the wire shape of one bulk item outcome.
type bulkItemJSON struct {
	SuggestionID int64  `json:"suggestion_id"`
	Error        string `json:"error,omitempty"`
}

// Bulk accepts or rejects many suggestions. Item failures are reported
// individually and never abort siblings.
func (h *SuggestionsHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.SuggestionIDs) == 0 {
		respondError(w, http.StatusBadRequest, "suggestion_ids is required")
		return
	}
	if req.Action != "accept" && req.Action != "reject" {
		respondError(w, http.StatusBadRequest, "action must be \"accept\" or \"reject\"")
		return
	}

	result := h.engine.BulkResolve(r.Context(), req.SuggestionIDs, req.Action == "accept")

	items := make([]bulkItemJSON, 0, len(result.Items))
	for _, item := range result.Items {
		ij := bulkItemJSON{SuggestionID: item.SuggestionID}
		if item.Err != nil {
			ij.Error = item.Err.Error()
		}
		items = append(items, ij)
	}

	resp := map[string]any{
		"accepted": result.Accepted,
		"rejected": result.Rejected,
		"failed":   result.Failed,
		"items":    items,
	}

	// Propagation is a detached job: the accept response does not wait
	// for the find-more fan-out, and the job can be cancelled on its own.
	if req.Propagate && len(result.TouchedPersons) > 0 {
		jobID := uuid.New().String()
		job := h.jobManager.CreateJob(jobID, JobKindPropagate)
		go h.runPropagateJob(job, result.TouchedPersons)
		resp["propagation_job_id"] = jobID
	}

	respondJSON(w, http.StatusOK, resp)
}

// runPropagateJob runs the post-accept find-more fan-out in the
// background.
func (h *SuggestionsHandler) runPropagateJob(job *EngineJob, personIDs []int64) {
	ctx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel
	defer cancel()

	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Propagation started"})

	results, err := h.engine.Propagate(ctx, personIDs)
	if err != nil && !store.IsDesync(err) {
		if errors.Is(ctx.Err(), context.Canceled) {
			job.mu.Lock()
			job.Status = JobStatusCancelled
			job.mu.Unlock()
			job.SendEvent(JobEvent{Type: "cancelled", Message: "Job was cancelled"})
			return
		}
		job.fail(fmt.Sprintf("propagation failed: %v", err))
		return
	}

	created := 0
	for _, r := range results {
		created += r.Created
	}
	job.complete(map[string]any{
		"persons": len(results),
		"created": created,
	})
}

// PropagationStatus returns the status of a propagation job.
func (h *SuggestionsHandler) PropagationStatus(w http.ResponseWriter, r *http.Request) {
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

// PropagationEvents streams propagation job events via SSE.
func (h *SuggestionsHandler) PropagationEvents(w http.ResponseWriter, r *http.Request) {
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

// PropagationCancel cancels a propagation job.
func (h *SuggestionsHandler) PropagationCancel(w http.ResponseWriter, r *http.Request) {
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

// Unassign removes a face's person assignment and restores clustering
// eligibility.
func (h *SuggestionsHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	faceID, err := pathID(r, "faceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	previous, err := h.engine.Unassign(r.Context(), faceID)
	if err != nil && !store.IsDesync(err) {
		respondStoreError(w, err)
		return
	}

	resp := map[string]any{
		"face_id":            faceID,
		"previous_person_id": previous,
	}
	if err != nil {
		resp["warning"] = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// eventJSON is the wire shape of one audit-trail entry.
type eventJSON struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	FaceIDs      []int64   `json:"face_ids"`
	FromPersonID *int64    `json:"from_person_id,omitempty"`
	ToPersonID   *int64    `json:"to_person_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// History handles GET /api/v1/faces/{faceId}/events: the newest
// assignment events touching a face.
func (h *SuggestionsHandler) History(w http.ResponseWriter, r *http.Request) {
	faceID, err := pathID(r, "faceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.stores.Faces.GetFace(r.Context(), faceID); err != nil {
		respondStoreError(w, err)
		return
	}

	limit := queryInt(r, "limit", 20)
	events, err := h.stores.Events.ListEventsByFace(r.Context(), faceID, limit)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	out := make([]eventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON{
			ID:           e.ID,
			Kind:         string(e.Kind),
			FaceIDs:      e.FaceIDs,
			FromPersonID: e.FromPersonID,
			ToPersonID:   e.ToPersonID,
			CreatedAt:    e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"face_id": faceID, "events": out})
}
