package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MacPhobos/image-search-sub004/internal/engine"
)

// RunsHandler triggers and tracks pipeline passes.
type RunsHandler struct {
	engine     *engine.Engine
	jobManager *JobManager
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(eng *engine.Engine, jm *JobManager) *RunsHandler {
	return &RunsHandler{
		engine:     eng,
		jobManager: jm,
	}
}

// RunRequest represents a pipeline run request.
type RunRequest struct {
	Mode        string   `json:"mode"`
	ImageScope  []string `json:"image_scope,omitempty"`
	Concurrency int      `json:"concurrency,omitempty"`
}

// Start starts a pipeline pass as a background job.
func (h *RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	mode := engine.RunMode(req.Mode)
	if mode == "" {
		mode = engine.ModeFull
	}
	if mode != engine.ModeAssign && mode != engine.ModeFull {
		respondError(w, http.StatusBadRequest, "mode must be \"assign\" or \"full\"")
		return
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID, JobKindRun)

	go h.runPipelineJob(job, engine.RunOptions{
		ImageScope:  req.ImageScope,
		Mode:        mode,
		Concurrency: req.Concurrency,
	})

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"mode":   string(mode),
		"status": string(JobStatusPending),
	})
}

// Status returns the status of a run job.
func (h *RunsHandler) Status(w http.ResponseWriter, r *http.Request) {
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

// Events streams run job events via SSE.
func (h *RunsHandler) Events(w http.ResponseWriter, r *http.Request) {
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

// Cancel cancels a run job.
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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

// runPipelineJob runs a pipeline pass in the background.
func (h *RunsHandler) runPipelineJob(job *EngineJob, opts engine.RunOptions) {
	ctx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel
	defer cancel()

	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Pipeline run started"})

	opts.OnProgress = func(info engine.ProgressInfo) {
		job.mu.Lock()
		job.Phase = info.Phase
		job.Processed = info.Current
		job.Total = info.Total
		if info.Total > 0 {
			job.Progress = int(float64(info.Current) / float64(info.Total) * 100)
			if job.Progress > 100 {
				job.Progress = 100
			}
		}
		job.mu.Unlock()
		job.SendEvent(JobEvent{
			Type: "progress",
			Data: map[string]any{
				"phase":   info.Phase,
				"current": info.Current,
				"total":   info.Total,
			},
		})
	}

	result, err := h.engine.Run(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			job.mu.Lock()
			job.Status = JobStatusCancelled
			job.mu.Unlock()
			job.SendEvent(JobEvent{Type: "cancelled", Message: "Job was cancelled"})
			return
		}
		job.fail(fmt.Sprintf("pipeline run failed: %v", err))
		return
	}

	job.complete(map[string]any{
		"processed":     result.Processed,
		"auto_assigned": result.AutoAssigned,
		"suggested":     result.Suggested,
		"clustered":     result.Clustered,
		"noise":         result.Noise,
		"failed":        result.Failed,
		"clusters":      len(result.Clusters),
	})
}
