package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobKind identifies which long-running operation a job executes.
type JobKind string

// Job kinds.
const (
	JobKindRun       JobKind = "run"       // pipeline pass (assign / full)
	JobKindFindMore  JobKind = "find_more" // find-more search for a person
	JobKindPropagate JobKind = "propagate" // find-more fan-out after bulk accept
)

// eventChannelBuffer is the per-listener event buffer; slow SSE
// consumers drop events rather than block the job.
const eventChannelBuffer = 64

// EngineJob represents an async engine job: a pipeline run, a
// find-more search, or a propagation fan-out.
type EngineJob struct {
	EventBroadcaster

	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Phase       string     `json:"phase,omitempty"`
	Processed   int        `json:"processed"`
	Total       int        `json:"total"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *EngineJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Cancel cancels the job.
func (j *EngineJob) Cancel() {
	j.EventBroadcaster.Cancel()
	j.mu.Lock()
	j.Status = JobStatusCancelled
	j.mu.Unlock()
}

// complete marks the job completed and publishes the result.
func (j *EngineJob) complete(result any) {
	now := time.Now()
	j.mu.Lock()
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Result = result
	j.CompletedAt = &now
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "completed", Data: result})
}

// fail marks the job failed with a message.
func (j *EngineJob) fail(message string) {
	now := time.Now()
	j.mu.Lock()
	j.Status = JobStatusFailed
	j.Error = message
	j.CompletedAt = &now
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "error", Message: message})
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, eventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	if b.cancel != nil {
		b.cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async engine jobs.
type JobManager struct {
	jobs map[string]*EngineJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*EngineJob),
	}
}

// CreateJob creates a new engine job.
func (m *JobManager) CreateJob(id string, kind JobKind) *EngineJob {
	job := &EngineJob{
		ID:        id,
		Kind:      kind,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *EngineJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*EngineJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*EngineJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// JobsHandler exposes the job registry: listing recent jobs and
// removing finished ones.
type JobsHandler struct {
	jobManager *JobManager
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(jm *JobManager) *JobsHandler {
	return &JobsHandler{jobManager: jm}
}

// List handles GET /api/v1/jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Delete handles DELETE /api/v1/jobs/{jobId}. Only terminal jobs can
// be removed; cancel a running job through its own endpoint first.
func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if !isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "job is still running")
		return
	}
	h.jobManager.DeleteJob(jobID)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": jobID})
}
