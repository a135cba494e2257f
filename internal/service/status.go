// Package service implements the ingestion, query, and admin operations on
// top of the embedding chain and the namespace-scoped stores.
package service

import (
	"sync"
	"time"

	"github.com/veridianlabs/vectord/internal/tenant"
)

// JobState is the lifecycle state of an asynchronous ingestion job.
type JobState string

const (
	// JobRunning means the job has been accepted and is in flight.
	JobRunning JobState = "running"
	// JobCompleted means every document was stored.
	JobCompleted JobState = "completed"
	// JobFailed means the job ended with an error; no silent drops.
	JobFailed JobState = "failed"
)

// JobStatus is the observable record of one ingestion job.
type JobStatus struct {
	JobID       string           `json:"job_id"`
	Namespace   tenant.Namespace `json:"namespace"`
	State       JobState         `json:"state"`
	DocCount    int              `json:"doc_count"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
}

// StatusRecorder receives job state transitions. Every failure on an
// asynchronous path lands here; nothing is logged-and-forgotten.
type StatusRecorder interface {
	Record(status JobStatus)
}

// MemoryStatusRecorder keeps job statuses in memory, newest state wins.
type MemoryStatusRecorder struct {
	mu   sync.RWMutex
	jobs map[string]JobStatus
}

// NewMemoryStatusRecorder creates an empty recorder.
func NewMemoryStatusRecorder() *MemoryStatusRecorder {
	return &MemoryStatusRecorder{jobs: make(map[string]JobStatus)}
}

// Record stores the latest status for the job.
func (r *MemoryStatusRecorder) Record(status JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[status.JobID] = status
}

// Get returns the status for a job id.
func (r *MemoryStatusRecorder) Get(jobID string) (JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.jobs[jobID]
	return status, ok
}

// List returns all recorded statuses.
func (r *MemoryStatusRecorder) List() []JobStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]JobStatus, 0, len(r.jobs))
	for _, s := range r.jobs {
		out = append(out, s)
	}
	return out
}
