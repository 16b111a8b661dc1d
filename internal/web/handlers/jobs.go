package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-finder/internal/backfill"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobState is the JSON view of a backfill job.
type JobState struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	Total       int             `json:"total"`
	Result      backfill.Result `json:"result"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// BackfillJob tracks one asynchronous backfill run.
type BackfillJob struct {
	ID string

	mu     sync.RWMutex
	state  JobState
	cancel context.CancelFunc
}

// Snapshot returns the current state.
func (j *BackfillJob) Snapshot() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *BackfillJob) setRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state.Status = JobStatusRunning
}

func (j *BackfillJob) progress(r backfill.Result, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state.Total = total
	if r.Processed > j.state.Result.Processed {
		j.state.Result = r
	}
}

func (j *BackfillJob) finish(r backfill.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.state.CompletedAt = &now
	j.state.Result = r
	if err != nil {
		j.state.Status = JobStatusFailed
		j.state.Error = err.Error()
		return
	}
	j.state.Status = JobStatusCompleted
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*BackfillJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*BackfillJob),
	}
}

// StartIfIdle registers a pending job unless one is still pending or
// running. The check and the registration happen under one lock. When a job
// is already active it is returned as the second value and no job is created.
func (m *JobManager) StartIfIdle(cancel context.CancelFunc) (started, active *BackfillJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job := m.activeLocked(); job != nil {
		return nil, job
	}
	job := newBackfillJob(cancel)
	m.jobs[job.ID] = job
	return job, nil
}

func newBackfillJob(cancel context.CancelFunc) *BackfillJob {
	id := uuid.NewString()
	return &BackfillJob{
		ID: id,
		state: JobState{
			ID:        id,
			Status:    JobStatusPending,
			StartedAt: time.Now(),
		},
		cancel: cancel,
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *BackfillJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// activeLocked returns a job that has not finished, if any. m.mu must be held.
func (m *JobManager) activeLocked() *BackfillJob {
	for _, job := range m.jobs {
		if s := job.Snapshot().Status; s == JobStatusPending || s == JobStatusRunning {
			return job
		}
	}
	return nil
}

// CancelAll stops every running job.
func (m *JobManager) CancelAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if job.cancel != nil {
			job.cancel()
		}
	}
}
