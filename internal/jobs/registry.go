package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"document-processor/internal/helper"
	"document-processor/internal/processor"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrInvalidState = errors.New("invalid job state")
)

type Status string

const (
	StatusQueued        Status = "queued"
	StatusPreprocessing Status = "preprocessing"
	StatusEstimating    Status = "estimating"
	StatusProcessing    Status = "processing"
	StatusPaused        Status = "paused"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusFailed        Status = "failed"
)

// Active reports whether a job in this status still has a running goroutine.
func (s Status) Active() bool {
	switch s {
	case StatusQueued, StatusPreprocessing, StatusEstimating, StatusProcessing:
		return true
	}
	return false
}

// Job is one submitted file. Exported fields are only touched under mu, which
// Registry.Update holds while the callback runs.
type Job struct {
	mu sync.Mutex

	ID              string
	FileName        string
	FilePath        string
	Status          Status
	Message         string
	ProcessedChunks int
	TotalChunks     int
	EstimatedCost   float64
	TotalCost       float64
	Model           string
	Error           string
	ResultPath      string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	req       SubmitRequest
	pause     *processor.Pause
	cancel    func()
	cancelled bool
}

// Snapshot is a point-in-time copy of a job for status callers.
type Snapshot struct {
	JobID           string    `json:"job_id"`
	FileName        string    `json:"file_name"`
	Status          Status    `json:"status"`
	Message         string    `json:"message"`
	Progress        float64   `json:"progress"`
	ProcessedChunks int       `json:"processed_chunks"`
	TotalChunks     int       `json:"total_chunks"`
	EstimatedCost   float64   `json:"estimated_cost"`
	TotalCost       float64   `json:"total_cost"`
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Error           string    `json:"error,omitempty"`
}

// caller holds j.mu
func (j *Job) snapshot() Snapshot {
	progress := 0.0
	if j.TotalChunks > 0 {
		progress = float64(j.ProcessedChunks) / float64(j.TotalChunks)
	} else if j.Status == StatusCompleted {
		progress = 1
	}
	return Snapshot{
		JobID:           j.ID,
		FileName:        j.FileName,
		Status:          j.Status,
		Message:         j.Message,
		Progress:        progress,
		ProcessedChunks: j.ProcessedChunks,
		TotalChunks:     j.TotalChunks,
		EstimatedCost:   j.EstimatedCost,
		TotalCost:       j.TotalCost,
		Model:           j.Model,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		Error:           j.Error,
	}
}

// Registry maps job ids to jobs.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a queued job for req.
func (r *Registry) Create(req SubmitRequest) (*Job, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job := &Job{
		ID:        id,
		FileName:  req.FileName,
		FilePath:  req.FilePath,
		Status:    StatusQueued,
		Message:   "Queued",
		Model:     req.Model,
		CreatedAt: now,
		UpdatedAt: now,
		req:       req,
		pause:     &processor.Pause{},
	}

	r.mu.Lock()
	r.jobs[id] = job
	r.mu.Unlock()
	return job, nil
}

func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// Update runs fn with the job locked and stamps UpdatedAt.
func (r *Registry) Update(id string, fn func(*Job) error) error {
	job, err := r.Get(id)
	if err != nil {
		return err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	if err := fn(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Registry) Snapshot(id string) (Snapshot, error) {
	job, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.snapshot(), nil
}

// List returns snapshots of every job, newest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		j.mu.Lock()
		out = append(out, j.snapshot())
		j.mu.Unlock()
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].JobID < out[b].JobID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}
