package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ImportJobStatus represents the status of an import job.
type ImportJobStatus string

const (
	JobStatusQueued     ImportJobStatus = "queued"
	JobStatusProcessing ImportJobStatus = "processing"
	JobStatusCompleted  ImportJobStatus = "completed"
	JobStatusFailed     ImportJobStatus = "failed"
)

// maxRowErrors caps the row errors kept per job.
const maxRowErrors = 100

// ImportRequest describes a file of translation pairs to load into the memory.
type ImportRequest struct {
	// Name identifies the source, usually a file name.
	Name string `json:"name"`
	// Format is "csv" or "yaml".
	Format string `json:"format"`
	// Content is the file body.
	Content string `json:"content"`
	// SourceLanguage and TargetLanguage apply to rows that leave them empty.
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// RowError records a row that could not be stored.
type RowError struct {
	Row   int    `json:"row"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// ImportJob is an asynchronous import.
type ImportJob struct {
	ID          string
	Name        string
	Format      string
	Status      ImportJobStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string

	// Row counters
	Total     int
	Processed int
	Inserted  int
	Updated   int
	Failed    int
	RowErrors []RowError

	// Progress tracking
	ProgressPercent int32
	ProgressMessage string

	request ImportRequest

	// Mutex for thread-safe access
	mu sync.RWMutex
}

// JobSnapshot is a consistent copy of an ImportJob for reporting.
type JobSnapshot struct {
	ID              string          `json:"jobId"`
	Name            string          `json:"name"`
	Format          string          `json:"format"`
	Status          ImportJobStatus `json:"status"`
	ProgressPercent int32           `json:"progressPercent"`
	ProgressMessage string          `json:"progressMessage"`
	Total           int             `json:"total"`
	Processed       int             `json:"processed"`
	Inserted        int             `json:"inserted"`
	Updated         int             `json:"updated"`
	Failed          int             `json:"failed"`
	RowErrors       []RowError      `json:"rowErrors,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
}

// Done reports whether the job reached a final state.
func (s JobSnapshot) Done() bool {
	return s.Status == JobStatusCompleted || s.Status == JobStatusFailed
}

// JobQueue tracks import jobs and hands new ones to the processor.
type JobQueue struct {
	jobs      map[string]*ImportJob
	jobsMu    sync.RWMutex
	logger    *logrus.Logger
	processor *JobProcessor
}

// NewJobQueue creates a new job queue.
func NewJobQueue(logger *logrus.Logger) *JobQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &JobQueue{
		jobs:   make(map[string]*ImportJob),
		logger: logger,
	}
}

// SetProcessor sets the job processor for this queue.
func (q *JobQueue) SetProcessor(processor *JobProcessor) {
	q.processor = processor
}

// NewJob creates a job for req without starting it.
func NewJob(req ImportRequest) *ImportJob {
	return &ImportJob{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Format:    req.Format,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
		request:   req,
	}
}

// CreateJob registers a job for req, starts processing it in the background
// and returns its ID.
func (q *JobQueue) CreateJob(req ImportRequest) (string, error) {
	if _, err := ParseFormat(req.Format, req.Name); err != nil {
		return "", err
	}
	job := NewJob(req)

	q.jobsMu.Lock()
	q.jobs[job.ID] = job
	q.jobsMu.Unlock()
	importJobsTotal.WithLabelValues(string(JobStatusQueued)).Inc()

	q.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"name":   req.Name,
		"format": req.Format,
	}).Info("Created import job")

	if q.processor != nil {
		go q.processor.ProcessJob(job)
	}
	return job.ID, nil
}

// GetJob retrieves a job by ID.
func (q *JobQueue) GetJob(jobID string) (*ImportJob, error) {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// UpdateStatus updates the status of a job.
func (j *ImportJob) UpdateStatus(status ImportJobStatus, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.Status = status
	j.ProgressMessage = message

	now := time.Now()
	switch status {
	case JobStatusProcessing:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case JobStatusCompleted, JobStatusFailed:
		if j.CompletedAt == nil {
			j.CompletedAt = &now
		}
	}
}

// SetTotal records how many rows the job will process.
func (j *ImportJob) SetTotal(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Total = total
}

// RecordRow counts one processed row and updates the progress.
func (j *ImportJob) RecordRow(inserted, updated int, rowErr *RowError) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.Processed++
	j.Inserted += inserted
	j.Updated += updated
	if rowErr != nil {
		j.Failed++
		if len(j.RowErrors) < maxRowErrors {
			j.RowErrors = append(j.RowErrors, *rowErr)
		}
	}
	if j.Total > 0 {
		j.ProgressPercent = int32(j.Processed * 100 / j.Total)
	}
	j.ProgressMessage = fmt.Sprintf("Imported %d/%d rows", j.Processed, j.Total)
}

// SetError marks the job failed.
func (j *ImportJob) SetError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.Error = err.Error()
	j.Status = JobStatusFailed
	now := time.Now()
	j.CompletedAt = &now
}

// Complete marks the job completed.
func (j *ImportJob) Complete() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.Status = JobStatusCompleted
	now := time.Now()
	j.CompletedAt = &now
	j.ProgressPercent = 100
	j.ProgressMessage = fmt.Sprintf("Imported %d rows (%d failed)", j.Processed, j.Failed)
}

// Snapshot returns a copy of the job state (thread-safe).
func (j *ImportJob) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return JobSnapshot{
		ID:              j.ID,
		Name:            j.Name,
		Format:          j.Format,
		Status:          j.Status,
		ProgressPercent: j.ProgressPercent,
		ProgressMessage: j.ProgressMessage,
		Total:           j.Total,
		Processed:       j.Processed,
		Inserted:        j.Inserted,
		Updated:         j.Updated,
		Failed:          j.Failed,
		RowErrors:       append([]RowError(nil), j.RowErrors...),
		Error:           j.Error,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (q *JobQueue) CleanupOldJobs(maxAge time.Duration) {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()

	now := time.Now()
	removed := 0
	for id, job := range q.jobs {
		snap := job.Snapshot()
		if snap.Done() && snap.CompletedAt != nil && now.Sub(*snap.CompletedAt) > maxAge {
			delete(q.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		q.logger.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": len(q.jobs),
		}).Info("Cleaned up old import jobs")
	}
}

// Len returns the number of tracked jobs.
func (q *JobQueue) Len() int {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()
	return len(q.jobs)
}
