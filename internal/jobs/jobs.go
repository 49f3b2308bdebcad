// Package jobs owns the analysis job state machine. Jobs are mutated only
// through the Lifecycle transition operations; every other component treats
// them as read-only.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commentpulse/internal/core"

	"github.com/google/uuid"
)

// Named lifecycle errors so callers can branch on the condition.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrRetryNotAllowed   = errors.New("Only failed jobs can be retried")
	ErrRetryLimitReached = errors.New("Maximum retry attempts exceeded")
)

// totalSteps is fixed at creation: preprocess, sentiment, themes, summary,
// persist.
const totalSteps = 5

// DefaultMaxRetries bounds how often a failed job may be retried.
const DefaultMaxRetries = 3

// Store persists analysis jobs.
type Store interface {
	CreateJob(ctx context.Context, job *core.AnalysisJob) error
	GetJob(ctx context.Context, id string) (*core.AnalysisJob, error)
	UpdateJob(ctx context.Context, job *core.AnalysisJob) error
}

// Lifecycle implements the job state machine over a Store.
type Lifecycle struct {
	store Store
	now   func() time.Time
}

// NewLifecycle creates a lifecycle manager backed by the given store.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store, now: time.Now}
}

// NewLifecycleWithClock creates a lifecycle manager with an injected clock.
func NewLifecycleWithClock(store Store, now func() time.Time) *Lifecycle {
	return &Lifecycle{store: store, now: now}
}

// Create registers a new PENDING job with zeroed progress counters.
func (l *Lifecycle) Create(ctx context.Context, contentID, userID string) (*core.AnalysisJob, error) {
	job := &core.AnalysisJob{
		ID:         uuid.NewString(),
		ContentID:  contentID,
		UserID:     userID,
		Status:     core.JobStatusPending,
		TotalSteps: totalSteps,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  l.now().UTC(),
	}

	if err := l.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// Get returns a job by ID.
func (l *Lifecycle) Get(ctx context.Context, jobID string) (*core.AnalysisJob, error) {
	return l.store.GetJob(ctx, jobID)
}

// UpdateProgress records progress, step and description for a job. The first
// transition to RUNNING stamps StartedAt; a transition to COMPLETED stamps
// CompletedAt.
func (l *Lifecycle) UpdateProgress(ctx context.Context, jobID string, status core.JobStatus, progress, step int, description string) (*core.AnalysisJob, error) {
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job.Status = status
	job.Progress = progress
	job.CurrentStep = step
	job.StepDescription = description

	now := l.now().UTC()
	if status == core.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status == core.JobStatusCompleted {
		job.CompletedAt = &now
	}

	if err := l.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update job progress: %w", err)
	}
	return job, nil
}

// SetResult attaches the produced result ID to a job.
func (l *Lifecycle) SetResult(ctx context.Context, jobID, resultID string) (*core.AnalysisJob, error) {
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job.ResultID = resultID
	if err := l.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to set job result: %w", err)
	}
	return job, nil
}

// Complete fills in the terminal COMPLETED state on the job value without
// persisting it. The caller writes the job together with its result in one
// store transaction, so a COMPLETED job is never visible without a result.
func (l *Lifecycle) Complete(job *core.AnalysisJob, resultID string) {
	now := l.now().UTC()
	job.Status = core.JobStatusCompleted
	job.Progress = 100
	job.CurrentStep = job.TotalSteps
	job.StepDescription = "Analysis complete"
	job.ResultID = resultID
	job.CompletedAt = &now
}

// MarkFailed transitions a job to FAILED with the causing message.
func (l *Lifecycle) MarkFailed(ctx context.Context, jobID, message string) (*core.AnalysisJob, error) {
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	job.Status = core.JobStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now

	if err := l.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job failed: %w", err)
	}
	return job, nil
}

// Retry resets a FAILED job back to PENDING. It rejects jobs in any other
// state and jobs whose retry budget is exhausted, so RetryCount never exceeds
// MaxRetries.
func (l *Lifecycle) Retry(ctx context.Context, jobID string) (*core.AnalysisJob, error) {
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != core.JobStatusFailed {
		return nil, ErrRetryNotAllowed
	}
	if job.RetryCount >= job.MaxRetries {
		return nil, ErrRetryLimitReached
	}

	job.RetryCount++
	job.Status = core.JobStatusPending
	job.Progress = 0
	job.CurrentStep = 0
	job.StepDescription = ""
	job.ErrorMessage = ""
	job.StartedAt = nil
	job.CompletedAt = nil

	if err := l.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to retry job: %w", err)
	}
	return job, nil
}

// Cancel force-sets CANCELLED regardless of current state. Cancelling an
// already cancelled job is a no-op.
func (l *Lifecycle) Cancel(ctx context.Context, jobID string) (*core.AnalysisJob, error) {
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == core.JobStatusCancelled {
		return job, nil
	}

	now := l.now().UTC()
	job.Status = core.JobStatusCancelled
	job.CompletedAt = &now

	if err := l.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	return job, nil
}

// IsCancelled reports whether a job has been cancelled; used by the
// orchestrator between stages for cooperative cancellation.
func (l *Lifecycle) IsCancelled(ctx context.Context, jobID string) bool {
	job, err := l.store.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == core.JobStatusCancelled
}
