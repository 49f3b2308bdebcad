package queue

import (
	"context"
	"fmt"

	"commentpulse/internal/core"
	"commentpulse/internal/jobs"
	"commentpulse/internal/pipeline"
)

// Runner executes the analysis pipeline for one request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*core.AnalysisResult, error)
}

// Service is the enqueue surface: it creates the job, submits the pipeline
// run to the dispatcher and hands back the job ID for polling.
type Service struct {
	dispatcher *Dispatcher
	lifecycle  *jobs.Lifecycle
	runner     Runner
}

// NewService wires the enqueue surface.
func NewService(dispatcher *Dispatcher, lifecycle *jobs.Lifecycle, runner Runner) *Service {
	return &Service{dispatcher: dispatcher, lifecycle: lifecycle, runner: runner}
}

// Enqueue creates a PENDING job for the content item and schedules its
// pipeline run. The returned handle lets in-process callers await the outcome;
// remote callers poll the job by ID instead.
func (s *Service) Enqueue(ctx context.Context, contentID, userID string, commentIDs []string) (string, *Handle, error) {
	job, err := s.lifecycle.Create(ctx, contentID, userID)
	if err != nil {
		return "", nil, err
	}

	handle, err := s.submit(ctx, job.ID, contentID, userID, commentIDs)
	if err != nil {
		return "", nil, err
	}
	return job.ID, handle, nil
}

// Resubmit schedules a run for an existing job, used after a successful retry
// transition put the job back to PENDING.
func (s *Service) Resubmit(ctx context.Context, job *core.AnalysisJob, commentIDs []string) (*Handle, error) {
	return s.submit(ctx, job.ID, job.ContentID, job.UserID, commentIDs)
}

func (s *Service) submit(ctx context.Context, jobID, contentID, userID string, commentIDs []string) (*Handle, error) {
	req := pipeline.Request{
		JobID:      jobID,
		ContentID:  contentID,
		UserID:     userID,
		CommentIDs: commentIDs,
	}

	handle, err := s.dispatcher.Submit(ctx, Task{
		JobID: jobID,
		Run: func(taskCtx context.Context) (*core.AnalysisResult, error) {
			return s.runner.Run(taskCtx, req)
		},
	})
	if err != nil {
		// The job exists but will never run; surface that on the job itself.
		if _, markErr := s.lifecycle.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			return nil, fmt.Errorf("failed to schedule job %s: %w", jobID, err)
		}
		return nil, fmt.Errorf("failed to schedule job %s: %w", jobID, err)
	}

	return handle, nil
}
