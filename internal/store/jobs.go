package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"commentpulse/internal/core"
	"commentpulse/internal/jobs"
)

// Compile-time check that the store satisfies the job store contract.
var _ jobs.Store = (*Store)(nil)

// CreateJob inserts a new analysis job.
func (s *Store) CreateJob(ctx context.Context, job *core.AnalysisJob) error {
	query := `
	INSERT INTO analysis_jobs
	(id, content_id, user_id, result_id, status, progress, current_step, total_steps,
	 step_description, error_message, retry_count, max_retries, created_at, started_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.ContentID, job.UserID, job.ResultID, string(job.Status),
		job.Progress, job.CurrentStep, job.TotalSteps,
		job.StepDescription, job.ErrorMessage, job.RetryCount, job.MaxRetries,
		job.CreatedAt, nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*core.AnalysisJob, error) {
	query := `
	SELECT id, content_id, user_id, result_id, status, progress, current_step, total_steps,
	       step_description, error_message, retry_count, max_retries, created_at, started_at, completed_at
	FROM analysis_jobs WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var job core.AnalysisJob
	var status string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.ContentID, &job.UserID, &job.ResultID, &status,
		&job.Progress, &job.CurrentStep, &job.TotalSteps,
		&job.StepDescription, &job.ErrorMessage, &job.RetryCount, &job.MaxRetries,
		&job.CreatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, jobs.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = core.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

// UpdateJob persists the current state of a job.
func (s *Store) UpdateJob(ctx context.Context, job *core.AnalysisJob) error {
	query := `
	UPDATE analysis_jobs SET
		result_id = ?, status = ?, progress = ?, current_step = ?,
		step_description = ?, error_message = ?, retry_count = ?,
		started_at = ?, completed_at = ?
	WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
		job.ResultID, string(job.Status), job.Progress, job.CurrentStep,
		job.StepDescription, job.ErrorMessage, job.RetryCount,
		nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}

// nullableTime converts an optional timestamp for database binding.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
