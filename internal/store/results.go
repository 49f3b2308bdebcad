package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"commentpulse/internal/core"
)

// SaveAnalysisResult writes a result aggregate and its job's terminal state in
// one transaction, so readers never observe a COMPLETED job without the
// corresponding result.
func (s *Store) SaveAnalysisResult(ctx context.Context, result *core.AnalysisResult, job *core.AnalysisJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	breakdown, err := json.Marshal(result.SentimentBreakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal sentiment breakdown: %w", err)
	}
	themes, err := json.Marshal(result.Themes)
	if err != nil {
		return fmt.Errorf("failed to marshal themes: %w", err)
	}
	keywords, err := json.Marshal(result.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	emotions, err := json.Marshal(result.Emotions)
	if err != nil {
		return fmt.Errorf("failed to marshal emotions: %w", err)
	}

	resultQuery := `
	INSERT OR REPLACE INTO analysis_results
	(id, content_id, job_id, total_comments, filtered_comments, summary,
	 sentiment_breakdown, themes, keywords, emotions, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := tx.ExecContext(ctx, resultQuery,
		result.ID, result.ContentID, result.JobID,
		result.TotalComments, result.FilteredComments, result.Summary,
		string(breakdown), string(themes), string(keywords), string(emotions),
		result.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert analysis result: %w", err)
	}

	if job != nil {
		jobQuery := `
		UPDATE analysis_jobs SET
			result_id = ?, status = ?, progress = ?, current_step = ?,
			step_description = ?, completed_at = ?
		WHERE id = ?`

		if _, err := tx.ExecContext(ctx, jobQuery,
			job.ResultID, string(job.Status), job.Progress, job.CurrentStep,
			job.StepDescription, nullableTime(job.CompletedAt), job.ID,
		); err != nil {
			return fmt.Errorf("failed to update job with result: %w", err)
		}
	}

	return tx.Commit()
}

// GetAnalysisResult retrieves a result aggregate by ID.
func (s *Store) GetAnalysisResult(ctx context.Context, id string) (*core.AnalysisResult, error) {
	query := resultSelect + ` WHERE id = ?`
	return s.scanResult(s.db.QueryRowContext(ctx, query, id))
}

// GetLatestResult returns the most recent result for a content item younger
// than maxAge, or nil on a cache miss.
func (s *Store) GetLatestResult(ctx context.Context, contentID string, maxAge time.Duration) (*core.AnalysisResult, error) {
	query := resultSelect + `
	WHERE content_id = ? AND created_at > ?
	ORDER BY created_at DESC LIMIT 1`

	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.scanResult(s.db.QueryRowContext(ctx, query, contentID, cutoff))
	if err != nil {
		return nil, err
	}
	return result, nil
}

const resultSelect = `
	SELECT id, content_id, job_id, total_comments, filtered_comments, summary,
	       sentiment_breakdown, themes, keywords, emotions, created_at
	FROM analysis_results`

// scanResult decodes one result row, including the serialized sub-entities.
func (s *Store) scanResult(row *sql.Row) (*core.AnalysisResult, error) {
	var result core.AnalysisResult
	var breakdown, themes, keywords, emotions string

	err := row.Scan(&result.ID, &result.ContentID, &result.JobID,
		&result.TotalComments, &result.FilteredComments, &result.Summary,
		&breakdown, &themes, &keywords, &emotions, &result.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis result: %w", err)
	}

	if err := json.Unmarshal([]byte(breakdown), &result.SentimentBreakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sentiment breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(themes), &result.Themes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal themes: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &result.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(emotions), &result.Emotions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal emotions: %w", err)
	}

	return &result, nil
}

// UpdateResultJob re-associates a cached result with a new job ID.
func (s *Store) UpdateResultJob(ctx context.Context, resultID, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analysis_results SET job_id = ? WHERE id = ?`, jobID, resultID)
	if err != nil {
		return fmt.Errorf("failed to update result job: %w", err)
	}
	return nil
}

// Stats represents store statistics.
type Stats struct {
	CommentCount int
	JobCount     int
	ResultCount  int
	StoreSize    int64
	LastUpdated  time.Time
}

// GetStats returns statistics about the store.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := map[string]*int{
		"SELECT COUNT(*) FROM comments":         &stats.CommentCount,
		"SELECT COUNT(*) FROM analysis_jobs":    &stats.JobCount,
		"SELECT COUNT(*) FROM analysis_results": &stats.ResultCount,
	}

	for query, target := range queries {
		if err := s.db.QueryRowContext(ctx, query).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to get count: %w", err)
		}
	}

	if fileInfo, err := statFile(s.path); err == nil {
		stats.StoreSize = fileInfo.size
		stats.LastUpdated = fileInfo.modTime
	}

	return stats, nil
}

// Clear removes all stored data.
func (s *Store) Clear(ctx context.Context) error {
	tables := []string{"comments", "analysis_jobs", "analysis_results"}

	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s table: %w", table, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	return nil
}

// Cleanup removes results and finished jobs older than the retention window.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM analysis_results WHERE created_at < ?", cutoff); err != nil {
		return fmt.Errorf("failed to clean old results: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM analysis_jobs WHERE completed_at IS NOT NULL AND completed_at < ?", cutoff); err != nil {
		return fmt.Errorf("failed to clean old jobs: %w", err)
	}

	return nil
}
