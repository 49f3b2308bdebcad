// Package persistence provides the PostgreSQL implementation of the comment,
// job and result stores for multi-replica deployments; single-node runs use
// the SQLite store instead.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"commentpulse/internal/core"
	"commentpulse/internal/jobs"
	"commentpulse/internal/pipeline"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresDB implements the job and result stores for PostgreSQL.
type PostgresDB struct {
	db *sql.DB
}

var (
	_ jobs.Store           = (*PostgresDB)(nil)
	_ pipeline.ResultStore = (*PostgresDB)(nil)
)

// NewPostgresDB opens a PostgreSQL connection and prepares the schema.
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresDB{db: db}
	if err := pg.initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return pg, nil
}

func (p *PostgresDB) initialize(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			content_id TEXT NOT NULL,
			text TEXT,
			author_name TEXT,
			published_at TIMESTAMPTZ,
			like_count INTEGER,
			is_filtered BOOLEAN,
			filter_reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_jobs (
			id TEXT PRIMARY KEY,
			content_id TEXT NOT NULL,
			user_id TEXT,
			result_id TEXT,
			status TEXT NOT NULL,
			progress INTEGER,
			current_step INTEGER,
			total_steps INTEGER,
			step_description TEXT,
			error_message TEXT,
			retry_count INTEGER,
			max_retries INTEGER,
			created_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_results (
			id TEXT PRIMARY KEY,
			content_id TEXT NOT NULL,
			job_id TEXT,
			total_comments INTEGER,
			filtered_comments INTEGER,
			summary TEXT,
			sentiment_breakdown JSONB,
			themes JSONB,
			keywords JSONB,
			emotions JSONB,
			created_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_content ON comments (content_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_content_created ON analysis_results (content_id, created_at DESC)`,
	}

	for _, table := range tables {
		if _, err := p.db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping verifies the connection.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// SaveComments upserts a batch of comments.
func (p *PostgresDB) SaveComments(ctx context.Context, comments []core.Comment) error {
	query := `
		INSERT INTO comments
		(id, content_id, text, author_name, published_at, like_count, is_filtered, filter_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			author_name = EXCLUDED.author_name,
			like_count = EXCLUDED.like_count,
			is_filtered = EXCLUDED.is_filtered,
			filter_reason = EXCLUDED.filter_reason`

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range comments {
		if _, err := tx.ExecContext(ctx, query,
			c.ID, c.ContentID, c.Text, c.AuthorName, c.PublishedAt,
			c.LikeCount, c.IsFiltered, string(c.FilterReason),
		); err != nil {
			return fmt.Errorf("failed to save comment %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetComments returns all comments for a content item.
func (p *PostgresDB) GetComments(ctx context.Context, contentID string) ([]core.Comment, error) {
	query := `
		SELECT id, content_id, text, author_name, published_at, like_count, is_filtered, filter_reason
		FROM comments WHERE content_id = $1 ORDER BY published_at`

	rows, err := p.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []core.Comment
	for rows.Next() {
		var c core.Comment
		var reason string
		if err := rows.Scan(&c.ID, &c.ContentID, &c.Text, &c.AuthorName,
			&c.PublishedAt, &c.LikeCount, &c.IsFiltered, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.FilterReason = core.FilterReason(reason)
		comments = append(comments, c)
	}

	return comments, rows.Err()
}

// GetCommentsByIDs returns the subset of comments matching the given IDs,
// preserving the requested order. Unknown IDs are skipped.
func (p *PostgresDB) GetCommentsByIDs(ctx context.Context, contentID string, ids []string) ([]core.Comment, error) {
	all, err := p.GetComments(ctx, contentID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.Comment, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}

	comments := make([]core.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			comments = append(comments, c)
		}
	}
	return comments, nil
}

// CreateJob inserts a new analysis job.
func (p *PostgresDB) CreateJob(ctx context.Context, job *core.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs
		(id, content_id, user_id, result_id, status, progress, current_step, total_steps,
		 step_description, error_message, retry_count, max_retries, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := p.db.ExecContext(ctx, query,
		job.ID, job.ContentID, job.UserID, job.ResultID, string(job.Status),
		job.Progress, job.CurrentStep, job.TotalSteps,
		job.StepDescription, job.ErrorMessage, job.RetryCount, job.MaxRetries,
		job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (p *PostgresDB) GetJob(ctx context.Context, id string) (*core.AnalysisJob, error) {
	query := `
		SELECT id, content_id, user_id, result_id, status, progress, current_step, total_steps,
		       step_description, error_message, retry_count, max_retries, created_at, started_at, completed_at
		FROM analysis_jobs WHERE id = $1`

	row := p.db.QueryRowContext(ctx, query, id)

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
func (p *PostgresDB) UpdateJob(ctx context.Context, job *core.AnalysisJob) error {
	query := `
		UPDATE analysis_jobs SET
			result_id = $2, status = $3, progress = $4, current_step = $5,
			step_description = $6, error_message = $7, retry_count = $8,
			started_at = $9, completed_at = $10
		WHERE id = $1`

	res, err := p.db.ExecContext(ctx, query,
		job.ID, job.ResultID, string(job.Status), job.Progress, job.CurrentStep,
		job.StepDescription, job.ErrorMessage, job.RetryCount,
		job.StartedAt, job.CompletedAt,
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

// SaveAnalysisResult writes a result aggregate and its job's terminal state in
// one transaction.
func (p *PostgresDB) SaveAnalysisResult(ctx context.Context, result *core.AnalysisResult, job *core.AnalysisJob) error {
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

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	resultQuery := `
		INSERT INTO analysis_results
		(id, content_id, job_id, total_comments, filtered_comments, summary,
		 sentiment_breakdown, themes, keywords, emotions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET job_id = EXCLUDED.job_id`

	if _, err := tx.ExecContext(ctx, resultQuery,
		result.ID, result.ContentID, result.JobID,
		result.TotalComments, result.FilteredComments, result.Summary,
		breakdown, themes, keywords, emotions, result.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert analysis result: %w", err)
	}

	if job != nil {
		jobQuery := `
			UPDATE analysis_jobs SET
				result_id = $2, status = $3, progress = $4, current_step = $5,
				step_description = $6, completed_at = $7
			WHERE id = $1`

		if _, err := tx.ExecContext(ctx, jobQuery,
			job.ID, job.ResultID, string(job.Status), job.Progress, job.CurrentStep,
			job.StepDescription, job.CompletedAt,
		); err != nil {
			return fmt.Errorf("failed to update job with result: %w", err)
		}
	}

	return tx.Commit()
}

const resultSelect = `
	SELECT id, content_id, job_id, total_comments, filtered_comments, summary,
	       sentiment_breakdown, themes, keywords, emotions, created_at
	FROM analysis_results`

// GetAnalysisResult retrieves a result aggregate by ID.
func (p *PostgresDB) GetAnalysisResult(ctx context.Context, id string) (*core.AnalysisResult, error) {
	row := p.db.QueryRowContext(ctx, resultSelect+` WHERE id = $1`, id)
	return scanResult(row)
}

// GetLatestResult returns the most recent result for a content item younger
// than maxAge, or nil on a cache miss.
func (p *PostgresDB) GetLatestResult(ctx context.Context, contentID string, maxAge time.Duration) (*core.AnalysisResult, error) {
	query := resultSelect + `
		WHERE content_id = $1 AND created_at > $2
		ORDER BY created_at DESC LIMIT 1`

	cutoff := time.Now().UTC().Add(-maxAge)
	return scanResult(p.db.QueryRowContext(ctx, query, contentID, cutoff))
}

// UpdateResultJob re-associates a cached result with a new job ID.
func (p *PostgresDB) UpdateResultJob(ctx context.Context, resultID, jobID string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE analysis_results SET job_id = $2 WHERE id = $1`, resultID, jobID)
	if err != nil {
		return fmt.Errorf("failed to update result job: %w", err)
	}
	return nil
}

func scanResult(row *sql.Row) (*core.AnalysisResult, error) {
	var result core.AnalysisResult
	var breakdown, themes, keywords, emotions []byte

	err := row.Scan(&result.ID, &result.ContentID, &result.JobID,
		&result.TotalComments, &result.FilteredComments, &result.Summary,
		&breakdown, &themes, &keywords, &emotions, &result.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis result: %w", err)
	}

	if err := json.Unmarshal(breakdown, &result.SentimentBreakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sentiment breakdown: %w", err)
	}
	if err := json.Unmarshal(themes, &result.Themes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal themes: %w", err)
	}
	if err := json.Unmarshal(keywords, &result.Keywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal(emotions, &result.Emotions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal emotions: %w", err)
	}

	return &result, nil
}
