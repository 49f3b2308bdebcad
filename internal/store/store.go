// Package store provides the SQLite-backed persistence and freshness cache
// for comments, analysis jobs and analysis results.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"commentpulse/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-based persistence layer.
type Store struct {
	db   *sql.DB
	path string
}

// New creates a store instance with a SQLite database under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "commentpulse.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables.
func (s *Store) initialize() error {
	commentsTable := `
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		content_id TEXT NOT NULL,
		text TEXT,
		author_name TEXT,
		published_at DATETIME,
		like_count INTEGER,
		is_filtered INTEGER,
		filter_reason TEXT
	);`

	jobsTable := `
	CREATE TABLE IF NOT EXISTS analysis_jobs (
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
		created_at DATETIME,
		started_at DATETIME,
		completed_at DATETIME
	);`

	// Sub-entities (breakdown, themes, keywords, emotions) are serialized
	// into the result row so the whole aggregate is written atomically.
	resultsTable := `
	CREATE TABLE IF NOT EXISTS analysis_results (
		id TEXT PRIMARY KEY,
		content_id TEXT NOT NULL,
		job_id TEXT,
		total_comments INTEGER,
		filtered_comments INTEGER,
		summary TEXT,
		sentiment_breakdown TEXT,
		themes TEXT,
		keywords TEXT,
		emotions TEXT,
		created_at DATETIME
	);`

	tables := []string{commentsTable, jobsTable, resultsTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type fileStat struct {
	size    int64
	modTime time.Time
}

func statFile(path string) (fileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStat{}, err
	}
	return fileStat{size: info.Size(), modTime: info.ModTime()}, nil
}

// SaveComments upserts a batch of comments.
func (s *Store) SaveComments(ctx context.Context, comments []core.Comment) error {
	query := `
	INSERT OR REPLACE INTO comments
	(id, content_id, text, author_name, published_at, like_count, is_filtered, filter_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := s.db.BeginTx(ctx, nil)
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
func (s *Store) GetComments(ctx context.Context, contentID string) ([]core.Comment, error) {
	query := `
	SELECT id, content_id, text, author_name, published_at, like_count, is_filtered, filter_reason
	FROM comments WHERE content_id = ? ORDER BY published_at`

	rows, err := s.db.QueryContext(ctx, query, contentID)
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
func (s *Store) GetCommentsByIDs(ctx context.Context, contentID string, ids []string) ([]core.Comment, error) {
	all, err := s.GetComments(ctx, contentID)
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
