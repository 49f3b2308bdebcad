package pipeline

import (
	"context"
	"time"

	"commentpulse/internal/core"
	"commentpulse/internal/sentiment"
	"commentpulse/internal/summary"
	"commentpulse/internal/themes"
)

// CommentFilter partitions a comment batch into kept and rejected sets.
type CommentFilter interface {
	// Filter applies spam, toxicity and duplicate detection. Input elements
	// are annotated in place with IsFiltered/FilterReason.
	Filter(comments []core.Comment) *core.FilterResult
}

// SentimentAnalyzer classifies filtered comments.
type SentimentAnalyzer interface {
	// AnalyzeBatch returns exactly one result per input comment, falling back
	// to heuristics rather than failing when the provider is unavailable.
	AnalyzeBatch(ctx context.Context, comments []core.Comment) (*sentiment.BatchResult, error)
}

// ThemeAnalyzer clusters comments into themes and extracts keywords.
type ThemeAnalyzer interface {
	// AnalyzeThemes consumes the filtered comments and their positionally
	// aligned sentiment results.
	AnalyzeThemes(comments []core.Comment, sentiments []core.SentimentResult) (*themes.Result, error)
}

// SummaryGenerator synthesizes the narrative audience summary.
type SummaryGenerator interface {
	Generate(ctx context.Context, input summary.Input) (*core.GeneratedSummary, error)
}

// ResultStore is the persistence surface the orchestrator needs: comment
// reads, filter-flag writes, the freshness-cache lookup and the atomic
// result-plus-job write.
type ResultStore interface {
	GetComments(ctx context.Context, contentID string) ([]core.Comment, error)
	GetCommentsByIDs(ctx context.Context, contentID string, ids []string) ([]core.Comment, error)
	SaveComments(ctx context.Context, comments []core.Comment) error

	// SaveAnalysisResult writes the result aggregate and the job's terminal
	// state as one logically atomic unit.
	SaveAnalysisResult(ctx context.Context, result *core.AnalysisResult, job *core.AnalysisJob) error

	// GetLatestResult returns the freshest result younger than maxAge for a
	// content item, or nil on a cache miss.
	GetLatestResult(ctx context.Context, contentID string, maxAge time.Duration) (*core.AnalysisResult, error)

	// UpdateResultJob re-associates a cached result with a new job.
	UpdateResultJob(ctx context.Context, resultID, jobID string) error
}

// AccountChecker reports how many external accounts a user has connected.
// Account management lives outside this service; a nil checker skips the
// prerequisite.
type AccountChecker interface {
	ConnectedAccountCount(ctx context.Context, userID string) (int, error)
}

// ContentChecker reports whether a content item exists and belongs to a user.
// Content management lives outside this service; a nil checker skips the
// prerequisite.
type ContentChecker interface {
	OwnedBy(ctx context.Context, contentID, userID string) (bool, error)
}
