// Package pipeline sequences the analysis stages for one job: filter →
// sentiment → themes → summary → persist. It owns the freshness-cache
// short-circuit, weighted progress reporting and failure propagation; the
// stages themselves know nothing about jobs or storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"commentpulse/internal/core"
	"commentpulse/internal/jobs"
	"commentpulse/internal/logger"
	"commentpulse/internal/summary"

	"github.com/google/uuid"
)

// ErrJobCancelled is returned when a run stops because its job was cancelled
// between stages.
var ErrJobCancelled = errors.New("job cancelled")

// Stage weights. Progress is the cumulative weight of completed steps,
// reported before the next step starts.
const (
	weightPreprocess = 0.20
	weightSentiment  = 0.30
	weightThemes     = 0.30
	weightSummary    = 0.15
	weightPersist    = 0.05
)

// Config holds orchestrator tunables.
type Config struct {
	CacheTTL            time.Duration // Freshness window for reusing a prior result
	MinFilteredComments int           // Prerequisite floor of non-filtered comments
	EstimateBase        time.Duration // Fixed overhead in the duration estimate
	EstimatePerComment  time.Duration // Marginal cost per comment in the estimate
	EstimateMax         time.Duration // Cap on the duration estimate
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:            24 * time.Hour,
		MinFilteredComments: 5,
		EstimateBase:        15 * time.Second,
		EstimatePerComment:  400 * time.Millisecond,
		EstimateMax:         10 * time.Minute,
	}
}

// Request identifies one analysis run. An empty CommentIDs list means all
// stored comments for the content item.
type Request struct {
	JobID      string
	ContentID  string
	UserID     string
	CommentIDs []string
}

// Orchestrator runs the analysis pipeline for jobs.
type Orchestrator struct {
	filter    CommentFilter
	sentiment SentimentAnalyzer
	themes    ThemeAnalyzer
	summary   SummaryGenerator
	store     ResultStore
	lifecycle *jobs.Lifecycle
	accounts  AccountChecker
	contents  ContentChecker
	config    Config
}

// New creates an orchestrator over the given stages and stores. accounts and
// contents may be nil when no account or content service is wired.
func New(filter CommentFilter, sentimentStage SentimentAnalyzer, themeStage ThemeAnalyzer, summaryStage SummaryGenerator, store ResultStore, lifecycle *jobs.Lifecycle, accounts AccountChecker, contents ContentChecker, config Config) *Orchestrator {
	return &Orchestrator{
		filter:    filter,
		sentiment: sentimentStage,
		themes:    themeStage,
		summary:   summaryStage,
		store:     store,
		lifecycle: lifecycle,
		accounts:  accounts,
		contents:  contents,
		config:    config,
	}
}

// Run executes the pipeline for one job. A fresh cached result short-circuits
// the stages entirely; otherwise the stages run in fixed order and the
// aggregate result is persisted together with the job's terminal state. Any
// stage error marks the job FAILED and re-propagates to the caller.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*core.AnalysisResult, error) {
	cached, err := o.tryCache(ctx, req)
	if err != nil {
		return nil, o.fail(ctx, req.JobID, err)
	}
	if cached != nil {
		return cached, nil
	}

	result, err := o.runStages(ctx, req)
	if err != nil {
		if errors.Is(err, ErrJobCancelled) {
			// Cancel already set the terminal state; nothing to mark.
			return nil, err
		}
		return nil, o.fail(ctx, req.JobID, err)
	}
	return result, nil
}

// tryCache returns a reused result when one younger than the TTL exists,
// re-associating it with the current job and completing the job at 100%.
func (o *Orchestrator) tryCache(ctx context.Context, req Request) (*core.AnalysisResult, error) {
	if o.config.CacheTTL <= 0 {
		return nil, nil
	}

	cached, err := o.store.GetLatestResult(ctx, req.ContentID, o.config.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}
	if cached == nil {
		return nil, nil
	}

	if err := o.store.UpdateResultJob(ctx, cached.ID, req.JobID); err != nil {
		return nil, fmt.Errorf("failed to re-associate cached result: %w", err)
	}
	cached.JobID = req.JobID

	if _, err := o.lifecycle.SetResult(ctx, req.JobID, cached.ID); err != nil {
		return nil, err
	}
	if _, err := o.lifecycle.UpdateProgress(ctx, req.JobID, core.JobStatusCompleted, 100, 5, "Used cached result"); err != nil {
		return nil, err
	}

	logger.Info("Reusing cached analysis result",
		"job_id", req.JobID, "content_id", req.ContentID, "result_id", cached.ID)

	return cached, nil
}

func (o *Orchestrator) runStages(ctx context.Context, req Request) (*core.AnalysisResult, error) {
	comments, err := o.loadComments(ctx, req)
	if err != nil {
		return nil, err
	}

	// Step 1: preprocessing.
	if err := o.report(ctx, req.JobID, 0, 1, "Filtering comments"); err != nil {
		return nil, err
	}
	filterResult := o.filter.Filter(comments)
	if err := o.store.SaveComments(ctx, comments); err != nil {
		return nil, fmt.Errorf("failed to persist filter flags: %w", err)
	}

	// Step 2: sentiment.
	if err := o.report(ctx, req.JobID, progressAfter(1), 2, "Analyzing sentiment"); err != nil {
		return nil, err
	}
	sentimentResult, err := o.sentiment.AnalyzeBatch(ctx, filterResult.FilteredComments)
	if err != nil {
		return nil, fmt.Errorf("sentiment stage failed: %w", err)
	}

	// Step 3: themes.
	if err := o.report(ctx, req.JobID, progressAfter(2), 3, "Clustering themes"); err != nil {
		return nil, err
	}
	themeResult, err := o.themes.AnalyzeThemes(filterResult.FilteredComments, sentimentResult.Results)
	if err != nil {
		return nil, fmt.Errorf("theme stage failed: %w", err)
	}

	// Step 4: summary.
	if err := o.report(ctx, req.JobID, progressAfter(3), 4, "Generating summary"); err != nil {
		return nil, err
	}
	generated, err := o.summary.Generate(ctx, summary.Input{
		SentimentBreakdown: sentimentResult.Summary,
		Themes:             themeResult.Themes,
		Keywords:           themeResult.Keywords,
		TotalComments:      filterResult.Stats.Total,
		FilteredComments:   filterResult.Stats.Filtered,
	})
	if err != nil {
		return nil, fmt.Errorf("summary stage failed: %w", err)
	}

	// Step 5: persistence.
	if err := o.report(ctx, req.JobID, progressAfter(4), 5, "Saving analysis result"); err != nil {
		return nil, err
	}

	result := &core.AnalysisResult{
		ID:                 uuid.NewString(),
		ContentID:          req.ContentID,
		JobID:              req.JobID,
		TotalComments:      filterResult.Stats.Total,
		FilteredComments:   filterResult.Stats.Filtered,
		Summary:            generated.Text,
		SentimentBreakdown: sentimentResult.Summary,
		Themes:             themeResult.Themes,
		Keywords:           themeResult.Keywords,
		Emotions:           generated.Emotions,
		CreatedAt:          time.Now().UTC(),
	}

	job, err := o.lifecycle.Get(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	o.lifecycle.Complete(job, result.ID)

	if err := o.store.SaveAnalysisResult(ctx, result, job); err != nil {
		return nil, fmt.Errorf("failed to persist analysis result: %w", err)
	}

	logger.Info("Analysis pipeline completed",
		"job_id", req.JobID, "content_id", req.ContentID,
		"total_comments", result.TotalComments, "filtered_comments", result.FilteredComments,
		"themes", len(result.Themes), "fallback_summary", generated.UsedFallback)

	return result, nil
}

// loadComments fetches the run's comment set, either the requested subset or
// everything stored for the content item.
func (o *Orchestrator) loadComments(ctx context.Context, req Request) ([]core.Comment, error) {
	if len(req.CommentIDs) > 0 {
		comments, err := o.store.GetCommentsByIDs(ctx, req.ContentID, req.CommentIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load comments: %w", err)
		}
		return comments, nil
	}

	comments, err := o.store.GetComments(ctx, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	return comments, nil
}

// report records progress before the next step's work and performs the
// cooperative cancellation check between stages.
func (o *Orchestrator) report(ctx context.Context, jobID string, progress, step int, description string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.lifecycle.IsCancelled(ctx, jobID) {
		return ErrJobCancelled
	}

	_, err := o.lifecycle.UpdateProgress(ctx, jobID, core.JobStatusRunning, progress, step, description)
	return err
}

// fail marks the job FAILED and re-propagates the causing error unchanged.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) error {
	if _, err := o.lifecycle.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		logger.Error("Failed to mark job as failed", err, "job_id", jobID)
	}
	return cause
}

// progressAfter returns the cumulative integer percentage once the first n
// steps are done.
func progressAfter(n int) int {
	weights := []float64{weightPreprocess, weightSentiment, weightThemes, weightSummary, weightPersist}
	var total float64
	for i := 0; i < n && i < len(weights); i++ {
		total += weights[i]
	}
	return int(math.Round(total * 100))
}

// ValidatePrerequisites checks that a run can start, accumulating every
// failing condition into one error instead of stopping at the first.
func (o *Orchestrator) ValidatePrerequisites(ctx context.Context, contentID, userID string) error {
	var issues []string

	if o.contents != nil {
		owned, err := o.contents.OwnedBy(ctx, contentID, userID)
		if err != nil {
			issues = append(issues, fmt.Sprintf("failed to verify content ownership: %v", err))
		} else if !owned {
			issues = append(issues, "content item does not exist or is not owned by the requesting user")
		}
	}

	comments, err := o.store.GetComments(ctx, contentID)
	if err != nil {
		return fmt.Errorf("failed to load comments for validation: %w", err)
	}

	if len(comments) == 0 {
		issues = append(issues, "content has no comments")
	} else {
		kept := o.filter.Filter(cloneComments(comments))
		if kept.Stats.Filtered < o.config.MinFilteredComments {
			issues = append(issues, fmt.Sprintf("content has only %d non-filtered comments (minimum: %d)",
				kept.Stats.Filtered, o.config.MinFilteredComments))
		}
	}

	if o.accounts != nil {
		count, err := o.accounts.ConnectedAccountCount(ctx, userID)
		if err != nil {
			issues = append(issues, fmt.Sprintf("failed to check connected accounts: %v", err))
		} else if count == 0 {
			issues = append(issues, "user has no connected accounts")
		}
	}

	if len(issues) > 0 {
		return fmt.Errorf("analysis prerequisites not met: %s", strings.Join(issues, "; "))
	}
	return nil
}

// EstimateDuration is a linear-with-cap heuristic for client-side progress
// display; it has no scheduling role.
func (o *Orchestrator) EstimateDuration(commentCount int) time.Duration {
	estimate := o.config.EstimateBase + time.Duration(commentCount)*o.config.EstimatePerComment
	if estimate > o.config.EstimateMax {
		return o.config.EstimateMax
	}
	return estimate
}

// cloneComments copies the slice so validation's filter pass does not mutate
// the stored flags.
func cloneComments(comments []core.Comment) []core.Comment {
	cloned := make([]core.Comment, len(comments))
	copy(cloned, comments)
	return cloned
}
