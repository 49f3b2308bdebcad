package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"commentpulse/internal/core"
	"commentpulse/internal/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	var (
		userID     string
		commentIDs []string
		inputFile  string
		model      string
		async      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [content-id]",
		Short: "Run the comment analysis pipeline for a content item",
		Long: `Run the five-stage analysis pipeline over the comments of a content item
and print the resulting audience report.

A result younger than the freshness window (default 24h) is reused without
re-running any stage. Comments can be imported first from a JSON file with
--input.

Examples:
  commentpulse analyze video-123
  commentpulse analyze video-123 --input comments.json
  commentpulse analyze video-123 --comments c1,c2,c3 --async`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), args[0], userID, commentIDs, inputFile, model, async)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "User the analysis runs on behalf of")
	cmd.Flags().StringSliceVar(&commentIDs, "comments", nil, "Restrict the run to these comment IDs")
	cmd.Flags().StringVar(&inputFile, "input", "", "JSON file of comments to import before analyzing")
	cmd.Flags().StringVar(&model, "model", "", "Gemini model override")
	cmd.Flags().BoolVar(&async, "async", false, "Enqueue and print the job ID without waiting")

	return cmd
}

func runAnalyze(ctx context.Context, contentID, userID string, commentIDs []string, inputFile, model string, async bool) error {
	a, err := buildApp(model)
	if err != nil {
		return err
	}
	defer a.Close()

	if inputFile != "" {
		count, err := importComments(ctx, a, contentID, inputFile)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d comments from %s\n", count, inputFile)
	}

	if err := a.orchestrator.ValidatePrerequisites(ctx, contentID, userID); err != nil {
		return err
	}

	comments, err := a.store.GetComments(ctx, contentID)
	if err != nil {
		return fmt.Errorf("failed to load comments: %w", err)
	}
	fmt.Printf("Analyzing %d comments (estimated %s)\n",
		len(comments), a.orchestrator.EstimateDuration(len(comments)))

	jobID, handle, err := a.service.Enqueue(ctx, contentID, userID, commentIDs)
	if err != nil {
		return err
	}
	fmt.Printf("Job: %s\n", jobID)

	if async {
		fmt.Println("Poll with: commentpulse job status", jobID)
		return nil
	}

	outcome, err := handle.Await(ctx)
	if err != nil {
		return err
	}
	if outcome.Err != nil {
		return fmt.Errorf("analysis failed: %w", outcome.Err)
	}

	printResult(outcome.Result)
	return nil
}

// commentImport is the accepted input-file schema.
type commentImport struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorName  string    `json:"author_name"`
	PublishedAt time.Time `json:"published_at"`
	LikeCount   int       `json:"like_count"`
}

func importComments(ctx context.Context, a *app, contentID, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read input file: %w", err)
	}

	var imported []commentImport
	if err := json.Unmarshal(data, &imported); err != nil {
		return 0, fmt.Errorf("failed to parse input file: %w", err)
	}

	comments := make([]core.Comment, 0, len(imported))
	for _, in := range imported {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		publishedAt := in.PublishedAt
		if publishedAt.IsZero() {
			publishedAt = time.Now().UTC()
		}
		comments = append(comments, core.Comment{
			ID:          id,
			ContentID:   contentID,
			Text:        in.Text,
			AuthorName:  in.AuthorName,
			PublishedAt: publishedAt,
			LikeCount:   in.LikeCount,
		})
	}

	if err := a.store.SaveComments(ctx, comments); err != nil {
		return 0, fmt.Errorf("failed to save comments: %w", err)
	}

	logger.Info("Imported comments", "content_id", contentID, "count", len(comments))
	return len(comments), nil
}

func printResult(result *core.AnalysisResult) {
	if result == nil {
		fmt.Println("No result produced")
		return
	}

	fmt.Println()
	fmt.Println("Audience Report")
	fmt.Println("===============")
	fmt.Printf("Comments analyzed: %d of %d (rest filtered)\n",
		result.FilteredComments, result.TotalComments)

	total := result.SentimentBreakdown.Total()
	if total > 0 {
		fmt.Printf("Sentiment: %d positive / %d negative / %d neutral\n",
			result.SentimentBreakdown.Positive,
			result.SentimentBreakdown.Negative,
			result.SentimentBreakdown.Neutral)
	}

	if len(result.Themes) > 0 {
		fmt.Println("\nThemes:")
		for _, theme := range result.Themes {
			fmt.Printf("  - %s (%d comments, %s", theme.Name, theme.Frequency,
				strings.ToLower(string(theme.Sentiment)))
			if len(theme.Keywords) > 0 {
				fmt.Printf("; keywords: %s", strings.Join(theme.Keywords, ", "))
			}
			fmt.Println(")")
		}
	}

	if len(result.Emotions) > 0 {
		parts := make([]string, 0, len(result.Emotions))
		for _, emotion := range result.Emotions {
			// Result emotions carry prevalence on a 0-100 scale.
			parts = append(parts, fmt.Sprintf("%s %.0f%%", emotion.Name, emotion.Score))
		}
		fmt.Printf("\nEmotions: %s\n", strings.Join(parts, ", "))
	}

	fmt.Println("\nSummary:")
	fmt.Println(result.Summary)
	fmt.Printf("\nResult ID: %s\n", result.ID)
}
