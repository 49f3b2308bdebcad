// Package sentiment classifies filtered comments via an external
// text-generation call, with a lexicon heuristic as the fallback path. The
// stage guarantees exactly one result per input comment even under total
// external failure.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"commentpulse/internal/core"
	"commentpulse/internal/logger"
	"commentpulse/internal/retryutil"
)

// TextGenerator defines the interface for LLM text generation.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// batchPromptTemplate instructs the model to emit one JSON object per line,
// indexed 1..N, so partial parse failures never lose the whole batch.
const batchPromptTemplate = `Classify the sentiment of each comment below.

For EACH comment output exactly one line containing a JSON object of this shape:
{"commentIndex": <1-based index>, "sentiment": "POSITIVE"|"NEGATIVE"|"NEUTRAL", "confidence": <0.0-1.0>, "emotions": [{"name": "<emotion>", "score": <0.0-1.0>}]}

Rules:
- One line per comment, no markdown, no surrounding text.
- commentIndex matches the numbering below.
- At most 3 emotions, highest score first.

Comments:
%s`

// Options configures the sentiment stage.
type Options struct {
	BatchSize       int           // Comments per generation request
	MaxRetries      int           // Attempts per batch before falling back
	BaseDelay       time.Duration // Backoff base between attempts
	AttemptTimeout  time.Duration // Timeout race around each generation call
	InterBatchDelay time.Duration // Pause between batches for rate limits

	// Advanced mode: re-analyze results below this confidence one comment at
	// a time; 0 disables it.
	RetryConfidenceThreshold float64

	Sleep retryutil.Sleeper // Nil uses the default sleeper
}

// DefaultOptions returns sensible defaults for batch sentiment analysis.
func DefaultOptions() Options {
	return Options{
		BatchSize:       10,
		MaxRetries:      3,
		BaseDelay:       time.Second,
		AttemptTimeout:  30 * time.Second,
		InterBatchDelay: 500 * time.Millisecond,
	}
}

// Stats tracks observability counters for one AnalyzeBatch call.
type Stats struct {
	Batches        int           `json:"batches"`
	FallbackCount  int           `json:"fallback_count"`  // Results produced by the lexicon heuristic
	RetryCount     int           `json:"retry_count"`     // Single-comment re-analyses in advanced mode
	ProcessingTime time.Duration `json:"processing_time"` // Total wall-clock time
}

// BatchResult holds per-comment results plus the aggregate breakdown.
type BatchResult struct {
	Results    []core.SentimentResult  `json:"results"`
	Summary    core.SentimentBreakdown `json:"summary"`
	Validation *ValidationReport       `json:"validation"`
	Stats      Stats                   `json:"stats"`
}

// Analyzer is the sentiment stage.
type Analyzer struct {
	generator TextGenerator
	options   Options
}

// New creates a sentiment analyzer with the given generator and options.
func New(generator TextGenerator, options Options) *Analyzer {
	return &Analyzer{generator: generator, options: options}
}

// NewWithDefaults creates an analyzer with default options.
func NewWithDefaults(generator TextGenerator) *Analyzer {
	return New(generator, DefaultOptions())
}

// AnalyzeBatch classifies all comments, returning exactly one result per
// input. Batches that fail after retries fall back to the lexicon heuristic
// rather than raising.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, comments []core.Comment) (*BatchResult, error) {
	start := time.Now()

	result := &BatchResult{
		Results: make([]core.SentimentResult, 0, len(comments)),
	}

	if len(comments) == 0 {
		result.Validation = Validate(nil, 0)
		return result, nil
	}

	batchSize := a.options.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultOptions().BatchSize
	}

	sleep := a.options.Sleep
	if sleep == nil {
		sleep = retryutil.DefaultSleeper
	}

	for offset := 0; offset < len(comments); offset += batchSize {
		end := offset + batchSize
		if end > len(comments) {
			end = len(comments)
		}
		batch := comments[offset:end]

		results := a.analyzeOneBatch(ctx, batch, &result.Stats)
		result.Results = append(result.Results, results...)
		result.Stats.Batches++

		// Fixed pause between batches to respect provider rate limits.
		if end < len(comments) && a.options.InterBatchDelay > 0 {
			if err := sleep(ctx, a.options.InterBatchDelay); err != nil {
				return nil, err
			}
		}
	}

	if a.options.RetryConfidenceThreshold > 0 {
		a.retryLowConfidence(ctx, comments, result)
	}

	for _, r := range result.Results {
		switch r.Sentiment {
		case core.SentimentPositive:
			result.Summary.Positive++
		case core.SentimentNegative:
			result.Summary.Negative++
		default:
			result.Summary.Neutral++
		}
	}

	result.Validation = Validate(result.Results, len(comments))
	result.Stats.ProcessingTime = time.Since(start)

	return result, nil
}

// analyzeOneBatch sends one batch to the generator and fills any position the
// response did not cover with the lexicon fallback.
func (a *Analyzer) analyzeOneBatch(ctx context.Context, batch []core.Comment, stats *Stats) []core.SentimentResult {
	prompt := buildBatchPrompt(batch)

	policy := retryutil.DefaultPolicy()
	policy.MaxAttempts = a.options.MaxRetries
	policy.BaseDelay = a.options.BaseDelay
	policy.Sleep = a.options.Sleep

	var response string
	err := retryutil.Do(ctx, policy, func(ctx context.Context) error {
		attemptCtx := ctx
		if a.options.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, a.options.AttemptTimeout)
			defer cancel()
		}
		var genErr error
		response, genErr = a.generator.GenerateText(attemptCtx, prompt)
		return genErr
	})

	parsed := map[int]core.SentimentResult{}
	if err != nil {
		logger.Warn("Sentiment batch failed after retries, using lexicon fallback",
			"batch_size", len(batch), "error", err.Error())
	} else {
		parsed = parseBatchResponse(response, len(batch))
	}

	results := make([]core.SentimentResult, len(batch))
	for i := range batch {
		if r, ok := parsed[i]; ok {
			results[i] = r
			continue
		}
		results[i] = LexiconFallback(batch[i].Text)
		stats.FallbackCount++
	}

	return results
}

// retryLowConfidence re-runs single-comment analysis for results below the
// configured threshold, keeping the new result only when its confidence
// improved.
func (a *Analyzer) retryLowConfidence(ctx context.Context, comments []core.Comment, result *BatchResult) {
	for i := range result.Results {
		if result.Results[i].Confidence >= a.options.RetryConfidenceThreshold {
			continue
		}

		retried := a.analyzeOneBatch(ctx, comments[i:i+1], &result.Stats)
		result.Stats.RetryCount++

		if len(retried) == 1 && retried[0].Confidence > result.Results[i].Confidence {
			result.Results[i] = retried[0]
		}
	}
}

// buildBatchPrompt renders the numbered comment list into the fixed template.
func buildBatchPrompt(batch []core.Comment) string {
	var b strings.Builder
	for i, comment := range batch {
		text := strings.ReplaceAll(comment.Text, "\n", " ")
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, text))
	}
	return fmt.Sprintf(batchPromptTemplate, b.String())
}

// lineResult is the strict intermediate schema for one response line.
// Responses are arbitrary provider output; fields are validated explicitly
// and mismatches fall through to the fallback path.
type lineResult struct {
	CommentIndex int     `json:"commentIndex"`
	Sentiment    string  `json:"sentiment"`
	Confidence   float64 `json:"confidence"`
	Emotions     []struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	} `json:"emotions"`
}

// parseBatchResponse parses each response line independently; malformed or
// out-of-range lines are discarded without aborting the batch. Keys are
// 0-based batch positions.
func parseBatchResponse(response string, batchLen int) map[int]core.SentimentResult {
	results := make(map[int]core.SentimentResult)

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "```json")
		line = strings.TrimPrefix(line, "```")
		line = strings.TrimSuffix(line, "```")
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var parsed lineResult
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}

		idx := parsed.CommentIndex - 1
		if idx < 0 || idx >= batchLen {
			continue
		}

		sentiment, ok := parseSentiment(parsed.Sentiment)
		if !ok {
			continue
		}

		confidence := clamp01(parsed.Confidence)

		emotions := make([]core.Emotion, 0, len(parsed.Emotions))
		for _, e := range parsed.Emotions {
			if e.Name == "" {
				continue
			}
			emotions = append(emotions, core.Emotion{
				Name:  strings.ToLower(e.Name),
				Score: clamp01(e.Score),
			})
		}
		sort.Slice(emotions, func(i, j int) bool { return emotions[i].Score > emotions[j].Score })
		if len(emotions) > 3 {
			emotions = emotions[:3]
		}

		results[idx] = core.SentimentResult{
			Sentiment:  sentiment,
			Confidence: confidence,
			Emotions:   emotions,
		}
	}

	return results
}

func parseSentiment(s string) (core.Sentiment, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "POSITIVE":
		return core.SentimentPositive, true
	case "NEGATIVE":
		return core.SentimentNegative, true
	case "NEUTRAL":
		return core.SentimentNeutral, true
	}
	return "", false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
