// Package summary synthesizes the narrative audience report from sentiment
// breakdown, themes and keywords via external text generation, with a
// templated fallback when the provider is unavailable.
package summary

import (
	"context"
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

// Input carries the aggregate data the summary is written from.
type Input struct {
	SentimentBreakdown core.SentimentBreakdown
	Themes             []core.ThemeCluster
	Keywords           []core.KeywordData
	TotalComments      int
	FilteredComments   int
}

// Options configures the summary stage.
type Options struct {
	MaxRetries     int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	MaxThemes      int // Themes included in the prompt and insights
	MaxKeywords    int // Keywords included in the prompt

	Sleep retryutil.Sleeper // Nil uses the default sleeper
}

// DefaultOptions returns sensible defaults for summary generation.
func DefaultOptions() Options {
	return Options{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		AttemptTimeout: 30 * time.Second,
		MaxThemes:      5,
		MaxKeywords:    10,
	}
}

// Generator is the summary stage.
type Generator struct {
	generator TextGenerator
	options   Options
}

// New creates a summary generator.
func New(generator TextGenerator, options Options) *Generator {
	return &Generator{generator: generator, options: options}
}

// NewWithDefaults creates a summary generator with default options.
func NewWithDefaults(generator TextGenerator) *Generator {
	return New(generator, DefaultOptions())
}

const promptTemplate = `Write a narrative summary of audience reaction to a piece of content, based on analyzed comments.

Sentiment breakdown: %.0f%% positive, %.0f%% negative, %.0f%% neutral (%d comments analyzed of %d total).

Top themes:
%s
Top keywords: %s

Requirements:
- 75 to 150 words of plain prose, no markdown, no bullet points.
- Mention the overall sentiment split with percentages.
- Name the most discussed themes and what the audience said about them.
- Close with one sentence on the overall audience mood.`

// Generate produces the narrative summary. Zero non-filtered comments returns
// a fixed no-data summary without any external call; generation failure after
// retries degrades to a template built from the breakdown numbers.
func (g *Generator) Generate(ctx context.Context, input Input) (*core.GeneratedSummary, error) {
	if input.FilteredComments == 0 {
		return emptySummary(), nil
	}

	prompt := g.buildPrompt(input)

	policy := retryutil.DefaultPolicy()
	policy.MaxAttempts = g.options.MaxRetries
	policy.BaseDelay = g.options.BaseDelay
	policy.Sleep = g.options.Sleep

	var response string
	err := retryutil.Do(ctx, policy, func(ctx context.Context) error {
		attemptCtx := ctx
		if g.options.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, g.options.AttemptTimeout)
			defer cancel()
		}
		var genErr error
		response, genErr = g.generator.GenerateText(attemptCtx, prompt)
		return genErr
	})

	if err != nil {
		logger.Warn("Summary generation failed after retries, using template fallback", "error", err.Error())
		return g.fallbackSummary(input), nil
	}

	text := cleanGeneratedText(response)

	result := &core.GeneratedSummary{
		Text:            text,
		Emotions:        deriveEmotions(input.Themes),
		KeyInsights:     deriveInsights(input.Themes, g.options.MaxThemes),
		Recommendations: deriveRecommendations(input.Themes),
		WordCount:       len(strings.Fields(text)),
	}
	result.QualityScore = qualityScore(result, input)

	return result, nil
}

// buildPrompt embeds sentiment percentages, top themes and top keywords.
func (g *Generator) buildPrompt(input Input) string {
	pos, neg, neu := percentages(input.SentimentBreakdown)

	var themeList strings.Builder
	for i, theme := range input.Themes {
		if i >= g.options.MaxThemes {
			break
		}
		themeList.WriteString(fmt.Sprintf("- %s (%d comments, %s)\n", theme.Name, theme.Frequency, strings.ToLower(string(theme.Sentiment))))
	}
	if themeList.Len() == 0 {
		themeList.WriteString("- (no recurring themes detected)\n")
	}

	keywords := make([]string, 0, g.options.MaxKeywords)
	for i, kw := range input.Keywords {
		if i >= g.options.MaxKeywords {
			break
		}
		keywords = append(keywords, kw.Word)
	}

	return fmt.Sprintf(promptTemplate,
		pos, neg, neu,
		input.FilteredComments, input.TotalComments,
		themeList.String(),
		strings.Join(keywords, ", "))
}

// fallbackSummary builds a degraded summary purely from the breakdown numbers.
// It always carries the literal percentages and a mixed-reception phrasing,
// and a fixed lower quality score to signal reduced confidence.
func (g *Generator) fallbackSummary(input Input) *core.GeneratedSummary {
	pos, neg, neu := percentages(input.SentimentBreakdown)

	text := fmt.Sprintf(
		"Audience reaction was mixed across %d analyzed comments. "+
			"%.0f%% of commenters responded positively, %.0f%% negatively, and %.0f%% were neutral. "+
			"The balance of opinions suggests a mixed overall reception, with pockets of both enthusiasm and criticism. "+
			"A detailed narrative could not be generated for this run, so this summary reflects the sentiment numbers only.",
		input.FilteredComments, pos, neg, neu)

	result := &core.GeneratedSummary{
		Text:            text,
		Emotions:        deriveEmotions(input.Themes),
		KeyInsights:     deriveInsights(input.Themes, g.options.MaxThemes),
		Recommendations: deriveRecommendations(input.Themes),
		QualityScore:    0.4,
		WordCount:       len(strings.Fields(text)),
		UsedFallback:    true,
	}
	return result
}

// emptySummary is the fixed zero-comment response; no external call is made.
func emptySummary() *core.GeneratedSummary {
	const text = "No comments available for analysis."
	return &core.GeneratedSummary{
		Text:        text,
		Emotions:    []core.Emotion{},
		KeyInsights: []string{"No comment data available"},
		Recommendations: []string{
			"Encourage viewers to leave comments",
			"Re-run the analysis once comments have accumulated",
		},
		QualityScore: 0.5,
		WordCount:    len(strings.Fields(text)),
	}
}

// cleanGeneratedText trims the response and strips common markdown artifacts.
func cleanGeneratedText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	replacer := strings.NewReplacer("**", "", "__", "", "##", "", "# ", "", "• ", "")
	text = replacer.Replace(text)

	return strings.TrimSpace(text)
}

// deriveEmotions infers an emotion per theme sentiment with prevalence
// proportional to theme frequency, capped at 100 total.
func deriveEmotions(themes []core.ThemeCluster) []core.Emotion {
	if len(themes) == 0 {
		return []core.Emotion{}
	}

	var totalFrequency int
	for _, theme := range themes {
		totalFrequency += theme.Frequency
	}
	if totalFrequency == 0 {
		return []core.Emotion{}
	}

	prevalence := make(map[string]float64)
	for _, theme := range themes {
		share := 100 * float64(theme.Frequency) / float64(totalFrequency)
		switch theme.Sentiment {
		case core.SentimentPositive:
			prevalence["joy"] += share
		case core.SentimentNegative:
			prevalence["anger"] += share / 2
			prevalence["sadness"] += share / 2
		default:
			prevalence["trust"] += share
		}
	}

	emotions := make([]core.Emotion, 0, len(prevalence))
	var sum float64
	for name, value := range prevalence {
		emotions = append(emotions, core.Emotion{Name: name, Score: value})
		sum += value
	}

	// Rounding can nudge the shares past the cap.
	if sum > 100 {
		for i := range emotions {
			emotions[i].Score = emotions[i].Score * 100 / sum
		}
	}

	sort.Slice(emotions, func(i, j int) bool { return emotions[i].Score > emotions[j].Score })
	return emotions
}

// deriveInsights emits one bullet per top theme naming it and its sentiment.
func deriveInsights(themes []core.ThemeCluster, max int) []string {
	insights := make([]string, 0, max)
	for i, theme := range themes {
		if i >= max {
			break
		}
		insights = append(insights, fmt.Sprintf("%q drew %d comments with %s sentiment",
			theme.Name, theme.Frequency, strings.ToLower(string(theme.Sentiment))))
	}
	if len(insights) == 0 {
		insights = append(insights, "No recurring discussion themes were detected")
	}
	return insights
}

// deriveRecommendations builds at most 3 recommendations from the
// lowest-coherence and most-negative themes.
func deriveRecommendations(themes []core.ThemeCluster) []string {
	var recs []string

	var mostNegative *core.ThemeCluster
	var leastCoherent *core.ThemeCluster
	for i := range themes {
		theme := &themes[i]
		if theme.Sentiment == core.SentimentNegative && (mostNegative == nil || theme.Frequency > mostNegative.Frequency) {
			mostNegative = theme
		}
		if leastCoherent == nil || theme.CoherenceScore < leastCoherent.CoherenceScore {
			leastCoherent = theme
		}
	}

	if mostNegative != nil {
		recs = append(recs, fmt.Sprintf("Address the criticism around %q raised in %d comments", mostNegative.Name, mostNegative.Frequency))
	}
	if leastCoherent != nil && (mostNegative == nil || leastCoherent.ID != mostNegative.ID) {
		recs = append(recs, fmt.Sprintf("Review the loosely related discussion under %q for emerging topics", leastCoherent.Name))
	}
	recs = append(recs, "Engage with commenters on the most active themes to sustain discussion")

	if len(recs) > 3 {
		recs = recs[:3]
	}
	return recs
}

// qualityScore is a generation-time heuristic: full-length summaries carrying
// percentage figures score highest.
func qualityScore(s *core.GeneratedSummary, input Input) float64 {
	score := 1.0

	if s.WordCount < 75 || s.WordCount > 150 {
		score -= 0.2
	}
	if !containsPercentage(s.Text) {
		score -= 0.2
	}
	if len(input.Themes) > 0 {
		mentioned := false
		for _, theme := range input.Themes {
			for _, kw := range theme.Keywords {
				if strings.Contains(strings.ToLower(s.Text), kw) {
					mentioned = true
					break
				}
			}
		}
		if !mentioned {
			score -= 0.1
		}
	}

	if score < 0 {
		score = 0
	}
	return score
}

// percentages converts a breakdown into positive/negative/neutral percent
// values; an empty breakdown yields all zeros.
func percentages(b core.SentimentBreakdown) (pos, neg, neu float64) {
	total := float64(b.Total())
	if total == 0 {
		return 0, 0, 0
	}
	return 100 * float64(b.Positive) / total,
		100 * float64(b.Negative) / total,
		100 * float64(b.Neutral) / total
}
