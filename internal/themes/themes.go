// Package themes extracts TF-IDF keywords from filtered comments and groups
// them into theme clusters via Jaccard-similarity greedy clustering. The whole
// stage is deterministic; no external calls.
package themes

import (
	"fmt"
	"sort"
	"strings"

	"commentpulse/internal/core"
	"commentpulse/internal/filter"
	"commentpulse/internal/textnorm"

	"github.com/google/uuid"
)

// Options configures keyword extraction and clustering.
type Options struct {
	MinKeywordFrequency int     // Minimum corpus frequency for a keyword
	MaxKeywords         int     // Keyword list cap
	MaxKeywordContexts  int     // Context snippets kept per keyword
	SimilarityThreshold float64 // Average similarity needed to join a cluster
	MaxClusters         int     // Hard cap on cluster count
	MinClusterSize      int     // Clusters smaller than this are discarded
}

// DefaultOptions returns sensible defaults for theme analysis.
func DefaultOptions() Options {
	return Options{
		MinKeywordFrequency: 2,
		MaxKeywords:         20,
		MaxKeywordContexts:  3,
		SimilarityThreshold: 0.3,
		MaxClusters:         10,
		MinClusterSize:      2,
	}
}

// Summary holds aggregate statistics for a theme analysis.
type Summary struct {
	TotalThemes       int            `json:"total_themes"`
	TotalKeywords     int            `json:"total_keywords"`
	AverageCoherence  float64        `json:"average_coherence"`
	DominantSentiment core.Sentiment `json:"dominant_sentiment"`
}

// Result is the output of the theme stage.
type Result struct {
	Themes   []core.ThemeCluster `json:"themes"`
	Keywords []core.KeywordData  `json:"keywords"`
	Summary  Summary             `json:"summary"`
}

// Analyzer is the theme stage.
type Analyzer struct {
	options Options
}

// New creates a theme analyzer with the given options.
func New(options Options) *Analyzer {
	return &Analyzer{options: options}
}

// NewWithDefaults creates a theme analyzer with default options.
func NewWithDefaults() *Analyzer {
	return New(DefaultOptions())
}

// AnalyzeThemes clusters filtered comments into themes and extracts keywords.
// A sentiment slice shorter than the comment list never crashes the stage;
// unmatched comments count as NEUTRAL.
func (a *Analyzer) AnalyzeThemes(comments []core.Comment, sentiments []core.SentimentResult) (*Result, error) {
	result := &Result{
		Themes:   []core.ThemeCluster{},
		Keywords: []core.KeywordData{},
	}
	result.Summary.DominantSentiment = core.SentimentNeutral

	if len(comments) == 0 {
		return result, nil
	}

	result.Keywords = extractKeywords(comments, sentiments, a.options)

	matrix := similarityMatrix(comments)
	clusters := a.cluster(matrix)

	for _, members := range clusters {
		if len(members) < a.options.MinClusterSize {
			continue
		}
		result.Themes = append(result.Themes, a.buildTheme(members, comments, sentiments, matrix, result.Keywords))
	}

	result.Summary.TotalThemes = len(result.Themes)
	result.Summary.TotalKeywords = len(result.Keywords)
	result.Summary.AverageCoherence = meanCoherence(result.Themes)
	result.Summary.DominantSentiment = dominantSentiment(comments, sentiments)

	return result, nil
}

// similarityMatrix computes the symmetric pairwise Jaccard similarity over
// normalized token sets. O(n^2), acceptable for per-post comment caps.
func similarityMatrix(comments []core.Comment) [][]float64 {
	sets := make([]map[string]struct{}, len(comments))
	for i, comment := range comments {
		sets[i] = textnorm.TokenSet(comment.Text)
	}

	matrix := make([][]float64, len(comments))
	for i := range matrix {
		matrix[i] = make([]float64, len(comments))
		matrix[i][i] = 1.0
	}

	for i := 0; i < len(comments); i++ {
		for j := i + 1; j < len(comments); j++ {
			sim := filter.Jaccard(sets[i], sets[j])
			matrix[i][j] = sim
			matrix[j][i] = sim
		}
	}

	return matrix
}

// cluster performs single-pass greedy threshold clustering: each comment joins
// the first cluster whose average similarity to its members exceeds the
// threshold, otherwise it starts a new cluster while the cap allows. Comments
// that match nothing once the cap is reached stay unclustered.
func (a *Analyzer) cluster(matrix [][]float64) [][]int {
	var clusters [][]int

	for i := range matrix {
		assigned := false
		for c := range clusters {
			var total float64
			for _, member := range clusters[c] {
				total += matrix[i][member]
			}
			if total/float64(len(clusters[c])) > a.options.SimilarityThreshold {
				clusters[c] = append(clusters[c], i)
				assigned = true
				break
			}
		}

		if !assigned && len(clusters) < a.options.MaxClusters {
			clusters = append(clusters, []int{i})
		}
	}

	return clusters
}

// buildTheme assembles cluster metadata: name from top keywords, majority
// sentiment, coherence and representative comments.
func (a *Analyzer) buildTheme(members []int, comments []core.Comment, sentiments []core.SentimentResult, matrix [][]float64, keywords []core.KeywordData) core.ThemeCluster {
	memberComments := make([]core.Comment, len(members))
	for i, idx := range members {
		memberComments[i] = comments[idx]
	}

	themeKeywords := clusterKeywords(memberComments, keywords)

	theme := core.ThemeCluster{
		ID:             uuid.NewString(),
		Name:           themeName(themeKeywords),
		Comments:       memberComments,
		Sentiment:      majoritySentiment(members, sentiments),
		Frequency:      len(memberComments),
		Keywords:       themeKeywords,
		CoherenceScore: coherence(members, matrix),
	}
	theme.RepresentativeComments = representatives(members, comments, matrix)

	return theme
}

// clusterKeywords selects the corpus keywords that occur in the cluster's
// comments, keeping the global TF-IDF ordering.
func clusterKeywords(memberComments []core.Comment, keywords []core.KeywordData) []string {
	memberTokens := make(map[string]struct{})
	for _, comment := range memberComments {
		for token := range textnorm.TokenSet(comment.Text) {
			memberTokens[token] = struct{}{}
		}
	}

	var selected []string
	for _, kw := range keywords {
		if _, ok := memberTokens[kw.Word]; ok {
			selected = append(selected, kw.Word)
		}
		if len(selected) >= 5 {
			break
		}
	}

	return selected
}

// themeName derives a display name from the top one or two keywords, falling
// back to a generic label when the cluster has none.
func themeName(keywords []string) string {
	switch {
	case len(keywords) >= 2:
		return fmt.Sprintf("%s & %s", titleWord(keywords[0]), titleWord(keywords[1]))
	case len(keywords) == 1:
		return titleWord(keywords[0])
	default:
		return "Miscellaneous Discussion"
	}
}

func titleWord(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

// majoritySentiment votes over member sentiments; ties resolve to NEUTRAL.
func majoritySentiment(members []int, sentiments []core.SentimentResult) core.Sentiment {
	var positive, negative, neutral int
	for _, idx := range members {
		switch sentimentAt(sentiments, idx) {
		case core.SentimentPositive:
			positive++
		case core.SentimentNegative:
			negative++
		default:
			neutral++
		}
	}

	switch {
	case positive > negative && positive > neutral:
		return core.SentimentPositive
	case negative > positive && negative > neutral:
		return core.SentimentNegative
	default:
		return core.SentimentNeutral
	}
}

// coherence is the mean pairwise similarity among cluster members. Singleton
// clusters score 0: with no pairs there is no internal agreement to measure.
func coherence(members []int, matrix [][]float64) float64 {
	if len(members) < 2 {
		return 0.0
	}

	var total float64
	var pairs int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			total += matrix[members[i]][members[j]]
			pairs++
		}
	}

	return total / float64(pairs)
}

// representatives picks up to 3 members with the highest average similarity to
// the rest of the cluster.
func representatives(members []int, comments []core.Comment, matrix [][]float64) []core.Comment {
	type scored struct {
		idx int
		avg float64
	}

	scoredMembers := make([]scored, 0, len(members))
	for _, i := range members {
		var total float64
		for _, j := range members {
			if i != j {
				total += matrix[i][j]
			}
		}
		avg := 0.0
		if len(members) > 1 {
			avg = total / float64(len(members)-1)
		}
		scoredMembers = append(scoredMembers, scored{idx: i, avg: avg})
	}

	sort.SliceStable(scoredMembers, func(a, b int) bool {
		return scoredMembers[a].avg > scoredMembers[b].avg
	})

	limit := 3
	if len(scoredMembers) < limit {
		limit = len(scoredMembers)
	}

	reps := make([]core.Comment, 0, limit)
	for _, s := range scoredMembers[:limit] {
		reps = append(reps, comments[s.idx])
	}
	return reps
}

// meanCoherence averages coherence across themes.
func meanCoherence(themes []core.ThemeCluster) float64 {
	if len(themes) == 0 {
		return 0.0
	}
	var total float64
	for _, theme := range themes {
		total += theme.CoherenceScore
	}
	return total / float64(len(themes))
}

// dominantSentiment is the majority sentiment across all filtered comments;
// ties resolve to NEUTRAL.
func dominantSentiment(comments []core.Comment, sentiments []core.SentimentResult) core.Sentiment {
	members := make([]int, len(comments))
	for i := range comments {
		members[i] = i
	}
	return majoritySentiment(members, sentiments)
}
