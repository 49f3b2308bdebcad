// Package filter implements rule-based spam, toxicity and duplicate detection
// over comment batches. Detection is deterministic: no external calls.
package filter

import (
	"strings"

	"commentpulse/internal/core"
	"commentpulse/internal/textnorm"
)

// Options configures the comment filter heuristics.
type Options struct {
	// Spam heuristics
	UppercaseRatio      float64 // Fraction of uppercase letters that flags a comment as spam
	UppercaseMinLength  int     // Minimum text length before the uppercase check applies
	MinTextLength       int     // Comments shorter than this are spam
	RepetitionThreshold int     // A rune repeated this many times consecutively flags spam
	SpamKeywords        []string

	// Toxicity heuristics
	ToxicKeywords []string

	// Duplicate detection; near-duplicate threshold is heuristic and tunable,
	// not a fixed contract.
	DuplicateSimilarity float64
}

// DefaultOptions returns sensible defaults for comment filtering.
func DefaultOptions() Options {
	return Options{
		UppercaseRatio:      0.7,
		UppercaseMinLength:  10,
		MinTextLength:       3,
		RepetitionThreshold: 5,
		SpamKeywords: []string{
			"subscribe", "click here", "free money", "check out my channel",
			"follow me", "visit my profile", "giveaway", "promo code",
			"earn cash", "work from home", "dm me",
		},
		ToxicKeywords: []string{
			"kill yourself", "you are worthless", "go die", "nobody likes you",
			"you should die", "waste of space", "hate you", "stupid idiot",
		},
		DuplicateSimilarity: 0.9,
	}
}

// Filter classifies comments as spam, toxic or duplicates.
type Filter struct {
	options Options
}

// New creates a filter with the given options.
func New(options Options) *Filter {
	return &Filter{options: options}
}

// NewWithDefaults creates a filter with default options.
func NewWithDefaults() *Filter {
	return New(DefaultOptions())
}

// Filter partitions comments into filtered (kept), spam and toxic buckets.
// Evaluation order per comment is spam, toxicity, duplicate; the first match
// wins so no comment is double-counted. Duplicates are excluded from all
// buckets and tracked in Stats.Duplicate. The input slice elements are updated
// in place with IsFiltered/FilterReason for downstream consumers.
func (f *Filter) Filter(comments []core.Comment) *core.FilterResult {
	result := &core.FilterResult{
		FilteredComments: []core.Comment{},
		SpamComments:     []core.Comment{},
		ToxicComments:    []core.Comment{},
	}
	result.Stats.Total = len(comments)

	// Normalized texts and token sets of comments kept so far, for duplicate
	// detection within the batch.
	seenTexts := make(map[string]bool)
	var seenSets []map[string]struct{}

	for i := range comments {
		comment := &comments[i]

		if f.isSpam(comment.Text) {
			comment.IsFiltered = true
			comment.FilterReason = core.FilterReasonSpam
			result.SpamComments = append(result.SpamComments, *comment)
			result.Stats.Spam++
			continue
		}

		if f.isToxic(comment.Text) {
			comment.IsFiltered = true
			comment.FilterReason = core.FilterReasonToxic
			result.ToxicComments = append(result.ToxicComments, *comment)
			result.Stats.Toxic++
			continue
		}

		normalized := textnorm.Clean(comment.Text)
		tokens := textnorm.TokenSet(comment.Text)
		if f.isDuplicate(normalized, tokens, seenTexts, seenSets) {
			comment.IsFiltered = true
			comment.FilterReason = core.FilterReasonDuplicate
			result.DuplicateCount++
			result.Stats.Duplicate++
			continue
		}

		seenTexts[normalized] = true
		seenSets = append(seenSets, tokens)

		comment.IsFiltered = false
		comment.FilterReason = ""
		result.FilteredComments = append(result.FilteredComments, *comment)
		result.Stats.Filtered++
	}

	return result
}

// isSpam applies the spam heuristics; any single match flags the comment.
func (f *Filter) isSpam(text string) bool {
	trimmed := strings.TrimSpace(text)

	if len(trimmed) < f.options.MinTextLength {
		return true
	}

	if f.uppercaseRatio(trimmed) > f.options.UppercaseRatio && len(trimmed) >= f.options.UppercaseMinLength {
		return true
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "http://") || strings.Contains(lower, "https://") || strings.Contains(lower, "www.") {
		return true
	}

	for _, keyword := range f.options.SpamKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	if f.hasExcessiveRepetition(trimmed) {
		return true
	}

	return false
}

// isToxic checks for curated toxic keywords with case-insensitive matching.
func (f *Filter) isToxic(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range f.options.ToxicKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// isDuplicate reports whether normalized text matches an earlier kept comment
// exactly or exceeds the Jaccard similarity threshold against one.
func (f *Filter) isDuplicate(normalized string, tokens map[string]struct{}, seenTexts map[string]bool, seenSets []map[string]struct{}) bool {
	if seenTexts[normalized] {
		return true
	}

	if len(tokens) == 0 {
		// All-stop-word comments have empty token sets; only the exact-match
		// path above applies to them.
		return false
	}

	for _, seen := range seenSets {
		if Jaccard(tokens, seen) >= f.options.DuplicateSimilarity {
			return true
		}
	}

	return false
}

// uppercaseRatio returns the fraction of letters that are uppercase.
func (f *Filter) uppercaseRatio(text string) float64 {
	var letters, upper int
	for _, r := range text {
		if r >= 'a' && r <= 'z' {
			letters++
		} else if r >= 'A' && r <= 'Z' {
			letters++
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// hasExcessiveRepetition detects a rune repeated beyond the threshold.
func (f *Filter) hasExcessiveRepetition(text string) bool {
	if f.options.RepetitionThreshold <= 1 {
		return false
	}

	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run >= f.options.RepetitionThreshold {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// Jaccard computes set intersection over union for two token sets.
// Two empty sets are considered identical (similarity 1).
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
