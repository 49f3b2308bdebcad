package summary

import (
	"fmt"
	"regexp"
	"strings"

	"commentpulse/internal/core"
)

// percentRe matches percentage figures like "42%" or "42.5%".
var percentRe = regexp.MustCompile(`\d+(\.\d+)?%`)

// ValidationReport is the post-generation assessment of a summary. Its quality
// score is distinct from the generation-time score on GeneratedSummary.
type ValidationReport struct {
	Valid        bool     `json:"valid"`
	Issues       []string `json:"issues"`
	QualityScore float64  `json:"quality_score"`
}

// ValidateSummary checks a generated summary against the target word range,
// the presence of at least one percentage figure, and the emotion prevalence
// cap. Each issue subtracts from the quality score.
func ValidateSummary(s *core.GeneratedSummary, minWords, maxWords int) *ValidationReport {
	if minWords <= 0 {
		minWords = 75
	}
	if maxWords <= 0 {
		maxWords = 150
	}

	report := &ValidationReport{Valid: true, Issues: []string{}, QualityScore: 1.0}

	wordCount := len(strings.Fields(s.Text))
	if wordCount < minWords {
		report.Issues = append(report.Issues, fmt.Sprintf("summary too short: %d words (minimum: %d)", wordCount, minWords))
		report.QualityScore -= 0.3
	} else if wordCount > maxWords {
		report.Issues = append(report.Issues, fmt.Sprintf("summary too long: %d words (maximum: %d)", wordCount, maxWords))
		report.QualityScore -= 0.2
	}

	if !containsPercentage(s.Text) {
		report.Issues = append(report.Issues, "summary contains no percentage figure")
		report.QualityScore -= 0.3
	}

	var prevalenceSum float64
	for _, emotion := range s.Emotions {
		prevalenceSum += emotion.Score
	}
	if prevalenceSum > 100.0001 {
		report.Issues = append(report.Issues, fmt.Sprintf("emotion prevalence sums to %.1f, exceeding 100", prevalenceSum))
		report.QualityScore -= 0.2
	}

	if report.QualityScore < 0 {
		report.QualityScore = 0
	}
	report.Valid = len(report.Issues) == 0

	return report
}

func containsPercentage(text string) bool {
	return percentRe.MatchString(text)
}
