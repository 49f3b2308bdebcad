package sentiment

import "commentpulse/internal/core"

// ValidationReport is an advisory quality assessment of a batch result. It
// never fails the stage; callers use it for diagnostics.
type ValidationReport struct {
	Issues       []string `json:"issues"`
	QualityScore float64  `json:"quality_score"` // 0.0 to 1.0
}

// Validate flags suspicious batch results: count mismatch with the input, low
// average confidence, a large low-confidence share, a near-unanimous sentiment
// class, or many results without emotions. Each issue subtracts a weighted
// penalty from a starting score of 1, floored at 0.
func Validate(results []core.SentimentResult, expected int) *ValidationReport {
	report := &ValidationReport{Issues: []string{}, QualityScore: 1.0}

	if len(results) != expected {
		report.Issues = append(report.Issues, "result count does not match input count")
		report.QualityScore -= 0.4
	}

	if len(results) == 0 {
		if report.QualityScore < 0 {
			report.QualityScore = 0
		}
		return report
	}

	var confidenceSum float64
	var lowConfidence, zeroEmotions int
	classCounts := map[core.Sentiment]int{}

	for _, r := range results {
		confidenceSum += r.Confidence
		if r.Confidence < 0.3 {
			lowConfidence++
		}
		if len(r.Emotions) == 0 {
			zeroEmotions++
		}
		classCounts[r.Sentiment]++
	}

	n := float64(len(results))

	if confidenceSum/n < 0.5 {
		report.Issues = append(report.Issues, "average confidence below 0.5")
		report.QualityScore -= 0.2
	}

	if float64(lowConfidence)/n > 0.4 {
		report.Issues = append(report.Issues, "more than 40% of results have confidence below 0.3")
		report.QualityScore -= 0.2
	}

	for _, count := range classCounts {
		if float64(count)/n > 0.95 {
			report.Issues = append(report.Issues, "one sentiment class exceeds 95% of results")
			report.QualityScore -= 0.1
			break
		}
	}

	if float64(zeroEmotions)/n > 0.3 {
		report.Issues = append(report.Issues, "more than 30% of results carry zero emotions")
		report.QualityScore -= 0.1
	}

	if report.QualityScore < 0 {
		report.QualityScore = 0
	}

	return report
}
