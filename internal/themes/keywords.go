package themes

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"commentpulse/internal/core"
	"commentpulse/internal/textnorm"
)

// extractKeywords computes TF-IDF weighted keywords over the comment corpus.
// Each comment is one document. Terms below the frequency minimum are dropped;
// results are sorted by TF-IDF descending and truncated to maxKeywords.
func extractKeywords(comments []core.Comment, sentiments []core.SentimentResult, opts Options) []core.KeywordData {
	if len(comments) == 0 {
		return []core.KeywordData{}
	}

	termFreq := make(map[string]int)   // Corpus-wide occurrences
	docFreq := make(map[string]int)    // Number of comments containing the term
	termDocs := make(map[string][]int) // Comment indices containing the term

	for i, comment := range comments {
		tokens := textnorm.Tokenize(comment.Text)
		seen := make(map[string]bool)
		for _, token := range tokens {
			termFreq[token]++
			if !seen[token] {
				seen[token] = true
				docFreq[token]++
				termDocs[token] = append(termDocs[token], i)
			}
		}
	}

	totalDocs := float64(len(comments))
	keywords := make([]core.KeywordData, 0, len(termFreq))

	for term, freq := range termFreq {
		if freq < opts.MinKeywordFrequency {
			continue
		}

		tfidf := float64(freq) * math.Log(totalDocs/float64(docFreq[term]))
		if tfidf <= 0 {
			// Terms present in every document carry no discriminative weight;
			// keep a small positive floor so frequency still ranks them.
			tfidf = float64(freq) * 0.01
		}

		sentiment, score := majorityTermSentiment(termDocs[term], sentiments)

		keywords = append(keywords, core.KeywordData{
			Word:           term,
			Frequency:      freq,
			Sentiment:      sentiment,
			Contexts:       collectContexts(term, termDocs[term], comments, opts.MaxKeywordContexts),
			TFIDFScore:     tfidf,
			SentimentScore: score,
		})
	}

	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].TFIDFScore != keywords[j].TFIDFScore {
			return keywords[i].TFIDFScore > keywords[j].TFIDFScore
		}
		return keywords[i].Word < keywords[j].Word
	})

	if len(keywords) > opts.MaxKeywords {
		keywords = keywords[:opts.MaxKeywords]
	}

	return keywords
}

// majorityTermSentiment votes over the sentiments of comments containing the
// term. Comments without a positionally aligned sentiment count as NEUTRAL.
func majorityTermSentiment(docIndices []int, sentiments []core.SentimentResult) (core.Sentiment, float64) {
	var positive, negative, neutral int
	for _, idx := range docIndices {
		switch sentimentAt(sentiments, idx) {
		case core.SentimentPositive:
			positive++
		case core.SentimentNegative:
			negative++
		default:
			neutral++
		}
	}

	total := positive + negative + neutral
	var score float64
	if total > 0 {
		score = float64(positive-negative) / float64(total)
	}

	switch {
	case positive > negative && positive > neutral:
		return core.SentimentPositive, score
	case negative > positive && negative > neutral:
		return core.SentimentNegative, score
	default:
		return core.SentimentNeutral, score
	}
}

// collectContexts gathers up to max surrounding snippets for a term.
func collectContexts(term string, docIndices []int, comments []core.Comment, max int) []string {
	contexts := make([]string, 0, max)
	for _, idx := range docIndices {
		if len(contexts) >= max {
			break
		}
		contexts = append(contexts, snippetAround(comments[idx].Text, term))
	}
	return contexts
}

// snippetAround returns a short window of the original text centered on the
// first occurrence of the term.
func snippetAround(text, term string) string {
	const window = 40

	lower := strings.ToLower(text)
	pos := strings.Index(lower, term)
	if pos < 0 {
		if len(text) > 2*window {
			return text[:snapToRune(text, 2*window)]
		}
		return text
	}

	start := snapToRune(text, pos-window)
	end := snapToRune(text, pos+len(term)+window)

	return strings.TrimSpace(text[start:end])
}

// snapToRune clamps a byte offset into text and backs it up onto a rune
// boundary, so window slicing never splits a multi-byte rune.
func snapToRune(text string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(text) {
		return len(text)
	}
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// sentimentAt returns the sentiment aligned with a comment index, or NEUTRAL
// when the sentiment slice is shorter than the comment list.
func sentimentAt(sentiments []core.SentimentResult, idx int) core.Sentiment {
	if idx < 0 || idx >= len(sentiments) {
		return core.SentimentNeutral
	}
	return sentiments[idx].Sentiment
}
