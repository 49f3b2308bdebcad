package sentiment

import (
	"strings"

	"commentpulse/internal/core"
)

// positiveWords and negativeWords drive the lexicon fallback. Matching is on
// whole lowercased words after trimming basic punctuation.
var positiveWords = map[string]bool{
	"love": true, "great": true, "awesome": true, "amazing": true,
	"excellent": true, "fantastic": true, "good": true, "best": true,
	"helpful": true, "thanks": true, "thank": true, "perfect": true,
	"wonderful": true, "brilliant": true, "enjoyed": true, "nice": true,
	"beautiful": true, "impressive": true, "favorite": true, "fun": true,
	"clear": true, "useful": true, "informative": true,
}

var negativeWords = map[string]bool{
	"hate": true, "terrible": true, "awful": true, "horrible": true,
	"bad": true, "worst": true, "boring": true, "useless": true,
	"disappointing": true, "disappointed": true, "annoying": true,
	"waste": true, "confusing": true, "wrong": true, "poor": true,
	"misleading": true, "dislike": true, "ugly": true, "broken": true,
	"slow": true, "unwatchable": true,
}

// LexiconFallback scores text by counting positive versus negative keyword
// hits. Ties or zero hits yield NEUTRAL with confidence 0.3; each extra
// matching word on the winning side adds 0.1 confidence up to 0.6. The result
// carries a single matching emotion (joy for positive, anger for negative).
func LexiconFallback(text string) core.SentimentResult {
	var positive, negative int

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if positiveWords[word] {
			positive++
		}
		if negativeWords[word] {
			negative++
		}
	}

	if positive == negative {
		return core.SentimentResult{
			Sentiment:  core.SentimentNeutral,
			Confidence: 0.3,
			Emotions:   []core.Emotion{},
		}
	}

	margin := positive - negative
	sentiment := core.SentimentPositive
	emotion := "joy"
	if margin < 0 {
		margin = -margin
		sentiment = core.SentimentNegative
		emotion = "anger"
	}

	confidence := 0.3 + 0.1*float64(margin)
	if confidence > 0.6 {
		confidence = 0.6
	}

	return core.SentimentResult{
		Sentiment:  sentiment,
		Confidence: confidence,
		Emotions:   []core.Emotion{{Name: emotion, Score: confidence}},
	}
}
