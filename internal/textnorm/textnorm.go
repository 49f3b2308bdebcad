// Package textnorm provides deterministic text cleaning and tokenization
// shared by the filter and theme stages. All functions are pure.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

const minTokenLength = 3

var whitespaceRe = regexp.MustCompile(`\s+`)

// Clean lowercases text, strips punctuation and control characters, and
// collapses runs of whitespace into single spaces.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			// Punctuation and control characters become separators so that
			// "great,video" tokenizes into two words.
			b.WriteRune(' ')
		}
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
}

// Tokenize cleans text and splits it into tokens, dropping stop words and
// tokens shorter than the minimum length.
func Tokenize(text string) []string {
	fields := strings.Fields(Clean(text))

	tokens := make([]string, 0, len(fields))
	for _, word := range fields {
		if len(word) < minTokenLength {
			continue
		}
		if stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// TokenSet returns the unique tokens of text as a set, for similarity math.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range Tokenize(text) {
		set[token] = struct{}{}
	}
	return set
}

// IsStopWord reports whether a lowercased word is in the stop-word set.
func IsStopWord(word string) bool {
	return stopWords[word]
}

// stopWords is a set of common English stop words excluded from tokens.
var stopWords = func() map[string]bool {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "were", "will", "with", "this", "but", "they",
		"have", "had", "what", "said", "each", "which", "she", "do", "how",
		"their", "if", "up", "out", "many", "then", "them", "these", "so",
		"some", "her", "would", "make", "like", "into", "him", "time", "two",
		"you", "your", "not", "can", "all", "just", "about", "more", "very",
		"really", "get", "got", "dont", "its", "was", "when", "who",
	}

	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}()
