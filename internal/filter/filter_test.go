package filter

import (
	"strings"
	"testing"

	"commentpulse/internal/core"
)

func makeComments(texts ...string) []core.Comment {
	comments := make([]core.Comment, len(texts))
	for i, text := range texts {
		comments[i] = core.Comment{
			ID:        string(rune('a' + i)),
			ContentID: "content-1",
			Text:      text,
		}
	}
	return comments
}

func TestFilterPartitionsEveryComment(t *testing.T) {
	comments := makeComments(
		"The editing in this video is fantastic",
		"SUBSCRIBE TO MY CHANNEL FOR FREE MONEY",
		"you are worthless, stupid idiot",
		"The editing in this video is fantastic", // exact duplicate
		"ok",                                     // too short
		"I learned a lot from the tutorial section",
	)

	result := NewWithDefaults().Filter(comments)

	stats := result.Stats
	if got := stats.Spam + stats.Toxic + stats.Filtered + stats.Duplicate; got != stats.Total {
		t.Errorf("buckets sum to %d, want total %d", got, stats.Total)
	}
	if stats.Total != len(comments) {
		t.Errorf("Stats.Total = %d, want %d", stats.Total, len(comments))
	}
	if stats.Filtered != 2 {
		t.Errorf("Stats.Filtered = %d, want 2", stats.Filtered)
	}
	if stats.Spam != 2 {
		t.Errorf("Stats.Spam = %d, want 2", stats.Spam)
	}
	if stats.Toxic != 1 {
		t.Errorf("Stats.Toxic = %d, want 1", stats.Toxic)
	}
	if stats.Duplicate != 1 {
		t.Errorf("Stats.Duplicate = %d, want 1", stats.Duplicate)
	}
	if result.DuplicateCount != 1 {
		t.Errorf("DuplicateCount = %d, want 1", result.DuplicateCount)
	}
}

func TestFilterSpamHeuristics(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"too short", "hi"},
		{"mostly uppercase", "THIS VIDEO IS ABSOLUTELY AMAZING WOW"},
		{"contains url", "great video, see https://example.com/offer"},
		{"spam keyword", "Check out my channel for more"},
		{"excessive repetition", "soooooo good"},
		{"one character repeated thousands of times", strings.Repeat("a", 6000)},
	}

	f := NewWithDefaults()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Filter(makeComments(tt.text))
			if result.Stats.Spam != 1 {
				t.Errorf("expected %q to be spam, stats: %+v", tt.text, result.Stats)
			}
			if len(result.SpamComments) != 1 {
				t.Fatalf("expected 1 spam comment, got %d", len(result.SpamComments))
			}
			if result.SpamComments[0].FilterReason != core.FilterReasonSpam {
				t.Errorf("FilterReason = %q, want %q",
					result.SpamComments[0].FilterReason, core.FilterReasonSpam)
			}
		})
	}
}

func TestFilterToxicDetection(t *testing.T) {
	result := NewWithDefaults().Filter(makeComments("honestly, HATE YOU and everything you make"))

	if result.Stats.Toxic != 1 {
		t.Fatalf("expected toxic match, stats: %+v", result.Stats)
	}
	if result.ToxicComments[0].FilterReason != core.FilterReasonToxic {
		t.Errorf("FilterReason = %q, want %q",
			result.ToxicComments[0].FilterReason, core.FilterReasonToxic)
	}
}

func TestFilterNearDuplicates(t *testing.T) {
	comments := makeComments(
		"the editing pacing lighting framing sound mixing here impressed everyone",
		"the editing pacing lighting framing sound mixing here impressed everybody",
	)

	f := New(Options{
		MinTextLength:       3,
		UppercaseRatio:      0.7,
		UppercaseMinLength:  10,
		RepetitionThreshold: 5,
		DuplicateSimilarity: 0.7,
	})
	result := f.Filter(comments)

	if result.Stats.Filtered != 1 || result.Stats.Duplicate != 1 {
		t.Errorf("expected 1 kept and 1 duplicate, stats: %+v", result.Stats)
	}
}

func TestFilterMarksInputInPlace(t *testing.T) {
	comments := makeComments("SUBSCRIBE NOW for free money", "the tutorial pacing felt right")

	NewWithDefaults().Filter(comments)

	if !comments[0].IsFiltered {
		t.Error("expected spam comment to be marked filtered")
	}
	if comments[1].IsFiltered {
		t.Error("expected kept comment to remain unfiltered")
	}
	if comments[1].FilterReason != "" {
		t.Errorf("kept comment FilterReason = %q, want empty", comments[1].FilterReason)
	}
}

func TestFilterEmptyInput(t *testing.T) {
	result := NewWithDefaults().Filter(nil)

	if result.Stats.Total != 0 {
		t.Errorf("Stats.Total = %d, want 0", result.Stats.Total)
	}
	if len(result.FilteredComments) != 0 {
		t.Errorf("expected no kept comments, got %d", len(result.FilteredComments))
	}
}

func TestJaccard(t *testing.T) {
	set := func(words ...string) map[string]struct{} {
		s := make(map[string]struct{}, len(words))
		for _, w := range words {
			s[w] = struct{}{}
		}
		return s
	}

	tests := []struct {
		name string
		a, b map[string]struct{}
		want float64
	}{
		{"identical", set("x", "y"), set("x", "y"), 1.0},
		{"disjoint", set("x"), set("y"), 0.0},
		{"half overlap", set("x", "y", "z"), set("x", "y", "w"), 0.5},
		{"both empty", set(), set(), 1.0},
		{"one empty", set("x"), set(), 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jaccard(tt.a, tt.b); got != tt.want {
				t.Errorf("Jaccard = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterAllStopWordCommentsNotCrossMatched(t *testing.T) {
	// Comments whose tokens are all stop words have empty token sets and must
	// only collide on exact normalized text.
	comments := makeComments("and the but", "out of the")

	result := NewWithDefaults().Filter(comments)

	if result.Stats.Filtered != 2 {
		t.Errorf("expected both kept, stats: %+v", result.Stats)
	}
}
