package core

import "time"

// Sentiment is the discrete sentiment category assigned to a comment.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

// FilterReason records why a comment was excluded by the filter stage.
type FilterReason string

const (
	FilterReasonSpam      FilterReason = "spam"
	FilterReasonToxic     FilterReason = "toxic"
	FilterReasonDuplicate FilterReason = "duplicate"
)

// Comment represents a single social-media comment fetched for a content item.
// The text and metadata are immutable once fetched; IsFiltered/FilterReason are
// set by the filter stage before downstream stages run.
type Comment struct {
	ID           string       `json:"id"`            // Unique identifier for the comment
	ContentID    string       `json:"content_id"`    // Content item the comment belongs to
	Text         string       `json:"text"`          // Raw comment text
	AuthorName   string       `json:"author_name"`   // Display name of the comment author
	PublishedAt  time.Time    `json:"published_at"`  // When the comment was posted
	LikeCount    int          `json:"like_count"`    // Like count at fetch time
	IsFiltered   bool         `json:"is_filtered"`   // Whether the comment was excluded by filtering
	FilterReason FilterReason `json:"filter_reason"` // Why it was excluded (empty if kept)
}

// FilterStats summarizes the outcome of a filter pass.
type FilterStats struct {
	Total     int `json:"total"`
	Spam      int `json:"spam"`
	Toxic     int `json:"toxic"`
	Duplicate int `json:"duplicate"`
	Filtered  int `json:"filtered"` // Comments that passed filtering
}

// FilterResult partitions a comment batch into kept and rejected sets.
// Every input comment lands in exactly one of Filtered/Spam/Toxic; duplicates
// are excluded from all three buckets and tracked only in Stats.Duplicate.
type FilterResult struct {
	FilteredComments []Comment   `json:"filtered_comments"`
	SpamComments     []Comment   `json:"spam_comments"`
	ToxicComments    []Comment   `json:"toxic_comments"`
	DuplicateCount   int         `json:"duplicate_count"`
	Stats            FilterStats `json:"stats"`
}

// Emotion is a named emotion with a normalized score.
type Emotion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"` // 0.0 to 1.0
}

// SentimentResult holds the sentiment analysis for one filtered comment.
// Results are positionally aligned with the filtered comment list.
type SentimentResult struct {
	Sentiment  Sentiment `json:"sentiment"`
	Confidence float64   `json:"confidence"` // 0.0 to 1.0
	Emotions   []Emotion `json:"emotions"`   // At most 3, sorted by score descending
}

// SentimentBreakdown aggregates sentiment counts over a comment set.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Total returns the number of classified comments.
func (b SentimentBreakdown) Total() int {
	return b.Positive + b.Negative + b.Neutral
}

// KeywordData is a TF-IDF weighted keyword extracted from the comment corpus.
type KeywordData struct {
	Word           string    `json:"word"`
	Frequency      int       `json:"frequency"`       // Corpus frequency, always >= configured minimum
	Sentiment      Sentiment `json:"sentiment"`       // Majority sentiment among comments containing the word
	Contexts       []string  `json:"contexts"`        // Surrounding text snippets
	TFIDFScore     float64   `json:"tfidf_score"`     // tf * log(totalDocs / docFrequency)
	SentimentScore float64   `json:"sentiment_score"` // Signed score derived from sentiment votes
}

// ThemeCluster groups comments that discuss the same topic.
type ThemeCluster struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Comments               []Comment `json:"comments"`
	Sentiment              Sentiment `json:"sentiment"` // Majority vote over member sentiments
	Frequency              int       `json:"frequency"` // Always len(Comments)
	RepresentativeComments []Comment `json:"representative_comments"` // At most 3, subset of Comments
	Keywords               []string  `json:"keywords"`
	CoherenceScore         float64   `json:"coherence_score"` // Mean pairwise similarity, 0.0 to 1.0
}

// GeneratedSummary is the narrative summary produced by the summary stage.
type GeneratedSummary struct {
	Text            string    `json:"text"`
	Emotions        []Emotion `json:"emotions"` // Prevalence values, sum <= 100
	KeyInsights     []string  `json:"key_insights"`
	Recommendations []string  `json:"recommendations"` // At most 3
	QualityScore    float64   `json:"quality_score"`    // 0.0 to 1.0
	WordCount       int       `json:"word_count"`
	UsedFallback    bool      `json:"used_fallback"` // True when the template fallback produced the text
}

// AnalysisResult is the aggregate report for one content item. It is persisted
// once per pipeline run and reused as a cache while younger than the freshness
// TTL (24 hours).
type AnalysisResult struct {
	ID                 string             `json:"id"`
	ContentID          string             `json:"content_id"`
	JobID              string             `json:"job_id"` // Job that produced (or reused) this result
	TotalComments      int                `json:"total_comments"`
	FilteredComments   int                `json:"filtered_comments"`
	Summary            string             `json:"summary"`
	SentimentBreakdown SentimentBreakdown `json:"sentiment_breakdown"`
	Themes             []ThemeCluster     `json:"themes"`
	Keywords           []KeywordData      `json:"keywords"`
	Emotions           []Emotion          `json:"emotions"`
	CreatedAt          time.Time          `json:"created_at"`
}

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status is an end state for a run attempt.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// AnalysisJob tracks one pipeline run. It is owned exclusively by the job
// lifecycle component and mutated only through its transition operations.
type AnalysisJob struct {
	ID              string     `json:"id"`
	ContentID       string     `json:"content_id"`
	UserID          string     `json:"user_id"`
	ResultID        string     `json:"result_id"` // Set when the job completes
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"` // 0 to 100
	CurrentStep     int        `json:"current_step"`
	TotalSteps      int        `json:"total_steps"` // Fixed at creation, always 5
	StepDescription string     `json:"step_description"`
	ErrorMessage    string     `json:"error_message"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}
