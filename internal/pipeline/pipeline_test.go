package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"commentpulse/internal/core"
	"commentpulse/internal/jobs"
	"commentpulse/internal/sentiment"
	"commentpulse/internal/summary"
	"commentpulse/internal/themes"
)

// progressUpdate is one observed job write, for asserting the reporting
// sequence.
type progressUpdate struct {
	status   core.JobStatus
	progress int
	step     int
	desc     string
}

// fakeStore implements ResultStore and jobs.Store in memory and records every
// job write.
type fakeStore struct {
	comments     map[string][]core.Comment
	jobs         map[string]core.AnalysisJob
	latest       *core.AnalysisResult
	savedResult  *core.AnalysisResult
	savedJob     *core.AnalysisJob
	updates      []progressUpdate
	reassociated map[string]string // result ID -> job ID
	savedBatches [][]core.Comment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		comments:     make(map[string][]core.Comment),
		jobs:         make(map[string]core.AnalysisJob),
		reassociated: make(map[string]string),
	}
}

func (s *fakeStore) GetComments(ctx context.Context, contentID string) ([]core.Comment, error) {
	return s.comments[contentID], nil
}

func (s *fakeStore) GetCommentsByIDs(ctx context.Context, contentID string, ids []string) ([]core.Comment, error) {
	byID := make(map[string]core.Comment)
	for _, c := range s.comments[contentID] {
		byID[c.ID] = c
	}
	var out []core.Comment
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveComments(ctx context.Context, comments []core.Comment) error {
	s.savedBatches = append(s.savedBatches, comments)
	return nil
}

func (s *fakeStore) SaveAnalysisResult(ctx context.Context, result *core.AnalysisResult, job *core.AnalysisJob) error {
	s.savedResult = result
	s.savedJob = job
	if job != nil {
		s.jobs[job.ID] = *job
	}
	return nil
}

func (s *fakeStore) GetLatestResult(ctx context.Context, contentID string, maxAge time.Duration) (*core.AnalysisResult, error) {
	if s.latest != nil && s.latest.ContentID == contentID {
		copied := *s.latest
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) UpdateResultJob(ctx context.Context, resultID, jobID string) error {
	s.reassociated[resultID] = jobID
	return nil
}

func (s *fakeStore) CreateJob(ctx context.Context, job *core.AnalysisJob) error {
	s.jobs[job.ID] = *job
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id string) (*core.AnalysisJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	copied := job
	return &copied, nil
}

func (s *fakeStore) UpdateJob(ctx context.Context, job *core.AnalysisJob) error {
	if _, ok := s.jobs[job.ID]; !ok {
		return jobs.ErrJobNotFound
	}
	s.jobs[job.ID] = *job
	s.updates = append(s.updates, progressUpdate{
		status:   job.Status,
		progress: job.Progress,
		step:     job.CurrentStep,
		desc:     job.StepDescription,
	})
	return nil
}

// Stage stubs.

type stubFilter struct {
	calls  int
	result *core.FilterResult
}

func (f *stubFilter) Filter(comments []core.Comment) *core.FilterResult {
	f.calls++
	if f.result != nil {
		return f.result
	}
	result := &core.FilterResult{FilteredComments: comments}
	result.Stats.Total = len(comments)
	result.Stats.Filtered = len(comments)
	return result
}

type stubSentiment struct {
	calls int
	err   error
}

func (s *stubSentiment) AnalyzeBatch(ctx context.Context, comments []core.Comment) (*sentiment.BatchResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	result := &sentiment.BatchResult{
		Results: make([]core.SentimentResult, len(comments)),
		Summary: core.SentimentBreakdown{Positive: len(comments)},
	}
	for i := range result.Results {
		result.Results[i] = core.SentimentResult{Sentiment: core.SentimentPositive, Confidence: 0.9}
	}
	return result, nil
}

type stubThemes struct {
	calls int
	err   error
}

func (t *stubThemes) AnalyzeThemes(comments []core.Comment, sentiments []core.SentimentResult) (*themes.Result, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return &themes.Result{
		Themes: []core.ThemeCluster{
			{ID: "t1", Name: "Editing", Frequency: len(comments), Sentiment: core.SentimentPositive},
		},
		Keywords: []core.KeywordData{{Word: "editing", Frequency: len(comments)}},
	}, nil
}

type stubSummary struct {
	calls int
	err   error
	input summary.Input
}

func (g *stubSummary) Generate(ctx context.Context, input summary.Input) (*core.GeneratedSummary, error) {
	g.calls++
	g.input = input
	if g.err != nil {
		return nil, g.err
	}
	return &core.GeneratedSummary{
		Text:     "Viewers responded positively overall.",
		Emotions: []core.Emotion{{Name: "joy", Score: 80}},
	}, nil
}

// markingFilter rejects everything and annotates the input in place.
type markingFilter struct{}

func (markingFilter) Filter(comments []core.Comment) *core.FilterResult {
	result := &core.FilterResult{}
	result.Stats.Total = len(comments)
	for i := range comments {
		comments[i].IsFiltered = true
		comments[i].FilterReason = core.FilterReasonSpam
		result.SpamComments = append(result.SpamComments, comments[i])
		result.Stats.Spam++
	}
	return result
}

type stubAccounts struct {
	count int
	err   error
}

func (a *stubAccounts) ConnectedAccountCount(ctx context.Context, userID string) (int, error) {
	return a.count, a.err
}

type stubContents struct {
	owned bool
	err   error
}

func (c *stubContents) OwnedBy(ctx context.Context, contentID, userID string) (bool, error) {
	return c.owned, c.err
}

// harness bundles a wired orchestrator with its fakes.
type harness struct {
	store     *fakeStore
	lifecycle *jobs.Lifecycle
	filter    *stubFilter
	sentiment *stubSentiment
	themes    *stubThemes
	summary   *stubSummary
	orch      *Orchestrator
}

func newHarness(accounts AccountChecker) *harness {
	h := &harness{
		store:     newFakeStore(),
		filter:    &stubFilter{},
		sentiment: &stubSentiment{},
		themes:    &stubThemes{},
		summary:   &stubSummary{},
	}
	h.lifecycle = jobs.NewLifecycle(h.store)
	h.orch = New(h.filter, h.sentiment, h.themes, h.summary, h.store, h.lifecycle, accounts, nil, DefaultConfig())
	return h
}

func (h *harness) seedComments(contentID string, n int) {
	comments := make([]core.Comment, n)
	for i := range comments {
		comments[i] = core.Comment{
			ID:        string(rune('a' + i)),
			ContentID: contentID,
			Text:      "a perfectly ordinary comment about the video",
		}
	}
	h.store.comments[contentID] = comments
}

func (h *harness) createJob(t *testing.T, contentID string) *core.AnalysisJob {
	t.Helper()
	job, err := h.lifecycle.Create(context.Background(), contentID, "user-1")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestRunReportsWeightedProgress(t *testing.T) {
	h := newHarness(nil)
	h.seedComments("video-1", 6)
	job := h.createJob(t, "video-1")

	result, err := h.orch.Run(context.Background(), Request{JobID: job.ID, ContentID: "video-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}

	// Progress before each step reflects the cumulative weight of completed
	// steps: 0.20 / 0.30 / 0.30 / 0.15 / 0.05.
	want := []progressUpdate{
		{core.JobStatusRunning, 0, 1, "Filtering comments"},
		{core.JobStatusRunning, 20, 2, "Analyzing sentiment"},
		{core.JobStatusRunning, 50, 3, "Clustering themes"},
		{core.JobStatusRunning, 80, 4, "Generating summary"},
		{core.JobStatusRunning, 95, 5, "Saving analysis result"},
	}
	if len(h.store.updates) != len(want) {
		t.Fatalf("got %d job writes, want %d: %+v", len(h.store.updates), len(want), h.store.updates)
	}
	for i, got := range h.store.updates {
		if got != want[i] {
			t.Errorf("update %d = %+v, want %+v", i, got, want[i])
		}
	}

	// Terminal state lands through the atomic result write, not a progress
	// update.
	if h.store.savedJob == nil {
		t.Fatal("expected job written with result")
	}
	if h.store.savedJob.Status != core.JobStatusCompleted || h.store.savedJob.Progress != 100 {
		t.Errorf("terminal job = %+v", h.store.savedJob)
	}
	if h.store.savedJob.ResultID != result.ID {
		t.Errorf("job ResultID = %q, want %q", h.store.savedJob.ResultID, result.ID)
	}
	if h.store.savedResult == nil || h.store.savedResult.ID != result.ID {
		t.Errorf("result not persisted: %+v", h.store.savedResult)
	}
}

func TestRunAssemblesResult(t *testing.T) {
	h := newHarness(nil)
	h.seedComments("video-1", 4)
	job := h.createJob(t, "video-1")

	result, err := h.orch.Run(context.Background(), Request{JobID: job.ID, ContentID: "video-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.ContentID != "video-1" || result.JobID != job.ID {
		t.Errorf("identity fields: %+v", result)
	}
	if result.TotalComments != 4 || result.FilteredComments != 4 {
		t.Errorf("counts = %d/%d, want 4/4", result.TotalComments, result.FilteredComments)
	}
	if result.Summary != "Viewers responded positively overall." {
		t.Errorf("Summary = %q", result.Summary)
	}
	if result.SentimentBreakdown.Positive != 4 {
		t.Errorf("breakdown = %+v", result.SentimentBreakdown)
	}
	if len(result.Themes) != 1 || len(result.Keywords) != 1 || len(result.Emotions) != 1 {
		t.Errorf("aggregates missing: %+v", result)
	}
	if h.summary.input.TotalComments != 4 {
		t.Errorf("summary input = %+v", h.summary.input)
	}
}

func TestRunUsesCommentSubset(t *testing.T) {
	h := newHarness(nil)
	h.seedComments("video-1", 5)
	job := h.createJob(t, "video-1")

	result, err := h.orch.Run(context.Background(), Request{
		JobID:      job.ID,
		ContentID:  "video-1",
		CommentIDs: []string{"a", "c"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TotalComments != 2 {
		t.Errorf("TotalComments = %d, want 2 from the requested subset", result.TotalComments)
	}
}

func TestRunCacheShortCircuit(t *testing.T) {
	h := newHarness(nil)
	h.seedComments("video-1", 6)
	h.store.latest = &core.AnalysisResult{
		ID:        "cached-1",
		ContentID: "video-1",
		JobID:     "old-job",
		Summary:   "Cached summary.",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	job := h.createJob(t, "video-1")

	result, err := h.orch.Run(context.Background(), Request{JobID: job.ID, ContentID: "video-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.ID != "cached-1" {
		t.Fatalf("expected cached result, got %+v", result)
	}
	if result.JobID != job.ID {
		t.Errorf("cached result JobID = %q, want re-associated %q", result.JobID, job.ID)
	}
	if h.store.reassociated["cached-1"] != job.ID {
		t.Error("expected UpdateResultJob to re-associate the cached result")
	}

	// No stage ran.
	if h.filter.calls != 0 || h.sentiment.calls != 0 || h.themes.calls != 0 || h.summary.calls != 0 {
		t.Errorf("stages ran on a cache hit: filter=%d sentiment=%d themes=%d summary=%d",
			h.filter.calls, h.sentiment.calls, h.themes.calls, h.summary.calls)
	}

	// The job jumped straight to COMPLETED at 100%.
	final := h.store.updates[len(h.store.updates)-1]
	want := progressUpdate{core.JobStatusCompleted, 100, 5, "Used cached result"}
	if final != want {
		t.Errorf("final update = %+v, want %+v", final, want)
	}
	stored, _ := h.store.GetJob(context.Background(), job.ID)
	if stored.ResultID != "cached-1" {
		t.Errorf("job ResultID = %q, want cached-1", stored.ResultID)
	}
}

func TestRunStageFailureMarksJobFailed(t *testing.T) {
	h := newHarness(nil)
	h.seedComments("video-1", 6)
	h.sentiment.err = errors.New("provider down")
	job := h.createJob(t, "video-1")

	_, err := h.orch.Run(context.Background(), Request{JobID: job.ID, ContentID: "video-1"})
	if err == nil || !strings.Contains(err.Error(), "sentiment stage failed") {
		t.Fatalf("expected wrapped stage error, got %v", err)
	}

	stored, getErr := h.store.GetJob(context.Background(), job.ID)
	if getErr != nil {
		t.Fatalf("GetJob: %v", getErr)
	}
	if stored.Status != core.JobStatusFailed {
		t.Errorf("Status = %s, want FAILED", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "provider down") {
		t.Errorf("ErrorMessage = %q", stored.ErrorMessage)
	}
	if h.themes.calls != 0 || h.summary.calls != 0 {
		t.Error("later stages must not run after a failure")
	}
}

func TestRunCancelledJobStopsBetweenStages(t *testing.T) {
	h := newHarness(nil)
	h.seedComments("video-1", 6)
	job := h.createJob(t, "video-1")

	if _, err := h.lifecycle.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err := h.orch.Run(context.Background(), Request{JobID: job.ID, ContentID: "video-1"})
	if !errors.Is(err, ErrJobCancelled) {
		t.Fatalf("expected ErrJobCancelled, got %v", err)
	}

	// Cancellation is terminal; the run must not overwrite it with FAILED.
	stored, _ := h.store.GetJob(context.Background(), job.ID)
	if stored.Status != core.JobStatusCancelled {
		t.Errorf("Status = %s, want CANCELLED", stored.Status)
	}
	if h.sentiment.calls != 0 {
		t.Error("stages must not run for a cancelled job")
	}
}

func TestRunRespectsContext(t *testing.T) {
	h := newHarness(nil)
	h.seedComments("video-1", 6)
	job := h.createJob(t, "video-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.Run(ctx, Request{JobID: job.ID, ContentID: "video-1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestValidatePrerequisites(t *testing.T) {
	t.Run("passes with enough comments", func(t *testing.T) {
		h := newHarness(nil)
		h.seedComments("video-1", 6)
		if err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("no comments", func(t *testing.T) {
		h := newHarness(nil)
		err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-1")
		if err == nil || !strings.Contains(err.Error(), "no comments") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("too few after filtering", func(t *testing.T) {
		h := newHarness(nil)
		h.seedComments("video-1", 3)
		err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-1")
		if err == nil || !strings.Contains(err.Error(), "minimum: 5") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("accumulates all issues", func(t *testing.T) {
		h := newHarness(nil)
		h.orch = New(h.filter, h.sentiment, h.themes, h.summary, h.store, h.lifecycle,
			&stubAccounts{count: 0}, &stubContents{owned: false}, DefaultConfig())

		err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-1")
		if err == nil {
			t.Fatal("expected error")
		}
		for _, fragment := range []string{"not owned", "no comments", "no connected accounts"} {
			if !strings.Contains(err.Error(), fragment) {
				t.Errorf("error %q missing %q", err.Error(), fragment)
			}
		}
	})

	t.Run("content owned by another user", func(t *testing.T) {
		h := newHarness(nil)
		h.seedComments("video-1", 6)
		h.orch = New(h.filter, h.sentiment, h.themes, h.summary, h.store, h.lifecycle,
			nil, &stubContents{owned: false}, DefaultConfig())

		err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-2")
		if err == nil || !strings.Contains(err.Error(), "not owned by the requesting user") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("content owned by the requesting user", func(t *testing.T) {
		h := newHarness(nil)
		h.seedComments("video-1", 6)
		h.orch = New(h.filter, h.sentiment, h.themes, h.summary, h.store, h.lifecycle,
			nil, &stubContents{owned: true}, DefaultConfig())

		if err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ownership check failure accumulates", func(t *testing.T) {
		h := newHarness(nil)
		h.seedComments("video-1", 6)
		h.orch = New(h.filter, h.sentiment, h.themes, h.summary, h.store, h.lifecycle,
			nil, &stubContents{err: errors.New("content service down")}, DefaultConfig())

		err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-1")
		if err == nil || !strings.Contains(err.Error(), "failed to verify content ownership") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("nil account checker skips the account check", func(t *testing.T) {
		h := newHarness(nil)
		h.seedComments("video-1", 6)
		if err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("does not mutate stored comments", func(t *testing.T) {
		h := newHarness(nil)
		h.seedComments("video-1", 6)

		// A filter that flags every input in place; the validation pass must
		// run it on a copy.
		h.orch = New(markingFilter{}, h.sentiment, h.themes, h.summary, h.store, h.lifecycle, nil, nil, DefaultConfig())

		err := h.orch.ValidatePrerequisites(context.Background(), "video-1", "user-1")
		if err == nil {
			t.Fatal("expected error with everything filtered out")
		}
		for _, c := range h.store.comments["video-1"] {
			if c.IsFiltered {
				t.Errorf("validation mutated stored comment %q", c.ID)
			}
		}
	})
}

func TestEstimateDuration(t *testing.T) {
	h := newHarness(nil)

	tests := []struct {
		comments int
		want     time.Duration
	}{
		{0, 15 * time.Second},
		{100, 55 * time.Second},
		{10000, 10 * time.Minute}, // capped
	}

	for _, tt := range tests {
		if got := h.orch.EstimateDuration(tt.comments); got != tt.want {
			t.Errorf("EstimateDuration(%d) = %v, want %v", tt.comments, got, tt.want)
		}
	}
}

func TestProgressAfter(t *testing.T) {
	want := map[int]int{0: 0, 1: 20, 2: 50, 3: 80, 4: 95, 5: 100}
	for n, expected := range want {
		if got := progressAfter(n); got != expected {
			t.Errorf("progressAfter(%d) = %d, want %d", n, got, expected)
		}
	}
}
