package retryutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Sleep: noSleep},
		func(ctx context.Context) error {
			calls++
			return nil
		})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Sleep: noSleep},
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("persistent")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Sleep: noSleep},
		func(ctx context.Context) error {
			calls++
			return wantErr
		})

	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error %v, got %v", wantErr, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoRespectsRetryIf(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(),
		Policy{
			MaxAttempts: 5,
			Sleep:       noSleep,
			RetryIf:     func(err error) bool { return !errors.Is(err, fatal) },
		},
		func(ctx context.Context) error {
			calls++
			return fatal
		})

	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Sleep: noSleep},
		func(ctx context.Context) error {
			calls++
			return errors.New("nope")
		})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoStopsWhenSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx,
		Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDelayBackoffAndRateLimit(t *testing.T) {
	policy := Policy{
		BaseDelay:           time.Second,
		BackoffFactor:       2.0,
		RateLimitMultiplier: 5.0,
	}

	if got := policy.delay(1, errors.New("boom")); got != time.Second {
		t.Errorf("first delay = %v, want 1s", got)
	}
	if got := policy.delay(2, errors.New("boom")); got != 2*time.Second {
		t.Errorf("second delay = %v, want 2s", got)
	}
	if got := policy.delay(1, errors.New("429 rate limit exceeded")); got != 5*time.Second {
		t.Errorf("rate-limited delay = %v, want 5s", got)
	}
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota", errors.New("Quota exhausted for model"), true},
		{"status 429", errors.New("server returned 429"), true},
		{"resource exhausted", errors.New("RESOURCE EXHAUSTED"), true},
		{"plain failure", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(tt.err); got != tt.want {
				t.Errorf("IsRateLimited(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
