package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"commentpulse/internal/core"
)

func TestSubmitAndAwait(t *testing.T) {
	d := NewDispatcher(2, 8)
	defer d.Shutdown(context.Background())

	want := &core.AnalysisResult{ID: "result-1"}
	handle, err := d.Submit(context.Background(), Task{
		JobID: "job-1",
		Run: func(ctx context.Context) (*core.AnalysisResult, error) {
			return want, nil
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle.JobID() != "job-1" {
		t.Errorf("JobID = %q, want job-1", handle.JobID())
	}

	outcome, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if outcome.Err != nil {
		t.Fatalf("unexpected task error: %v", outcome.Err)
	}
	if outcome.Result != want {
		t.Errorf("Result = %+v, want %+v", outcome.Result, want)
	}
}

func TestAwaitCarriesTaskError(t *testing.T) {
	d := NewDispatcher(1, 8)
	defer d.Shutdown(context.Background())

	taskErr := errors.New("stage failed")
	handle, err := d.Submit(context.Background(), Task{
		JobID: "job-1",
		Run: func(ctx context.Context) (*core.AnalysisResult, error) {
			return nil, taskErr
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outcome, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !errors.Is(outcome.Err, taskErr) {
		t.Errorf("outcome.Err = %v, want %v", outcome.Err, taskErr)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1)
	defer d.Shutdown(context.Background())

	// Block the single worker, then fill the single queue slot.
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	blocker := Task{JobID: "blocker", Run: func(ctx context.Context) (*core.AnalysisResult, error) {
		started.Done()
		<-release
		return nil, nil
	}}
	if _, err := d.Submit(context.Background(), blocker); err != nil {
		t.Fatalf("Submit blocker: %v", err)
	}
	started.Wait()

	filler := Task{JobID: "filler", Run: func(ctx context.Context) (*core.AnalysisResult, error) {
		return nil, nil
	}}
	if _, err := d.Submit(context.Background(), filler); err != nil {
		t.Fatalf("Submit filler: %v", err)
	}

	_, err := d.Submit(context.Background(), filler)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(release)
}

func TestSubmitNilRun(t *testing.T) {
	d := NewDispatcher(1, 1)
	defer d.Shutdown(context.Background())

	if _, err := d.Submit(context.Background(), Task{JobID: "job-1"}); !errors.Is(err, ErrNilTaskRun) {
		t.Errorf("expected ErrNilTaskRun, got %v", err)
	}
}

func TestShutdownRejectsNewTasks(t *testing.T) {
	d := NewDispatcher(1, 4)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_, err := d.Submit(context.Background(), Task{
		JobID: "job-1",
		Run: func(ctx context.Context) (*core.AnalysisResult, error) {
			return nil, nil
		},
	})
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown, got %v", err)
	}

	// Repeated shutdown is a no-op.
	if err := d.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestShutdownWaitsForInflightWork(t *testing.T) {
	d := NewDispatcher(1, 4)

	finished := false
	handle, err := d.Submit(context.Background(), Task{
		JobID: "job-1",
		Run: func(ctx context.Context) (*core.AnalysisResult, error) {
			time.Sleep(20 * time.Millisecond)
			finished = true
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !finished {
		t.Error("expected in-flight task to finish before shutdown returned")
	}

	outcome, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if outcome.Err != nil {
		t.Errorf("unexpected outcome error: %v", outcome.Err)
	}
}

func TestAwaitRespectsContext(t *testing.T) {
	d := NewDispatcher(1, 4)
	defer d.Shutdown(context.Background())

	release := make(chan struct{})
	handle, err := d.Submit(context.Background(), Task{
		JobID: "job-1",
		Run: func(ctx context.Context) (*core.AnalysisResult, error) {
			<-release
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = handle.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}

	close(release)
}

func TestConcurrentSubmitAndShutdown(t *testing.T) {
	// Submissions racing a shutdown must resolve to an error, never a send on
	// the closed task channel.
	run := func(ctx context.Context) (*core.AnalysisResult, error) { return nil, nil }

	for i := 0; i < 200; i++ {
		d := NewDispatcher(1, 2)

		start := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for {
					_, err := d.Submit(context.Background(), Task{JobID: "job-1", Run: run})
					if errors.Is(err, ErrShutdown) {
						return
					}
					if err != nil && !errors.Is(err, ErrQueueFull) {
						t.Errorf("unexpected submit error: %v", err)
						return
					}
				}
			}()
		}

		close(start)
		if err := d.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		wg.Wait()
	}
}
