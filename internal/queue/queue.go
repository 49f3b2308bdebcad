// Package queue is a typed in-process task dispatcher for analysis runs:
// Submit returns a Handle, Await on the handle yields the Outcome. The
// abstraction carries no transport assumptions, so a broker-backed dispatcher
// can replace this one behind the same surface.
package queue

import (
	"context"
	"errors"
	"sync"

	"commentpulse/internal/core"
	"commentpulse/internal/logger"
)

var (
	ErrQueueFull  = errors.New("task queue is full")
	ErrShutdown   = errors.New("dispatcher is shut down")
	ErrNilTaskRun = errors.New("task has no run function")
)

// Task is one unit of analysis work.
type Task struct {
	JobID string
	Run   func(ctx context.Context) (*core.AnalysisResult, error)
}

// Outcome is the terminal state of a task.
type Outcome struct {
	JobID  string
	Result *core.AnalysisResult
	Err    error
}

// Handle tracks one submitted task.
type Handle struct {
	jobID string
	done  chan Outcome
}

// JobID returns the job the handle tracks.
func (h *Handle) JobID() string {
	return h.jobID
}

// Await blocks until the task finishes or the context ends. The outcome's Err
// field carries the task's own failure; the returned error only reflects the
// wait itself.
func (h *Handle) Await(ctx context.Context) (Outcome, error) {
	select {
	case outcome := <-h.done:
		return outcome, nil
	case <-ctx.Done():
		return Outcome{JobID: h.jobID}, ctx.Err()
	}
}

type submission struct {
	task   Task
	handle *Handle
}

// Dispatcher runs tasks on a bounded pool of worker goroutines over a bounded
// queue. Submission never blocks: a full queue is an error the caller handles.
type Dispatcher struct {
	tasks   chan submission
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates and starts a dispatcher with the given worker count
// and queue capacity.
func NewDispatcher(workers, capacity int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if capacity <= 0 {
		capacity = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		tasks:   make(chan submission, capacity),
		baseCtx: ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Submit queues a task and returns its handle.
func (d *Dispatcher) Submit(ctx context.Context, task Task) (*Handle, error) {
	if task.Run == nil {
		return nil, ErrNilTaskRun
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handle := &Handle{jobID: task.JobID, done: make(chan Outcome, 1)}

	// The lock is held across the send so Shutdown cannot close d.tasks
	// between the closed check and the send. The send never blocks.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrShutdown
	}

	select {
	case d.tasks <- submission{task: task, handle: handle}:
		return handle, nil
	default:
		return nil, ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for in-flight work to finish or
// the context to end. Queued but unstarted tasks are abandoned with a
// shutdown outcome.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for sub := range d.tasks {
		if d.baseCtx.Err() != nil {
			sub.handle.done <- Outcome{JobID: sub.task.JobID, Err: ErrShutdown}
			continue
		}

		result, err := sub.task.Run(d.baseCtx)
		if err != nil {
			logger.Warn("Analysis task failed", "job_id", sub.task.JobID, "error", err.Error())
		}
		sub.handle.done <- Outcome{JobID: sub.task.JobID, Result: result, Err: err}
	}
}
