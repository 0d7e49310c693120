package executor

import (
	"context"
	"sync"
	"time"

	"github.com/c360/flowgraph/errors"
)

// Inline is a single-goroutine cooperative executor: Submit enqueues work
// without running it, and Poll runs exactly one pending item on the
// calling goroutine. It gives deterministic, single-threaded scheduling
// for tests and for hosts without true concurrency, at the cost of the
// caller having to drive it explicitly.
type Inline struct {
	mu      sync.Mutex
	queue   []WorkItem
	started bool
	stopped bool
}

// NewInline creates an Inline executor.
func NewInline() *Inline {
	return &Inline{}
}

// Start implements Executor. Inline has no background goroutines; Start
// only flips the accepting-submissions flag.
func (e *Inline) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Inline", "Start", "executor already started")
	}
	e.started = true
	return nil
}

// Submit implements Executor.
func (e *Inline) Submit(item WorkItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return errors.WrapFatal(errors.ErrFailedPrecondition, "Inline", "Submit", "executor not started")
	}
	if e.stopped {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Inline", "Submit", "executor stopped")
	}
	e.queue = append(e.queue, item)
	return nil
}

// Stop implements Executor; any queued but unrun work is discarded.
func (e *Inline) Stop(timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.queue = nil
	return nil
}

// Poll runs the next queued WorkItem, if any, on the calling goroutine and
// reports whether one was run.
func (e *Inline) Poll(ctx context.Context) bool {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return false
	}
	item := e.queue[0]
	e.queue = e.queue[1:]
	e.mu.Unlock()

	_ = item.Run(ctx)
	return true
}

// PollAll runs every currently queued WorkItem in order, returning the
// count run. Work submitted by those items while draining is also run,
// since a synchronous graph under test typically wants to settle fully
// before the caller inspects results.
func (e *Inline) PollAll(ctx context.Context) int {
	n := 0
	for e.Poll(ctx) {
		n++
	}
	return n
}

// Pending returns the number of items currently queued.
func (e *Inline) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}
