// Package executor provides the pluggable execution strategies a
// scheduler dispatches node invocations onto: a concurrent thread pool, or
// a single-goroutine cooperative runner driven by explicit polling.
package executor

import (
	"context"
	"time"
)

// Kind names the calculator entry point a WorkItem invokes.
type Kind int

const (
	OpenWork Kind = iota
	ProcessWork
	CloseWork
)

func (k Kind) String() string {
	switch k {
	case OpenWork:
		return "Open"
	case ProcessWork:
		return "Process"
	case CloseWork:
		return "Close"
	default:
		return "Unknown"
	}
}

// WorkItem names one node invocation dispatched by the scheduler. Run
// performs the actual call into the node; executors guarantee FIFO
// ordering within a single NodeName but make no promise across different
// nodes.
type WorkItem struct {
	NodeName string
	Kind     Kind
	Run      func(ctx context.Context) error
}

// Executor is the abstract interface a scheduler submits work to.
// Implementations never assume they are the only executor a graph uses;
// a graph may route different calculator classes to dedicated executors.
type Executor interface {
	// Start begins accepting and running work. ctx governs the
	// executor's own lifetime, not any one WorkItem's.
	Start(ctx context.Context) error

	// Submit enqueues item for execution. It returns an error if the
	// executor's queue is full or the executor has not been started.
	Submit(item WorkItem) error

	// Stop drains in-flight work and stops accepting new submissions,
	// returning once all workers have exited or timeout elapses.
	Stop(timeout time.Duration) error
}
