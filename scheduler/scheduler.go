// Package scheduler drives a set of nodes to completion: it repeatedly
// asks each node's handler whether it is ready, dispatches ready work onto
// an executor, and tracks the whole graph's progress toward done or a
// fatal error.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/executor"
	"github.com/c360/flowgraph/handler"
	"github.com/c360/flowgraph/metric"
	"github.com/c360/flowgraph/node"
	"github.com/c360/flowgraph/timestamp"
)

// Status summarizes the scheduler's run state.
type Status int

const (
	NotStarted Status = iota
	Running
	Draining
	Done
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// entry binds a node to the executor it dispatches work onto and tracks
// whether work for that node is currently in flight (at most one
// outstanding invocation per node at a time). settled is non-nil exactly
// while inFlight is true; it is closed by the dispatched work once it
// completes, so a concurrent shutdown can wait for the in-flight
// invocation to finish before forcing the node closed.
type entry struct {
	node     *node.Node
	exec     executor.Executor
	inFlight bool
	closed   bool
	settled  chan struct{}
}

// Scheduler owns a fixed set of nodes and their executors and runs the
// readiness loop until every node reaches ReadyForClose or one fails.
//
// Topological order among nodes ready at the same instant is broken first
// by the node's position in the order passed to New, then (for the same
// node across repeated re-evaluation) by the lowest pending timestamp,
// matching a deterministic, reproducible dispatch order for tests.
type Scheduler struct {
	graphName string
	metrics   *metric.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	entries []*entry
	byName  map[string]*entry
	status  Status
	err     error
	wakeup  chan struct{}

	wg sync.WaitGroup
}

// New constructs a Scheduler over nodes, each dispatched onto its paired
// executor. nodes and execs must be the same length and order; a node's
// executor is fixed for its lifetime.
func New(graphName string, nodes []*node.Node, execs []executor.Executor, metrics *metric.Metrics) (*Scheduler, error) {
	if len(nodes) != len(execs) {
		return nil, errors.WrapFatal(errors.ErrConfigError, "Scheduler", "New", "nodes and executors length mismatch")
	}
	s := &Scheduler{
		graphName: graphName,
		metrics:   metrics,
		logger:    slog.Default(),
		byName:    make(map[string]*entry, len(nodes)),
		status:    NotStarted,
		wakeup:    make(chan struct{}, 1),
	}
	for i, n := range nodes {
		e := &entry{node: n, exec: execs[i]}
		s.entries = append(s.entries, e)
		s.byName[n.Name] = e
	}
	return s, nil
}

// Start starts every distinct executor, opens all nodes concurrently, then
// launches the readiness loop on a background goroutine. It returns once
// every Open call has finished, with the first Open error if any failed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != NotStarted {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrFailedPrecondition, "Scheduler", "Start", "scheduler already started")
	}
	s.status = Running
	s.mu.Unlock()

	started := make(map[executor.Executor]bool)
	for _, e := range s.entries {
		if !started[e.exec] {
			if err := e.exec.Start(ctx); err != nil {
				return errors.WrapFatal(err, "Scheduler", "Start", "executor start failed")
			}
			started[e.exec] = true
		}
	}

	// Nodes whose Open does I/O (connecting to a model server, a capture
	// device) open concurrently; errgroup gives first-error-wins semantics
	// without needing to hand-roll a WaitGroup and error channel.
	g, _ := errgroup.WithContext(ctx)
	for _, e := range s.entries {
		e := e
		g.Go(func() error {
			err := e.node.Open()
			if s.metrics != nil {
				s.metrics.RecordNodeState(s.graphName, e.node.Name, int(e.node.State()))
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.fail(err)
		return err
	}

	s.logger.Info("scheduler started", "graph", s.graphName, "nodes", len(s.entries))
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// SetLogger replaces the scheduler's logger. Call before Start; the
// background loop reads s.logger without locking since it is fixed once
// Start begins.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Notify wakes the readiness loop for an immediate re-evaluation pass,
// typically called after AddPacket delivers new input from outside the
// graph.
func (s *Scheduler) Notify() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Status returns the scheduler's current run status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the first fatal error recorded, if the scheduler has Failed.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// WaitUntilDone blocks until every node has closed, the scheduler failed,
// or ctx is cancelled, whichever comes first.
func (s *Scheduler) WaitUntilDone(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Node returns the named node, if this scheduler owns one by that name.
func (s *Scheduler) Node(name string) (*node.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return e.node, true
}

// Cancel forces every node closed without waiting for natural
// completion, for use on graph teardown or upstream fatal error.
// WaitUntilDone subsequently returns errors.ErrCancelled, unless a
// calculator error already recorded a more specific cause.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.status == Done || s.status == Failed || s.status == Cancelled {
		s.mu.Unlock()
		return
	}
	s.status = Cancelled
	if s.err == nil {
		s.err = errors.ErrCancelled
	}
	s.mu.Unlock()
	s.Notify()
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.status = Failed
	s.mu.Unlock()
	s.logger.Error("scheduler failed", "graph", s.graphName, "error", err)
	if s.metrics != nil {
		s.metrics.RecordGraphStatus(s.graphName, int(Failed))
	}
}

// loop repeatedly evaluates readiness across all nodes and dispatches
// ready work, waking on Notify or a fixed poll interval, until every node
// has closed, a node fails, or the scheduler is cancelled.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		status := s.status
		s.mu.Unlock()

		if status == Failed {
			s.closeAll(true)
			s.stopExecutors()
			return
		}
		if status == Cancelled {
			s.closeAll(true)
			s.logger.Info("scheduler cancelled", "graph", s.graphName)
			if s.metrics != nil {
				s.metrics.RecordGraphStatus(s.graphName, int(Cancelled))
			}
			s.stopExecutors()
			return
		}

		allClosed := s.evaluateAndDispatch(ctx)
		if allClosed {
			s.mu.Lock()
			s.status = Done
			s.mu.Unlock()
			s.logger.Info("scheduler done", "graph", s.graphName)
			if s.metrics != nil {
				s.metrics.RecordGraphStatus(s.graphName, int(Done))
			}
			s.stopExecutors()
			return
		}

		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.status != Failed {
				s.status = Cancelled
			}
			if s.err == nil {
				s.err = errors.ErrCancelled
			}
			s.mu.Unlock()
			s.closeAll(true)
			s.stopExecutors()
			return
		case <-s.wakeup:
		case <-ticker.C:
		}
	}
}

// evaluateAndDispatch runs one readiness pass over every node, dispatching
// ReadyForProcess work and closing nodes that report ReadyForClose. It
// returns true once every node has been closed.
func (s *Scheduler) evaluateAndDispatch(ctx context.Context) bool {
	entries := s.orderedEntries()

	allClosed := true
	for _, e := range entries {
		s.mu.Lock()
		closed := e.closed
		inFlight := e.inFlight
		s.mu.Unlock()
		if closed {
			continue
		}
		allClosed = false
		if inFlight {
			continue
		}

		result := e.node.ComputeReadiness()
		switch result.Kind {
		case handler.ReadyForProcess:
			s.dispatchProcess(ctx, e, result.Timestamp)
		case handler.ReadyForClose:
			s.dispatchClose(ctx, e)
		}
	}
	return allClosed
}

// orderedEntries returns a snapshot of entries in the declared order from
// New. Callers that want a specific topological tie-break order establish
// it there; the loop itself only needs a stable, repeatable order.
func (s *Scheduler) orderedEntries() []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Scheduler) dispatchProcess(ctx context.Context, e *entry, ts timestamp.T) {
	settled := make(chan struct{})
	s.mu.Lock()
	e.inFlight = true
	e.settled = settled
	s.mu.Unlock()

	n := e.node
	item := executor.WorkItem{
		NodeName: n.Name,
		Kind:     executor.ProcessWork,
		Run: func(ctx context.Context) error {
			defer close(settled)
			start := time.Now()
			err := n.Process(ts)
			if s.metrics != nil {
				status := "ok"
				if err != nil {
					status = "error"
					s.metrics.RecordCalculatorError(s.graphName, n.Name)
				}
				s.metrics.RecordInvocation(s.graphName, n.Name, "Process", status)
				s.metrics.ObserveInvocationDuration(s.graphName, n.Name, "Process", time.Since(start))
				s.metrics.RecordNodeState(s.graphName, n.Name, int(n.State()))
			}
			s.mu.Lock()
			e.inFlight = false
			s.mu.Unlock()
			if err != nil && !errors.IsTransient(err) {
				s.fail(err)
			}
			s.Notify()
			return err
		},
	}
	if err := e.exec.Submit(item); err != nil {
		s.mu.Lock()
		e.inFlight = false
		s.mu.Unlock()
		close(settled)
		if !errors.IsTransient(err) {
			s.fail(err)
		}
	}
}

func (s *Scheduler) dispatchClose(ctx context.Context, e *entry) {
	settled := make(chan struct{})
	s.mu.Lock()
	e.inFlight = true
	e.settled = settled
	s.mu.Unlock()

	n := e.node
	item := executor.WorkItem{
		NodeName: n.Name,
		Kind:     executor.CloseWork,
		Run: func(ctx context.Context) error {
			defer close(settled)
			err := n.Close()
			s.mu.Lock()
			e.inFlight = false
			e.closed = true
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.RecordNodeState(s.graphName, n.Name, int(n.State()))
			}
			if err != nil {
				s.fail(err)
			}
			s.Notify()
			return err
		},
	}
	if err := e.exec.Submit(item); err != nil {
		s.mu.Lock()
		e.inFlight = false
		s.mu.Unlock()
		close(settled)
		s.fail(err)
	}
}

// executorStopTimeout bounds how long stopExecutors waits for a worker
// pool's goroutines to drain once the readiness loop has no more work to
// give them.
const executorStopTimeout = 5 * time.Second

// stopExecutors stops every distinct executor owned by this scheduler's
// entries exactly once, so worker goroutines started in Start don't
// outlive the graph run. Called from every terminal branch of loop.
func (s *Scheduler) stopExecutors() {
	stopped := make(map[executor.Executor]bool)
	for _, e := range s.entries {
		if stopped[e.exec] {
			continue
		}
		stopped[e.exec] = true
		if err := e.exec.Stop(executorStopTimeout); err != nil {
			s.logger.Warn("executor stop failed", "graph", s.graphName, "error", err)
		}
	}
}

// closeAll forces every not-yet-closed node closed inline, bypassing
// executors, for shutdown paths where the readiness loop itself is
// exiting. An entry whose dispatched Process or Close is still in flight
// is awaited first: forcing a node closed while its calculator is still
// running inside Process would run Open/Process/Close concurrently
// against the same node, which node's own state machine forbids.
func (s *Scheduler) closeAll(force bool) {
	for _, e := range s.entries {
		s.mu.Lock()
		closed := e.closed
		inFlight := e.inFlight
		settled := e.settled
		s.mu.Unlock()
		if closed {
			continue
		}
		if inFlight && settled != nil {
			<-settled
		}

		s.mu.Lock()
		closed = e.closed
		s.mu.Unlock()
		if closed {
			continue
		}
		if force {
			_ = e.node.Cancel()
		} else {
			_ = e.node.Close()
		}
		s.mu.Lock()
		e.closed = true
		s.mu.Unlock()
	}
}
