package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/metric"
)

// ThreadPool is a fixed-size worker pool executor: N goroutines draining a
// shared FIFO work queue, with results and failures tracked for metrics
// export. Each WorkItem runs to completion on whichever worker dequeues
// it; the scheduler is responsible for never submitting two in-flight
// items for the same node concurrently.
type ThreadPool struct {
	workers   int
	queueSize int

	workChan chan WorkItem
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted, processed, failed, dropped int64

	metrics     *metric.Metrics
	metricsPool string
}

// NewThreadPool creates a thread pool with workers goroutines and a queue
// holding up to queueSize pending items. Non-positive values fall back to
// sensible defaults.
func NewThreadPool(workers, queueSize int, opts ...ThreadPoolOption) *ThreadPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	tp := &ThreadPool{
		workers:   workers,
		queueSize: queueSize,
		workChan:  make(chan WorkItem, queueSize),
	}
	for _, opt := range opts {
		opt(tp)
	}
	return tp
}

// ThreadPoolOption configures a ThreadPool at construction time.
type ThreadPoolOption func(*ThreadPool)

// WithMetrics attaches the shared Metrics instance that this pool's queue
// depth gauge is recorded against, labeled by pool name.
func WithMetrics(m *metric.Metrics, pool string) ThreadPoolOption {
	return func(tp *ThreadPool) {
		tp.metrics = m
		tp.metricsPool = pool
	}
}

// Start implements Executor.
func (tp *ThreadPool) Start(ctx context.Context) error {
	tp.lifecycleMu.Lock()
	defer tp.lifecycleMu.Unlock()
	if tp.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "ThreadPool", "Start", "pool already started")
	}
	for i := 0; i < tp.workers; i++ {
		tp.wg.Add(1)
		go tp.worker(ctx)
	}
	tp.started = true
	return nil
}

// Submit implements Executor.
func (tp *ThreadPool) Submit(item WorkItem) error {
	tp.lifecycleMu.Lock()
	started, stopped := tp.started, tp.stopped
	tp.lifecycleMu.Unlock()
	if !started {
		return errors.WrapFatal(errors.ErrFailedPrecondition, "ThreadPool", "Submit", "pool not started")
	}
	if stopped {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "ThreadPool", "Submit", "pool stopped")
	}

	select {
	case tp.workChan <- item:
		atomic.AddInt64(&tp.submitted, 1)
		if tp.metrics != nil {
			tp.metrics.RecordExecutorQueueDepth(tp.metricsPool, len(tp.workChan))
		}
		return nil
	default:
		atomic.AddInt64(&tp.dropped, 1)
		return errors.WrapTransient(errors.ErrQueueFull, "ThreadPool", "Submit", "work queue full")
	}
}

// Stop implements Executor.
func (tp *ThreadPool) Stop(timeout time.Duration) error {
	tp.lifecycleMu.Lock()
	if !tp.started || tp.stopped {
		tp.lifecycleMu.Unlock()
		return nil
	}
	tp.stopped = true
	close(tp.workChan)
	tp.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		tp.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(errors.ErrUnavailable, "ThreadPool", "Stop", "workers did not exit before timeout")
	}
}

// Stats returns a point-in-time snapshot for metrics and tests.
type Stats struct {
	Workers, QueueSize, QueueDepth     int
	Submitted, Processed, Failed, Dropped int64
}

// Stats returns the pool's current counters.
func (tp *ThreadPool) Stats() Stats {
	return Stats{
		Workers:    tp.workers,
		QueueSize:  tp.queueSize,
		QueueDepth: len(tp.workChan),
		Submitted:  atomic.LoadInt64(&tp.submitted),
		Processed:  atomic.LoadInt64(&tp.processed),
		Failed:     atomic.LoadInt64(&tp.failed),
		Dropped:    atomic.LoadInt64(&tp.dropped),
	}
}

func (tp *ThreadPool) worker(ctx context.Context) {
	defer tp.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-tp.workChan:
			if !ok {
				return
			}
			err := item.Run(ctx)
			atomic.AddInt64(&tp.processed, 1)
			if err != nil {
				atomic.AddInt64(&tp.failed, 1)
			}
		}
	}
}
