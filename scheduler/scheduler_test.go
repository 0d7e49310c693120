package scheduler_test

import (
	"context"
	goerrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/flowgraph/calculator"
	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/executor"
	"github.com/c360/flowgraph/handler"
	"github.com/c360/flowgraph/node"
	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/scheduler"
	"github.com/c360/flowgraph/stream"
	"github.com/c360/flowgraph/timestamp"
)

var errProcessFailedForTest = goerrors.New("process failed for test")

// doublingCalculator reads an int from IN and emits its double on OUT.
type doublingCalculator struct{}

func (doublingCalculator) GetContract() *calculator.Contract {
	return &calculator.Contract{
		Inputs:  []calculator.PortSpec{{Tag: "IN", TypeName: "int"}},
		Outputs: []calculator.PortSpec{{Tag: "OUT", TypeName: "int"}},
	}
}

func (doublingCalculator) Open(ctx *calculator.Context) error { return nil }

func (doublingCalculator) Process(ctx *calculator.Context) error {
	in := ctx.Inputs().Tag("IN")
	if in.IsEmpty() {
		return nil
	}
	v, err := packet.ValueAs[int](in.Value())
	if err != nil {
		return err
	}
	return ctx.Outputs().Tag("OUT").Add(packet.Of(ctx.Timestamp, v*2))
}

func (doublingCalculator) Close(ctx *calculator.Context) error { return nil }

func TestScheduler_ProcessesAndCloses(t *testing.T) {
	in := stream.New("in", 8)
	out := stream.New("out", 8)

	n := node.New("doubler", doublingCalculator{}, handler.Default{},
		map[string]*stream.Stream{"IN": in},
		map[string]*stream.Stream{"OUT": out},
		nil, nil)
	n.Backpressure = stream.WaitTillNotFull

	exec := executor.NewThreadPool(2, 16)
	sched, err := scheduler.New("test-graph", []*node.Node{n}, []executor.Executor{exec}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sched.Start(ctx))

	require.NoError(t, in.Add(context.Background(), packet.Of(timestamp.T(1), 21), stream.WaitTillNotFull))
	in.SetNextTimestampBound(timestamp.T(2))
	in.Close()
	sched.Notify()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, sched.WaitUntilDone(waitCtx))

	require.Equal(t, scheduler.Done, sched.Status())

	head, ok := out.Peek()
	require.True(t, ok)
	v, err := packet.ValueAs[int](head)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestScheduler_CalculatorErrorFails(t *testing.T) {
	in := stream.New("in", 8)
	out := stream.New("out", 8)

	n := node.New("doubler", failingCalculator{}, handler.Default{},
		map[string]*stream.Stream{"IN": in},
		map[string]*stream.Stream{"OUT": out},
		nil, nil)

	exec := executor.NewInline()
	sched, err := scheduler.New("test-graph", []*node.Node{n}, []executor.Executor{exec}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sched.Start(ctx))

	require.NoError(t, in.Add(context.Background(), packet.Of(timestamp.T(1), 1), stream.WaitTillNotFull))

	// Inline executor needs explicit draining since it has no worker
	// goroutines of its own.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		exec.PollAll(ctx)
		if sched.Status() == scheduler.Failed {
			break
		}
		time.Sleep(time.Millisecond)
	}

	require.Equal(t, scheduler.Failed, sched.Status())
	require.Error(t, sched.Err())
}

// sleepyCalculator's Process holds processInFlight true for its whole
// sleep, so a test can assert Close never overlaps a still-running
// Process.
type sleepyCalculator struct {
	mu              sync.Mutex
	processInFlight bool
	overlapDetected bool
}

func (c *sleepyCalculator) GetContract() *calculator.Contract {
	return &calculator.Contract{
		Inputs: []calculator.PortSpec{{Tag: "IN", TypeName: "int"}},
	}
}

func (c *sleepyCalculator) Open(ctx *calculator.Context) error { return nil }

func (c *sleepyCalculator) Process(ctx *calculator.Context) error {
	c.mu.Lock()
	c.processInFlight = true
	c.mu.Unlock()
	time.Sleep(200 * time.Millisecond)
	c.mu.Lock()
	c.processInFlight = false
	c.mu.Unlock()
	return nil
}

func (c *sleepyCalculator) Close(ctx *calculator.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.processInFlight {
		c.overlapDetected = true
	}
	return nil
}

func TestScheduler_CancelWaitsForInFlightProcessBeforeClosing(t *testing.T) {
	in := stream.New("in", 8)
	calc := &sleepyCalculator{}
	n := node.New("sleeper", calc, handler.Default{},
		map[string]*stream.Stream{"IN": in}, nil, nil, nil)

	exec := executor.NewThreadPool(2, 16)
	sched, err := scheduler.New("test-graph", []*node.Node{n}, []executor.Executor{exec}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))

	require.NoError(t, in.Add(context.Background(), packet.Of(timestamp.T(1), 1), stream.WaitTillNotFull))
	sched.Notify()

	// Give the readiness loop time to dispatch Process onto the executor
	// before cancelling, so the cancel genuinely races an in-flight
	// invocation rather than a not-yet-started one.
	time.Sleep(20 * time.Millisecond)
	sched.Cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	err = sched.WaitUntilDone(waitCtx)
	require.ErrorIs(t, err, errors.ErrCancelled)

	calc.mu.Lock()
	overlap := calc.overlapDetected
	calc.mu.Unlock()
	require.False(t, overlap, "Close ran while Process was still in flight")
}

type failingCalculator struct{}

func (failingCalculator) GetContract() *calculator.Contract {
	return &calculator.Contract{
		Inputs:  []calculator.PortSpec{{Tag: "IN", TypeName: "int"}},
		Outputs: []calculator.PortSpec{{Tag: "OUT", TypeName: "int"}},
	}
}
func (failingCalculator) Open(ctx *calculator.Context) error { return nil }
func (failingCalculator) Process(ctx *calculator.Context) error {
	return errProcessFailedForTest
}
func (failingCalculator) Close(ctx *calculator.Context) error { return nil }
