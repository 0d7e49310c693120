// Package node implements the scheduler's unit of work: one calculator
// instance plus its stream bindings, serialized through the state machine
// NotOpened → (Idle ↔ Active) → Closing → Closed, with Failing entered on
// a calculator error.
package node

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/flowgraph/calculator"
	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/handler"
	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/pkg/retry"
	"github.com/c360/flowgraph/stream"
	"github.com/c360/flowgraph/timestamp"
)

// State is one position in a node's lifecycle.
type State int

const (
	NotOpened State = iota
	Opened
	Idle
	Active
	Closing
	Closed
	Failing
)

func (s State) String() string {
	switch s {
	case NotOpened:
		return "NotOpened"
	case Opened:
		return "Opened"
	case Idle:
		return "Idle"
	case Active:
		return "Active"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	case Failing:
		return "Failing"
	default:
		return "Unknown"
	}
}

// Node wraps one calculator instance, its input/output stream bindings,
// its handler policy, and the bookkeeping needed to serialize invocations
// and enforce per-output timestamp monotonicity.
type Node struct {
	Name    string
	Calc    calculator.Calculator
	Handler handler.Handler

	Inputs      map[string]*stream.Stream
	Outputs     map[string]*stream.Stream
	SidePackets map[string]packet.Packet
	Services    map[string]any

	// Backpressure governs how Emit writes to output streams. graph.New
	// sets it to AddIfNotFull when any of the node's output streams is
	// configured to drop, and to WaitTillNotFull otherwise.
	Backpressure stream.BackpressureMode

	// OpenRetry configures backoff retry of the calculator's Open call, for
	// calculators whose Open does I/O (connecting to a model server, a
	// capture device) that can fail transiently at graph startup. The zero
	// value runs Open exactly once.
	OpenRetry retry.Config

	// Logger receives lifecycle transitions and calculator failures. A nil
	// Logger falls back to slog.Default() at New time.
	Logger *slog.Logger

	mu          sync.Mutex
	state       State
	lastEmitted map[string]timestamp.T
	invokeTS    timestamp.T
	err         error
}

// New constructs a node in state NotOpened.
func New(name string, calc calculator.Calculator, h handler.Handler,
	inputs, outputs map[string]*stream.Stream, sidePackets map[string]packet.Packet, services map[string]any,
) *Node {
	return &Node{
		Name:        name,
		Calc:        calc,
		Handler:     h,
		Inputs:      inputs,
		Outputs:     outputs,
		SidePackets: sidePackets,
		Services:    services,
		Logger:      slog.Default(),
		state:       NotOpened,
		lastEmitted: make(map[string]timestamp.T),
	}
}

// State returns the node's current lifecycle state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Err returns the first error recorded against this node, if any.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Emit implements calculator.Emitter. It enforces TimestampMonotonicity:
// p's timestamp must be strictly after this port's last emitted timestamp
// and not before the invocation's input timestamp. It then writes to the
// bound output stream.
func (n *Node) Emit(tag string, p packet.Packet) error {
	n.mu.Lock()
	if last, ok := n.lastEmitted[tag]; ok && !last.Before(p.Timestamp()) {
		n.mu.Unlock()
		return errors.WrapFatal(errors.ErrTimestampMonotonicity, "Node", "Emit",
			"port "+tag+" emitted "+p.Timestamp().String()+" at or before last emitted "+last.String())
	}
	if n.invokeTS.IsRangeValue() && p.Timestamp().IsRangeValue() && p.Timestamp().Before(n.invokeTS) {
		n.mu.Unlock()
		return errors.WrapFatal(errors.ErrTimestampMonotonicity, "Node", "Emit",
			"port "+tag+" emitted "+p.Timestamp().String()+" before invocation input timestamp "+n.invokeTS.String())
	}
	n.lastEmitted[tag] = p.Timestamp()
	n.mu.Unlock()

	out, ok := n.Outputs[tag]
	if !ok {
		return errors.WrapFatal(errors.ErrUnknownStream, "Node", "Emit", "no output stream bound to tag "+tag)
	}
	return out.Add(context.Background(), p, n.Backpressure)
}

// Open invokes the calculator's Open entry point and transitions
// NotOpened to Idle on success. Side packets and services must already be
// resolved on the Node before Open is called.
func (n *Node) Open() error {
	n.mu.Lock()
	if n.state != NotOpened {
		n.mu.Unlock()
		return errors.WrapFatal(errors.ErrFailedPrecondition, "Node", "Open", "node "+n.Name+" not in NotOpened")
	}
	n.invokeTS = timestamp.PreStream
	n.mu.Unlock()

	calcCtx := calculator.NewContext(timestamp.PreStream, nil, n, n.SidePackets, n.Services)
	openErr := retry.Do(context.Background(), n.OpenRetry, func() error {
		return n.Calc.Open(calcCtx)
	})
	if openErr != nil {
		n.mu.Lock()
		n.state = Failing
		n.err = errors.WrapFatal(errors.ErrCalculatorError, "Node", "Open", "calculator Open failed for "+n.Name)
		n.mu.Unlock()
		n.Logger.Error("node open failed", "node", n.Name, "error", openErr)
		return n.err
	}

	n.mu.Lock()
	n.state = Idle
	n.mu.Unlock()
	n.Logger.Info("node opened", "node", n.Name)
	return nil
}

// ComputeReadiness delegates to the node's handler.
func (n *Node) ComputeReadiness() handler.Result {
	return n.Handler.ComputeReadiness(n.Inputs)
}

// Process invokes the calculator's Process entry point at timestamp ts,
// consuming exactly the packets that settled at ts from each input stream
// and leaving absent ports empty. It transitions Idle to Active for the
// duration of the call and back to Idle on success, or to Failing on
// calculator error.
func (n *Node) Process(ts timestamp.T) error {
	n.mu.Lock()
	if n.state != Idle {
		n.mu.Unlock()
		return errors.WrapFatal(errors.ErrFailedPrecondition, "Node", "Process", "node "+n.Name+" not Idle")
	}
	n.state = Active
	n.invokeTS = ts
	n.mu.Unlock()

	inputValues := make(map[string]packet.Packet, len(n.Inputs))
	for tag, s := range n.Inputs {
		if head, present := s.Peek(); present && head.Timestamp() == ts {
			p, _ := s.Pop()
			inputValues[tag] = p
		} else {
			inputValues[tag] = packet.Empty(ts)
		}
	}

	ctx := calculator.NewContext(ts, inputValues, n, n.SidePackets, n.Services)
	err := n.Calc.Process(ctx)

	// Release this node's reference to every packet it popped. A
	// calculator that forwarded a packet downstream already retained its
	// own reference via Packet.At; the payload is only actually freed once
	// every such reference, including this one, has been released.
	for _, p := range inputValues {
		p.Release()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.state = Failing
		n.err = errors.WrapInvalid(errors.ErrCalculatorError, "Node", "Process", "calculator Process failed for "+n.Name)
		n.Logger.Error("node process failed", "node", n.Name, "timestamp", ts.String(), "error", err)
		return n.err
	}
	n.state = Idle
	return nil
}

// Close invokes the calculator's Close entry point and transitions to
// Closed. It is a no-op if the node was never successfully Opened.
func (n *Node) Close() error {
	n.mu.Lock()
	// A node whose Open failed is Failing with invokeTS still at PreStream:
	// only Open sets PreStream, and Process replaces it with a real timestamp.
	if n.state == NotOpened || (n.state == Failing && n.invokeTS == timestamp.PreStream) {
		n.state = Closed
		n.mu.Unlock()
		return nil
	}
	if n.state == Closed {
		n.mu.Unlock()
		return nil
	}
	n.state = Closing
	n.invokeTS = timestamp.PostStream
	n.mu.Unlock()

	ctx := calculator.NewContext(timestamp.PostStream, nil, n, n.SidePackets, n.Services)
	err := n.Calc.Close(ctx)

	for _, out := range n.Outputs {
		out.Close()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = Closed
	if err != nil && n.err == nil {
		n.err = errors.WrapInvalid(errors.ErrCalculatorError, "Node", "Close", "calculator Close failed for "+n.Name)
		n.Logger.Error("node close failed", "node", n.Name, "error", err)
		return n.err
	}
	n.Logger.Info("node closed", "node", n.Name)
	return nil
}

// Cancel forces the node to Closed, skipping the calculator's Close entry
// point if it was never Opened. It is idempotent.
func (n *Node) Cancel() error {
	n.mu.Lock()
	state := n.state
	n.mu.Unlock()
	if state == NotOpened || state == Closed {
		n.mu.Lock()
		n.state = Closed
		n.mu.Unlock()
		return nil
	}
	return n.Close()
}
