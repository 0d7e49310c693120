// Package handler implements the input-stream handler policies that decide
// when a node's accumulated inputs constitute a ready invocation.
package handler

import (
	"github.com/c360/flowgraph/stream"
	"github.com/c360/flowgraph/timestamp"
)

// Kind is the readiness classification a handler reports on each
// re-evaluation.
type Kind int

const (
	// NotReady means the node should not be invoked yet.
	NotReady Kind = iota
	// ReadyForProcess means Process should be invoked at Timestamp.
	ReadyForProcess
	// ReadyForClose means every input has reached Done and Close should
	// be invoked.
	ReadyForClose
)

func (k Kind) String() string {
	switch k {
	case NotReady:
		return "NotReady"
	case ReadyForProcess:
		return "ReadyForProcess"
	case ReadyForClose:
		return "ReadyForClose"
	default:
		return "Unknown"
	}
}

// Result is the outcome of a readiness evaluation.
type Result struct {
	Kind      Kind
	Timestamp timestamp.T
}

// Handler is the strategy attached to a node that decides, given the
// current state of its input streams, whether the node is ready to run.
type Handler interface {
	// ComputeReadiness evaluates the named input streams and returns the
	// current readiness. Default and Immediate only peek; FixedSize pops
	// the oldest packets of any input queued beyond its cap. The node
	// consumes heads via Stream.Pop once it actually invokes Process at
	// the reported timestamp.
	ComputeReadiness(inputs map[string]*stream.Stream) Result
}

// allClosedAndEmpty reports whether every stream is closed with no
// remaining queued packets, meaning no further Process invocation is
// possible and the node should transition to Closing.
func allClosedAndEmpty(inputs map[string]*stream.Stream) bool {
	if len(inputs) == 0 {
		return false
	}
	for _, s := range inputs {
		if !s.IsClosed() || s.Len() > 0 {
			return false
		}
	}
	return true
}
