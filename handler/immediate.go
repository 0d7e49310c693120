package handler

import (
	"github.com/c360/flowgraph/stream"
	"github.com/c360/flowgraph/timestamp"
)

// Immediate invokes as soon as any input stream has a packet, without
// waiting for the others to settle; inputs with nothing at the invoking
// timestamp are observed as empty. Suited to loosely coupled streams
// where strict synchronization would stall the node unnecessarily.
type Immediate struct{}

// ComputeReadiness implements Handler.
func (Immediate) ComputeReadiness(inputs map[string]*stream.Stream) Result {
	if allClosedAndEmpty(inputs) {
		return Result{Kind: ReadyForClose}
	}

	var earliest timestamp.T
	found := false
	for _, s := range inputs {
		if head, present := s.Peek(); present {
			if !found || head.Timestamp().Before(earliest) {
				earliest = head.Timestamp()
				found = true
			}
		}
	}

	if !found {
		return Result{Kind: NotReady}
	}
	return Result{Kind: ReadyForProcess, Timestamp: earliest}
}
