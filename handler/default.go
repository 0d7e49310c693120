package handler

import (
	"github.com/c360/flowgraph/stream"
	"github.com/c360/flowgraph/timestamp"
)

// Default synchronizes a node's inputs by timestamp: it waits for the
// smallest timestamp t at which every input stream either holds a packet
// at exactly t or has definitively advanced its bound past t.
type Default struct{}

// ComputeReadiness implements Handler.
func (Default) ComputeReadiness(inputs map[string]*stream.Stream) Result {
	if allClosedAndEmpty(inputs) {
		return Result{Kind: ReadyForClose}
	}

	candidate, ok := settlePoint(inputs)
	if !ok {
		return Result{Kind: NotReady}
	}

	for _, s := range inputs {
		if head, present := s.Peek(); present && head.Timestamp() == candidate {
			continue
		}
		if s.Bound().Before(candidate) || s.Bound() == candidate {
			return Result{Kind: NotReady}
		}
	}

	return Result{Kind: ReadyForProcess, Timestamp: candidate}
}

// settlePoint returns the smallest timestamp at which some stream has
// either produced a packet or definitively ruled out earlier data, i.e.
// the candidate timestamp the synchronized policy evaluates readiness at.
// ok is false when at least one stream has observed nothing at all yet.
func settlePoint(inputs map[string]*stream.Stream) (t timestamp.T, ok bool) {
	var candidate timestamp.T
	found := false

	for _, s := range inputs {
		var threshold timestamp.T
		if head, present := s.Peek(); present {
			threshold = head.Timestamp()
		} else {
			b := s.Bound()
			if b == timestamp.Unstarted {
				return 0, false
			}
			threshold = b
		}
		if !found || threshold.Before(candidate) {
			candidate = threshold
			found = true
		}
	}

	return candidate, found
}
