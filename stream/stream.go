// Package stream implements the single-writer, multi-reader FIFO edge type
// that carries packets between two nodes. Each Stream instance realizes
// exactly one edge of a graph topology and owns the edge's
// next_timestamp_bound: the timestamp below which no further packet can
// ever arrive.
package stream

import (
	"context"
	"sync"

	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/timestamp"
)

// BackpressureMode selects what Add does when the stream is at capacity.
type BackpressureMode int

const (
	// WaitTillNotFull blocks the caller until space is available or the
	// stream closes.
	WaitTillNotFull BackpressureMode = iota
	// AddIfNotFull returns ErrQueueFull immediately instead of blocking.
	AddIfNotFull
)

// Stats is a point-in-time snapshot of a stream's queue state, suitable for
// exporting as metrics.
type Stats struct {
	Name          string
	Len           int
	Capacity      int
	Bound         timestamp.T
	Closed        bool
	PacketsAdded  int64
	PacketsPopped int64
	Dropped       int64
}

// Stream is a typed FIFO with a monotonically advancing bound. Capacity of
// 0 means unbounded.
type Stream struct {
	name     string
	capacity int

	mu      sync.Mutex
	notFull *sync.Cond
	items   []packet.Packet
	bound   timestamp.T
	closed  bool

	added, popped, dropped int64
}

// New creates a stream named name with the given capacity (0 = unbounded).
// The bound starts at timestamp.Unstarted: nothing has been observed yet.
func New(name string, capacity int) *Stream {
	s := &Stream{
		name:     name,
		capacity: capacity,
		bound:    timestamp.Unstarted,
	}
	s.notFull = sync.NewCond(&s.mu)
	return s
}

// Name returns the stream's edge name, used in error messages and metrics.
func (s *Stream) Name() string {
	return s.name
}

// Add appends p to the stream according to mode. It requires
// p.Timestamp() >= Bound(); violating that returns TimestampRegression.
// Adding to a closed stream returns StreamClosed.
func (s *Stream) Add(ctx context.Context, p packet.Packet, mode BackpressureMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.WrapInvalid(errors.ErrStreamClosed, "Stream", "Add", "stream "+s.name+" is closed")
	}
	// An Unstarted bound means nothing has been observed yet, so the first
	// packet at any timestamp is always accepted.
	if s.bound != timestamp.Unstarted && !s.bound.Before(p.Timestamp().NextAllowedInStream()) {
		return errors.WrapFatal(errors.ErrTimestampRegression, "Stream", "Add",
			"packet at "+p.Timestamp().String()+" not after bound "+s.bound.String())
	}

	if s.capacity > 0 {
		for len(s.items) >= s.capacity && !s.closed {
			if mode == AddIfNotFull {
				s.dropped++
				return errors.WrapTransient(errors.ErrQueueFull, "Stream", "Add", "stream "+s.name+" at capacity")
			}
			waitDone := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					s.mu.Lock()
					s.notFull.Broadcast()
					s.mu.Unlock()
				case <-waitDone:
				}
			}()
			s.notFull.Wait()
			close(waitDone)
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if s.closed {
			return errors.WrapInvalid(errors.ErrStreamClosed, "Stream", "Add", "stream "+s.name+" closed while waiting")
		}
	}

	s.items = append(s.items, p)
	s.bound = p.Timestamp().NextAllowedInStream()
	s.added++
	return nil
}

// SetNextTimestampBound advances the bound to t without adding a packet,
// publishing "no packet will ever arrive below t". Calls that would move
// the bound backward are ignored; the bound only ever moves forward.
func (s *Stream) SetNextTimestampBound(t timestamp.T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.bound == timestamp.Unstarted || s.bound.Before(t) {
		s.bound = t
	}
}

// Bound returns the stream's current next_timestamp_bound.
func (s *Stream) Bound() timestamp.T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Close marks the stream append-closed: the bound advances to
// timestamp.Done and no further Add succeeds.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.bound = timestamp.Done
	s.notFull.Broadcast()
}

// IsClosed reports whether Close has been called.
func (s *Stream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Peek returns the head packet without removing it.
func (s *Stream) Peek() (packet.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return packet.Packet{}, false
	}
	return s.items[0], true
}

// Pop removes and returns the head packet.
func (s *Stream) Pop() (packet.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return packet.Packet{}, false
	}
	p := s.items[0]
	s.items[0] = packet.Packet{}
	s.items = s.items[1:]
	s.popped++
	s.notFull.Signal()
	return p, true
}

// Len returns the number of packets currently queued.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stats returns a snapshot of the stream's counters, for metrics export.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Name:          s.name,
		Len:           len(s.items),
		Capacity:      s.capacity,
		Bound:         s.bound,
		Closed:        s.closed,
		PacketsAdded:  s.added,
		PacketsPopped: s.popped,
		Dropped:       s.dropped,
	}
}
