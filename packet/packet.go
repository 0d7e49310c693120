// Package packet implements the immutable, type-erased, reference-counted
// value container that flows between nodes of a graph, and the runtime type
// registry used to validate endpoint compatibility before any data flows.
package packet

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/timestamp"
)

// TypeID identifies a registered payload type. Two packets carrying values
// of the same concrete Go type always compare equal under TypeID.
type TypeID = reflect.Type

// holder is the shared, reference-counted backing store for a payload. Many
// Packet values taken `At` different timestamps may point at the same
// holder; the payload itself is never mutated once published.
type holder struct {
	value   any
	typeID  TypeID
	refs    int32
	onEmpty func()
}

func (h *holder) retain() {
	atomic.AddInt32(&h.refs, 1)
}

func (h *holder) release() {
	if atomic.AddInt32(&h.refs, -1) == 0 && h.onEmpty != nil {
		h.onEmpty()
	}
}

// Packet is an immutable (timestamp, type, payload) triple. The zero value
// is an empty packet at timestamp 0; use Empty or Of to construct a
// meaningful one.
type Packet struct {
	ts *holder
	at timestamp.T
}

// Empty returns an empty packet bound to t: it advances stream bounds
// without carrying a value.
func Empty(t timestamp.T) Packet {
	return Packet{at: t}
}

// Of creates a packet carrying value, bound to timestamp t.
func Of[T any](t timestamp.T, value T) Packet {
	h := &holder{value: value, typeID: reflect.TypeOf(value), refs: 1}
	return Packet{ts: h, at: t}
}

// OfWithRelease is like Of but calls onRelease once the last reference to
// the payload is dropped; useful for pooled payload buffers.
func OfWithRelease[T any](t timestamp.T, value T, onRelease func()) Packet {
	h := &holder{value: value, typeID: reflect.TypeOf(value), refs: 1, onEmpty: onRelease}
	return Packet{ts: h, at: t}
}

// Timestamp returns the packet's bound timestamp.
func (p Packet) Timestamp() timestamp.T {
	return p.at
}

// IsEmpty reports whether the packet carries no payload.
func (p Packet) IsEmpty() bool {
	return p.ts == nil
}

// TypeID returns the registered type of the payload, or nil if empty.
func (p Packet) TypeID() TypeID {
	if p.ts == nil {
		return nil
	}
	return p.ts.typeID
}

// At returns a new packet sharing this packet's payload but bound to a
// different timestamp. The underlying holder's refcount is incremented;
// each returned Packet's Release must be paired with this call when
// reference-counted release callbacks are in use.
func (p Packet) At(t timestamp.T) Packet {
	if p.ts != nil {
		p.ts.retain()
	}
	return Packet{ts: p.ts, at: t}
}

// Release drops one reference to the packet's payload. Streams and
// calculators that retain a Packet beyond the scope it was handed to them
// should call Release when finished; empty packets are a no-op.
func (p Packet) Release() {
	if p.ts != nil {
		p.ts.release()
	}
}

// ValueAs returns the packet's payload asserted to type T, or TypeMismatch
// if the packet is empty or carries a different concrete type.
func ValueAs[T any](p Packet) (T, error) {
	var zero T
	if p.ts == nil {
		return zero, errors.WrapInvalid(errors.ErrTypeMismatch, "Packet", "ValueAs", "packet is empty")
	}
	v, ok := p.ts.value.(T)
	if !ok {
		return zero, errors.WrapInvalid(errors.ErrTypeMismatch, "Packet", "ValueAs",
			fmt.Sprintf("packet holds %v, want %v", p.ts.typeID, reflect.TypeOf(zero)))
	}
	return v, nil
}

// String renders the packet for logs: timestamp and type name, never the
// payload itself (payloads may be large or unprintable).
func (p Packet) String() string {
	if p.ts == nil {
		return fmt.Sprintf("Packet{t=%s, empty}", p.at)
	}
	return fmt.Sprintf("Packet{t=%s, type=%s}", p.at, p.ts.typeID)
}
