package calculator

import (
	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/timestamp"
)

// Emitter is implemented by the node hosting a calculator invocation. It
// performs the actual timestamp-monotonicity check and stream write for a
// packet emitted on a named output port, keeping that bookkeeping out of
// the calculator package and out of user calculator code.
type Emitter interface {
	Emit(tag string, p packet.Packet) error
}

// InputPort is a calculator's read-only view of one input port for the
// current invocation.
type InputPort struct {
	packet packet.Packet
}

// Value returns the packet delivered on this port for the current
// invocation; it is the zero Packet (IsEmpty true) if the port had no data
// at the invocation's timestamp.
func (p InputPort) Value() packet.Packet {
	return p.packet
}

// IsEmpty reports whether this port had no data at the invocation's
// timestamp.
func (p InputPort) IsEmpty() bool {
	return p.packet.IsEmpty()
}

// Inputs is a calculator's read-only view of all its input ports for the
// current invocation.
type Inputs struct {
	byTag map[string]packet.Packet
}

// Tag returns the named input port's view.
func (in Inputs) Tag(name string) InputPort {
	return InputPort{packet: in.byTag[name]}
}

// OutputPort is a calculator's write handle for one output port.
type OutputPort struct {
	tag     string
	emitter Emitter
}

// Add emits p on this output port. It fails with TimestampMonotonicity if
// p's timestamp does not strictly exceed the port's last emitted
// timestamp, or is before the invocation's input timestamp.
func (p OutputPort) Add(pk packet.Packet) error {
	return p.emitter.Emit(p.tag, pk)
}

// Outputs is a calculator's write view of all its output ports for the
// current invocation.
type Outputs struct {
	emitter Emitter
	tags    map[string]struct{}
}

// Tag returns the named output port's write handle.
func (out Outputs) Tag(name string) OutputPort {
	return OutputPort{tag: name, emitter: out.emitter}
}

// Context is the per-invocation window a calculator entry point receives.
// It is passed explicitly and never stashed in thread-local or
// goroutine-local state.
type Context struct {
	// Timestamp is the invocation's input timestamp. For Open it is
	// timestamp.PreStream; for Close it is timestamp.PostStream.
	Timestamp timestamp.T

	inputs      Inputs
	outputs     Outputs
	sidePackets map[string]packet.Packet
	services    map[string]any
}

// NewContext builds a per-invocation Context. emitter performs output
// writes; sidePackets and services are frozen maps shared read-only
// across all invocations of a node.
func NewContext(
	ts timestamp.T,
	inputValues map[string]packet.Packet,
	emitter Emitter,
	sidePackets map[string]packet.Packet,
	services map[string]any,
) *Context {
	return &Context{
		Timestamp:   ts,
		inputs:      Inputs{byTag: inputValues},
		outputs:     Outputs{emitter: emitter},
		sidePackets: sidePackets,
		services:    services,
	}
}

// Inputs returns the invocation's input view.
func (c *Context) Inputs() Inputs {
	return c.inputs
}

// Outputs returns the invocation's output view.
func (c *Context) Outputs() Outputs {
	return c.outputs
}

// SidePacket returns the named side packet, if supplied at graph start or
// produced by a generator node.
func (c *Context) SidePacket(name string) (packet.Packet, bool) {
	p, ok := c.sidePackets[name]
	return p, ok
}

// Service returns the named resolved service dependency.
func (c *Context) Service(name string) (any, bool) {
	s, ok := c.services[name]
	return s, ok
}
