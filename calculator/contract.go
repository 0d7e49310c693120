// Package calculator defines the capability set a computation unit must
// implement to participate in a graph, the per-calculator-type contract
// declaring its ports and services, and the per-invocation context handed
// to it by the scheduler.
package calculator

// PortSpec names one input or output port of a calculator's contract. Tag
// is the string name a graph binds a concrete stream to; Index
// disambiguates repeated ports under the same tag (mirroring "tag:index"
// addressing), defaulting to 0 for single-port tags. TypeName is the
// payload type registered in the packet type registry. Optional ports may
// be left unconnected without producing a ConfigError at load time.
type PortSpec struct {
	Tag      string
	Index    int
	TypeName string
	Optional bool
}

// ServiceDescriptor names an external singleton (a clock, a GPU device) a
// calculator depends on, resolved once at graph start and handed to every
// node through its Context rather than re-resolved per invocation.
type ServiceDescriptor struct {
	Name     string
	Required bool
}

// Contract is the static declaration a calculator type makes about its
// shape: which input and output ports it has, which side packets it reads
// or produces, and which services it needs. It is independent of any one
// node's bindings; the graph resolves a node's configured stream names
// against the contract's ports during load.
type Contract struct {
	Inputs            []PortSpec
	Outputs           []PortSpec
	InputSidePackets  []PortSpec
	OutputSidePackets []PortSpec
	Services          []ServiceDescriptor

	// Handler names an input-stream handler policy this calculator type
	// prefers (e.g. "immediate"). The graph-level HandlerOverride and the
	// node's own Handler setting take precedence, in that order; the engine
	// default (Default/synchronized) applies when none is set.
	Handler string
}

// Calculator is the capability set the scheduler invokes. Implementations
// are registered by name (see Register) rather than discovered by
// reflection; the registry is populated by init()-time calls, mirroring
// how payload types register themselves with the packet package.
type Calculator interface {
	// GetContract returns this calculator type's static port/service
	// declaration. graph.New calls it once for each node it builds; the
	// result is not cached across nodes or graphs.
	GetContract() *Contract

	// Open is called once per node instance, after side packets are
	// resolved and before any Process invocation. It may emit packets at
	// timestamp.PreStream.
	Open(ctx *Context) error

	// Process is called once per ready input set, as determined by the
	// node's input-stream handler.
	Process(ctx *Context) error

	// Close is called once, after every upstream has closed or the graph
	// is shutting down. It is not called for a node that was never
	// successfully Opened.
	Close(ctx *Context) error
}
