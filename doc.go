// Package flowgraph is a dataflow graph runtime for realtime perception
// pipelines: typed, timestamp-ordered streams connect calculator nodes,
// a scheduler drives each node's input-stream handler to decide when it
// has enough input to run, and an executor abstraction dispatches the
// work onto worker goroutines or an externally-polled inline queue.
//
// # Architecture
//
//	┌──────────────┐    ┌──────────────┐    ┌──────────────┐
//	│   Stream     │───▶│    Node      │───▶│   Stream     │
//	│ (FIFO queue, │    │ (calculator  │    │ (FIFO queue, │
//	│  timestamp-  │    │  + handler   │    │  timestamp-  │
//	│  ordered)    │    │  + state     │    │  ordered)    │
//	│              │    │  machine)    │    │              │
//	└──────────────┘    └──────┬───────┘    └──────────────┘
//	                           │ ComputeReadiness / Process / Close
//	                    ┌──────▼───────┐
//	                    │  Scheduler   │  readiness loop, first-error-wins
//	                    └──────┬───────┘
//	                           │ Submit(WorkItem)
//	                    ┌──────▼───────┐
//	                    │   Executor   │  ThreadPool or Inline
//	                    └──────────────┘
//
// A Graph assembles this topology from a graphconfig.GraphConfig (loaded
// from YAML), resolving each node's calculator, its input-stream handler
// policy, and the executor its work is dispatched onto, then exposes an
// async lifecycle (Start, AddPacket, CloseInputStream, WaitUntilDone,
// Cancel) plus a RunToCompletion convenience wrapper for batch use.
//
// # Packages
//
// Core dataflow primitives:
//   - timestamp: the monotonic ordering type packets and streams key on
//   - packet: a typed, immutable value at a timestamp, plus the generic
//     registry that maps names to concrete Go types for config-driven wiring
//   - stream: a bounded, timestamp-ordered FIFO with bound-based closure
//   - handler: input-stream readiness policies (synchronized-by-timestamp
//     default, immediate, fixed-size)
//   - calculator: the contract every processing unit implements, plus its
//     registry and per-invocation context
//   - node: one calculator instance bound to its streams, serialized
//     through a lifecycle state machine
//   - executor: work dispatch, either a fixed worker pool or an inline
//     queue an external driver polls
//   - scheduler: the readiness loop driving a fixed set of nodes to
//     completion or first fatal error
//   - graphconfig: YAML topology loading and validation
//   - graph: assembly and lifecycle of a running topology
//
// Ambient infrastructure:
//   - errors: a structured error taxonomy (config, type mismatch,
//     timestamp regression, queue full, unavailable, cancelled,
//     calculator error) with transient/fatal classification
//   - metric: Prometheus counters, histograms, and gauges for invocation
//     outcomes, durations, node state, and graph status
//   - health: aggregate health reporting over node state
//   - pkg/retry: exponential backoff retry for calculator Open calls that
//     do I/O (connecting to a model server, a capture device)
//
// Example calculators (calculators/identity, calculators/jsonmap,
// calculators/jsonfilter) demonstrate the system end to end and register
// themselves by blank import.
package flowgraph
