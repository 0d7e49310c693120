// Package graph assembles a validated graphconfig.GraphConfig into a
// running topology of nodes, streams, and executors, and exposes the
// lifecycle operations that drive it from load to completion.
package graph

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/flowgraph/calculator"
	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/executor"
	"github.com/c360/flowgraph/graphconfig"
	"github.com/c360/flowgraph/handler"
	"github.com/c360/flowgraph/health"
	"github.com/c360/flowgraph/metric"
	"github.com/c360/flowgraph/node"
	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/scheduler"
	"github.com/c360/flowgraph/stream"
	"github.com/c360/flowgraph/timestamp"
)

// ServiceBinding supplies named service instances (a shared clock, a GPU
// handle, a model client) that calculators depend on through their
// contract's Services declaration. Graph.Start accepts any number of these
// and merges them before resolving each node's bound services; a name
// present in more than one binding takes its value from the last one
// passed.
type ServiceBinding map[string]any

// PacketObserver is notified of every packet AddPacket delivers to an
// external-ingress stream, for test harnesses and debugging tools. Packets
// that nodes emit onto internal edges are not reported.
type PacketObserver func(streamName string, p packet.Packet)

// Graph owns the full set of streams, nodes, and executors built from one
// graphconfig.GraphConfig, plus the scheduler driving them.
type Graph struct {
	name    string
	runID   string
	cfg     *graphconfig.GraphConfig
	metrics *metric.Metrics
	monitor *health.Monitor
	ingress *rate.Limiter
	logger  *slog.Logger

	streams     map[string]*stream.Stream
	nodes       map[string]*node.Node
	nodeConfigs map[string]graphconfig.NodeConfig
	execByName  map[string]executor.Executor
	sched       *scheduler.Scheduler

	mu          sync.Mutex
	started     bool
	sidePackets map[string]packet.Packet
	observers   []PacketObserver
}

// Option configures a Graph at construction time.
type Option func(*Graph)

// WithMetrics attaches a shared Metrics instance the graph and its nodes
// record invocation, stream, and lifecycle metrics against.
func WithMetrics(m *metric.Metrics) Option {
	return func(g *Graph) { g.metrics = m }
}

// WithHealthMonitor attaches a health.Monitor the graph updates with each
// node's status as it changes state.
func WithHealthMonitor(m *health.Monitor) Option {
	return func(g *Graph) { g.monitor = m }
}

// WithLogger attaches the *slog.Logger the graph, its scheduler, and its
// nodes log lifecycle transitions and calculator failures to. Defaults to
// slog.Default() if never set.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) { g.logger = logger }
}

// WithIngressRateLimit caps how fast AddPacket accepts external packets,
// for graphs fed by a bursty producer that would otherwise overrun
// downstream node capacity faster than the graph can drain it.
func WithIngressRateLimit(packetsPerSecond float64, burst int) Option {
	return func(g *Graph) { g.ingress = rate.NewLimiter(rate.Limit(packetsPerSecond), burst) }
}

// New builds a Graph from cfg: it constructs every declared stream,
// instantiates a calculator and node for every NodeConfig, wires input and
// output ports to the named streams, and resolves each node's handler per
// the override precedence (graph-level override, then the node's own
// Handler, then the calculator contract's preferred handler, then
// handler.Default). It returns a ConfigError if cfg fails validation, any
// calculator type isn't registered, a node leaves a required port, side
// packet or service unbound, or an input's declared type is incompatible
// with its producer's. A bound port the contract doesn't declare is wired
// without a check.
func New(cfg *graphconfig.GraphConfig, opts ...Option) (*Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.CalculatorTypesRegistered(); err != nil {
		return nil, err
	}

	g := &Graph{
		name:        cfg.Name,
		cfg:         cfg,
		streams:     make(map[string]*stream.Stream),
		nodes:       make(map[string]*node.Node),
		nodeConfigs: make(map[string]graphconfig.NodeConfig, len(cfg.Nodes)),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}

	for _, n := range cfg.Nodes {
		for _, streamName := range n.Inputs {
			g.ensureStream(streamName, cfg)
		}
		for _, streamName := range n.Outputs {
			g.ensureStream(streamName, cfg)
		}
	}

	// Resolve every node's calculator contract first, so a node's input
	// type-compatibility check (against the contract of whichever other
	// node produces its stream) doesn't depend on build order.
	contracts := make(map[string]*calculator.Contract, len(cfg.Nodes))
	streamProducerType := make(map[string]string, len(g.streams))
	for _, nc := range cfg.Nodes {
		calc, err := calculator.New(nc.Calculator)
		if err != nil {
			return nil, err
		}
		contract := calc.GetContract()
		contracts[nc.Name] = contract
		for key, streamName := range nc.Outputs {
			tag, idx := parsePortKey(key)
			if spec, ok := findPortSpec(contract.Outputs, tag, idx); ok {
				streamProducerType[streamName] = spec.TypeName
			}
		}
	}

	for _, nc := range cfg.Nodes {
		g.nodeConfigs[nc.Name] = nc
		n, err := g.buildNode(nc, contracts[nc.Name], streamProducerType)
		if err != nil {
			return nil, err
		}
		g.nodes[nc.Name] = n
	}

	return g, nil
}

// portKey identifies one tag:index addressed port within a contract.
type portKey struct {
	tag   string
	index int
}

// parsePortKey splits a port-binding key of the form "TAG" or "TAG:INDEX"
// into its tag and index, defaulting to index 0 for single-port tags.
func parsePortKey(key string) (string, int) {
	if i := strings.LastIndex(key, ":"); i >= 0 {
		if n, err := strconv.Atoi(key[i+1:]); err == nil {
			return key[:i], n
		}
	}
	return key, 0
}

// findPortSpec returns the PortSpec in specs addressed by tag:index, if any.
func findPortSpec(specs []calculator.PortSpec, tag string, index int) (calculator.PortSpec, bool) {
	for _, spec := range specs {
		if spec.Tag == tag && spec.Index == index {
			return spec, true
		}
	}
	return calculator.PortSpec{}, false
}

func containsString(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

// requirePorts fails with a ConfigError if any non-Optional PortSpec in
// specs has no corresponding entry in bindings, keyed by tag:index.
func requirePorts(nodeName, kind string, specs []calculator.PortSpec, bindings graphconfig.PortBinding) error {
	bound := make(map[portKey]bool, len(bindings))
	for key := range bindings {
		tag, idx := parsePortKey(key)
		bound[portKey{tag, idx}] = true
	}
	for _, spec := range specs {
		if spec.Optional {
			continue
		}
		if !bound[portKey{spec.Tag, spec.Index}] {
			return errors.WrapInvalid(errors.ErrConfigError, "graph", "buildNode",
				"node "+nodeName+" missing required "+kind+" port "+spec.Tag)
		}
	}
	return nil
}

func (g *Graph) ensureStream(name string, cfg *graphconfig.GraphConfig) {
	if _, ok := g.streams[name]; ok {
		return
	}
	capacity := 0
	if sc, ok := cfg.Streams[name]; ok {
		capacity = sc.Capacity
	}
	g.streams[name] = stream.New(name, capacity)
}

func (g *Graph) buildNode(nc graphconfig.NodeConfig, contract *calculator.Contract, streamProducerType map[string]string) (*node.Node, error) {
	calc, err := calculator.New(nc.Calculator)
	if err != nil {
		return nil, err
	}

	inputs := make(map[string]*stream.Stream, len(nc.Inputs))
	for key, streamName := range nc.Inputs {
		s, ok := g.streams[streamName]
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrConfigError, "graph", "buildNode",
				"node "+nc.Name+" input "+key+" references unknown stream "+streamName)
		}
		tag, idx := parsePortKey(key)
		inputs[tag] = s

		spec, ok := findPortSpec(contract.Inputs, tag, idx)
		if !ok || spec.TypeName == "" {
			continue
		}
		producerType, known := streamProducerType[streamName]
		if !known || producerType == "" || packet.Compatible(producerType, spec.TypeName) {
			continue
		}
		return nil, errors.WrapInvalid(errors.ErrConfigError, "graph", "buildNode",
			"node "+nc.Name+" input "+tag+" declares type "+spec.TypeName+
				" incompatible with producer type "+producerType+" on stream "+streamName)
	}
	outputs := make(map[string]*stream.Stream, len(nc.Outputs))
	for key, streamName := range nc.Outputs {
		s, ok := g.streams[streamName]
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrConfigError, "graph", "buildNode",
				"node "+nc.Name+" output "+key+" references unknown stream "+streamName)
		}
		tag, _ := parsePortKey(key)
		outputs[tag] = s
	}

	if err := requirePorts(nc.Name, "input", contract.Inputs, nc.Inputs); err != nil {
		return nil, err
	}
	if err := requirePorts(nc.Name, "output", contract.Outputs, nc.Outputs); err != nil {
		return nil, err
	}
	for _, spec := range contract.InputSidePackets {
		if spec.Optional {
			continue
		}
		if !containsString(nc.SidePacket, spec.Tag) {
			return nil, errors.WrapInvalid(errors.ErrConfigError, "graph", "buildNode",
				"node "+nc.Name+" missing required input side packet "+spec.Tag)
		}
	}
	for _, sd := range contract.Services {
		if !sd.Required {
			continue
		}
		if !containsString(nc.Services, sd.Name) {
			return nil, errors.WrapInvalid(errors.ErrConfigError, "graph", "buildNode",
				"node "+nc.Name+" missing required service "+sd.Name)
		}
	}

	h := g.resolveHandler(nc, contract)

	sidePackets := make(map[string]packet.Packet)
	for _, name := range nc.SidePacket {
		if p, ok := g.sidePackets[name]; ok {
			sidePackets[name] = p
		}
	}
	services := make(map[string]any, len(nc.Services))

	n := node.New(nc.Name, calc, h, inputs, outputs, sidePackets, services)
	n.Logger = g.logger

	backpressure := stream.WaitTillNotFull
	for _, streamName := range nc.Outputs {
		if sc, ok := g.cfg.Streams[streamName]; ok && sc.Backpressure == "drop" {
			backpressure = stream.AddIfNotFull
		}
	}
	n.Backpressure = backpressure

	return n, nil
}

// resolveHandler applies the documented precedence: a graph-level
// HandlerOverride forces every node; otherwise the node's own Handler
// field is used; otherwise the calculator contract's preferred Handler;
// otherwise handler.Default.
func (g *Graph) resolveHandler(nc graphconfig.NodeConfig, contract *calculator.Contract) handler.Handler {
	name := g.cfg.HandlerOverride
	if name == "" {
		name = nc.Handler
	}
	if name == "" {
		name = contract.Handler
	}
	switch name {
	case "immediate":
		return handler.Immediate{}
	case "fixed_size":
		maxQueue := nc.FixedSizeMaxQueue
		if maxQueue <= 0 {
			maxQueue = 64
		}
		return handler.NewFixedSize(maxQueue)
	default:
		return handler.Default{}
	}
}

// SetSidePackets supplies the side packets available to every node before
// Start is called. Calling this after Start has no effect on already-open
// nodes.
func (g *Graph) SetSidePackets(packets map[string]packet.Packet) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sidePackets = packets
	for name, n := range g.nodes {
		for _, sideName := range g.nodeConfigs[name].SidePacket {
			if p, ok := packets[sideName]; ok {
				n.SidePackets[sideName] = p
			}
		}
	}
}

// ObservePackets registers fn to be called whenever AddPacket delivers a
// packet to any external-ingress stream, in addition to the node consuming
// it. There is no per-stream filter; fn receives the stream name.
func (g *Graph) ObservePackets(fn PacketObserver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, fn)
}

// Start constructs the default executor pool (or the configured ones),
// resolves every node's declared services against the supplied bindings,
// opens every node, and begins the scheduler's readiness loop. Later
// bindings in services take precedence over earlier ones for the same
// name.
func (g *Graph) Start(ctx context.Context, services ...ServiceBinding) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "graph", "Start", "graph "+g.name+" already started")
	}
	g.started = true
	g.runID = uuid.New().String()
	g.mu.Unlock()

	merged := make(map[string]any)
	for _, sb := range services {
		for name, v := range sb {
			merged[name] = v
		}
	}
	for _, nc := range g.cfg.Nodes {
		n := g.nodes[nc.Name]
		for _, name := range nc.Services {
			if v, ok := merged[name]; ok {
				n.Services[name] = v
			}
		}
	}

	execByName := make(map[string]executor.Executor)
	for name, ec := range g.cfg.Executors {
		switch ec.Kind {
		case "inline":
			execByName[name] = executor.NewInline()
		default:
			execByName[name] = executor.NewThreadPool(ec.Workers, ec.QueueSize,
				executor.WithMetrics(g.metrics, name))
		}
	}
	// The default executor runs its own worker goroutines so a graph with
	// no explicit executor configuration still makes progress without an
	// external poll loop; Inline is only useful when a caller configures
	// it explicitly and intends to drain it themselves (deterministic
	// single-threaded tests).
	defaultExec := execByName[g.cfg.DefaultExecutor]
	if defaultExec == nil {
		defaultExec = executor.NewThreadPool(4, 256)
	}
	g.execByName = execByName

	var nodes []*node.Node
	var execs []executor.Executor
	for _, nc := range g.cfg.Nodes {
		n := g.nodes[nc.Name]
		nodes = append(nodes, n)
		if ec, ok := execByName[nc.Executor]; ok {
			execs = append(execs, ec)
		} else {
			execs = append(execs, defaultExec)
		}
	}

	sched, err := scheduler.New(g.name, nodes, execs, g.metrics)
	if err != nil {
		return err
	}
	sched.SetLogger(g.logger)
	g.sched = sched

	g.logger.Info("graph starting", "graph", g.name, "run_id", g.runID, "nodes", len(nodes))
	if err := sched.Start(ctx); err != nil {
		g.logger.Error("graph start failed", "graph", g.name, "run_id", g.runID, "error", err)
		return err
	}

	if g.monitor != nil {
		for _, nc := range g.cfg.Nodes {
			n := g.nodes[nc.Name]
			g.monitor.Update(nc.Name, health.FromNodeHealth(nc.Name, n.State(), n.Err()))
		}
	}
	return nil
}

// Executor returns the named configured executor, for test harnesses that
// configured an inline executor and need to drive it explicitly (e.g.
// *executor.Inline's PollAll) since Inline never runs work on its own.
func (g *Graph) Executor(name string) (executor.Executor, bool) {
	e, ok := g.execByName[name]
	return e, ok
}

// RunID returns the unique identifier assigned when Start was called,
// for correlating this run's logs and metrics across restarts of the
// same named graph. It is empty until Start has been called.
func (g *Graph) RunID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runID
}

// AddPacket delivers p to the named external-ingress stream and wakes the
// scheduler for an immediate readiness re-evaluation. If the graph was
// built with WithIngressRateLimit, AddPacket blocks until the limiter
// admits this packet or ctx is cancelled.
func (g *Graph) AddPacket(ctx context.Context, streamName string, p packet.Packet) error {
	s, ok := g.streams[streamName]
	if !ok {
		return errors.WrapFatal(errors.ErrUnknownStream, "graph", "AddPacket", "unknown stream "+streamName)
	}
	if g.ingress != nil {
		if err := g.ingress.Wait(ctx); err != nil {
			return errors.WrapTransient(errors.ErrUnavailable, "graph", "AddPacket", "ingress rate limiter wait failed")
		}
	}
	mode := stream.WaitTillNotFull
	if sc, ok := g.cfg.Streams[streamName]; ok && sc.Backpressure == "drop" {
		mode = stream.AddIfNotFull
	}
	if err := s.Add(ctx, p, mode); err != nil {
		return err
	}
	g.mu.Lock()
	observers := append([]PacketObserver(nil), g.observers...)
	g.mu.Unlock()
	for _, obs := range observers {
		obs(streamName, p)
	}
	if g.sched != nil {
		g.sched.Notify()
	}
	return nil
}

// CloseInputStream advances streamName's bound to timestamp.Done and
// closes it, signaling that no further packets will ever arrive.
func (g *Graph) CloseInputStream(streamName string) error {
	s, ok := g.streams[streamName]
	if !ok {
		return errors.WrapFatal(errors.ErrUnknownStream, "graph", "CloseInputStream", "unknown stream "+streamName)
	}
	s.SetNextTimestampBound(timestamp.Done)
	s.Close()
	if g.sched != nil {
		g.sched.Notify()
	}
	return nil
}

// WaitUntilDone blocks until every node has closed or ctx is cancelled.
func (g *Graph) WaitUntilDone(ctx context.Context) error {
	if g.sched == nil {
		return errors.WrapFatal(errors.ErrFailedPrecondition, "graph", "WaitUntilDone", "graph not started")
	}
	return g.sched.WaitUntilDone(ctx)
}

// Cancel forces the graph to a terminal state without waiting for natural
// stream closure, for shutdown paths and fatal error handling upstream of
// the graph itself.
func (g *Graph) Cancel() {
	if g.sched != nil {
		g.sched.Cancel()
	}
}

// Status returns the scheduler's current run status.
func (g *Graph) Status() scheduler.Status {
	if g.sched == nil {
		return scheduler.NotStarted
	}
	return g.sched.Status()
}

// Err returns the first fatal error the graph recorded, if any.
func (g *Graph) Err() error {
	if g.sched == nil {
		return nil
	}
	return g.sched.Err()
}

// RunToCompletion is the synchronous convenience wrapper over the async
// API: it starts the graph, delivers each packet in order, closes every
// named stream in closeStreams, and blocks until the graph finishes or ctx
// is cancelled.
func RunToCompletion(ctx context.Context, g *Graph, packets []TimedPacket, closeStreams []string, timeout time.Duration) error {
	if err := g.Start(ctx); err != nil {
		return err
	}
	for _, tp := range packets {
		if err := g.AddPacket(ctx, tp.Stream, tp.Packet); err != nil {
			return err
		}
	}
	for _, name := range closeStreams {
		if err := g.CloseInputStream(name); err != nil {
			return err
		}
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return g.WaitUntilDone(waitCtx)
}

// TimedPacket pairs a packet with the name of the external-ingress stream
// it should be delivered to, for RunToCompletion's ordered packet list.
type TimedPacket struct {
	Stream string
	Packet packet.Packet
}
