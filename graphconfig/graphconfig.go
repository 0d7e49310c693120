// Package graphconfig loads a graph topology from YAML: the node list,
// their calculator bindings, the named streams wiring them together, and
// the side packets and handler overrides the graph starts with. The
// loaded GraphConfig is the input to graph.New.
package graphconfig

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/c360/flowgraph/calculator"
	"github.com/c360/flowgraph/errors"
)

// PortBinding names the stream a node port is wired to, keyed by the
// calculator's port tag.
type PortBinding map[string]string

// NodeConfig describes one node: which calculator instance backs it, and
// which named streams feed its input and output ports.
type NodeConfig struct {
	Name       string      `yaml:"name"`
	Calculator string      `yaml:"calculator"`
	Inputs     PortBinding `yaml:"inputs,omitempty"`
	Outputs    PortBinding `yaml:"outputs,omitempty"`
	SidePacket []string    `yaml:"side_packets,omitempty"`
	Services   []string    `yaml:"services,omitempty"`

	// Handler names this node's input-stream handler policy: "default"
	// (synchronized by timestamp), "immediate", or "fixed_size". Empty
	// means the engine default (synchronized by timestamp) applies.
	Handler string `yaml:"handler,omitempty"`

	// FixedSizeMaxQueue configures the fixed_size handler's per-stream
	// cap; ignored for other handler kinds.
	FixedSizeMaxQueue int `yaml:"fixed_size_max_queue,omitempty"`

	// Executor names the executor pool this node's work is dispatched
	// to, matching a key in GraphConfig.Executors. Empty uses the
	// graph's default executor.
	Executor string `yaml:"executor,omitempty"`
}

// StreamConfig configures one named edge: its backlog capacity and
// whether ingress/egress blocks or drops when the edge is full.
type StreamConfig struct {
	Capacity     int    `yaml:"capacity,omitempty"`
	Backpressure string `yaml:"backpressure,omitempty"` // "wait" or "drop"
}

// ExecutorConfig configures one named executor pool.
type ExecutorConfig struct {
	Kind      string `yaml:"kind"` // "thread_pool" or "inline"
	Workers   int    `yaml:"workers,omitempty"`
	QueueSize int    `yaml:"queue_size,omitempty"`
}

// GraphConfig is the full, validated description of a graph topology.
type GraphConfig struct {
	Name   string                  `yaml:"name"`
	Nodes  []NodeConfig            `yaml:"nodes"`
	Streams map[string]StreamConfig `yaml:"streams,omitempty"`

	// HandlerOverride, when set, forces every node in the graph to use
	// this handler regardless of its own Handler field.
	HandlerOverride string `yaml:"handler_override,omitempty"`

	Executors map[string]ExecutorConfig `yaml:"executors,omitempty"`

	// DefaultExecutor names the entry in Executors used by nodes that
	// don't set their own Executor. Empty, or a name not in Executors,
	// means a thread pool of four workers.
	DefaultExecutor string `yaml:"default_executor,omitempty"`
}

// Load reads and parses a GraphConfig from a YAML file, then validates it.
func Load(path string) (*GraphConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "graphconfig", "Load", "read "+path)
	}
	return Parse(data)
}

// Parse parses raw YAML bytes into a validated GraphConfig.
func Parse(data []byte) (*GraphConfig, error) {
	var cfg GraphConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapFatal(err, "graphconfig", "Parse", "decode YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the topology for load-time configuration errors: missing
// names, missing calculator types, unknown handler names, duplicate
// producers for a stream, and cycles in the node dependency graph.
// Validate does not require every calculator referenced to currently be
// registered in the global registry; callers that need that guarantee
// should check calculator.Registered themselves, since test topologies
// often register calculators after parsing.
func (c *GraphConfig) Validate() error {
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate", "graph name is required")
	}
	if len(c.Nodes) == 0 {
		return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate", "graph must declare at least one node")
	}

	seenNodes := make(map[string]bool, len(c.Nodes))
	producers := make(map[string]string) // stream name -> producing node

	for _, n := range c.Nodes {
		if n.Name == "" {
			return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate", "node name cannot be empty")
		}
		if !isValidIdentifier(n.Name) {
			return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate",
				fmt.Sprintf("node name %q must be alphanumeric with dashes/underscores", n.Name))
		}
		if seenNodes[n.Name] {
			return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate", "duplicate node name "+n.Name)
		}
		seenNodes[n.Name] = true

		if n.Calculator == "" {
			return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate", "node "+n.Name+" missing calculator")
		}

		if err := validateHandlerName(n.Handler); err != nil {
			return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate", "node "+n.Name+": "+err.Error())
		}

		for tag, streamName := range n.Outputs {
			if streamName == "" {
				return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate",
					"node "+n.Name+" output "+tag+" has no stream name")
			}
			if existing, ok := producers[streamName]; ok && existing != n.Name {
				return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate",
					"stream "+streamName+" has multiple producers: "+existing+" and "+n.Name)
			}
			producers[streamName] = n.Name
		}
	}

	if err := validateHandlerName(c.HandlerOverride); err != nil {
		return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate", "handler_override: "+err.Error())
	}

	if err := c.detectCycles(); err != nil {
		return err
	}

	for _, n := range c.Nodes {
		if n.Executor == "" {
			continue
		}
		if _, ok := c.Executors[n.Executor]; !ok {
			return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate",
				"node "+n.Name+" references unknown executor "+n.Executor)
		}
	}

	return nil
}

// detectCycles walks the node dependency graph (an edge n1->n2 exists when
// n1 produces a stream n2 consumes) and fails if it finds a cycle.
func (c *GraphConfig) detectCycles() error {
	producers := make(map[string]string)
	for _, n := range c.Nodes {
		for _, streamName := range n.Outputs {
			producers[streamName] = n.Name
		}
	}

	deps := make(map[string][]string, len(c.Nodes))
	for _, n := range c.Nodes {
		for _, streamName := range n.Inputs {
			if producer, ok := producers[streamName]; ok {
				deps[n.Name] = append(deps[n.Name], producer)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(c.Nodes))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "Validate",
				"cycle detected: "+strings.Join(append(path, name), " -> "))
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, n := range c.Nodes {
		if err := visit(n.Name, nil); err != nil {
			return err
		}
	}
	return nil
}

func validateHandlerName(name string) error {
	switch name {
	case "", "default", "immediate", "fixed_size":
		return nil
	default:
		return fmt.Errorf("unknown handler %q", name)
	}
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// CalculatorTypesRegistered reports whether every calculator type this
// config references is registered, returning a ConfigError naming the
// first missing one otherwise. Call this after Parse/Load once all
// calculator packages the graph needs have registered themselves.
func (c *GraphConfig) CalculatorTypesRegistered() error {
	for _, n := range c.Nodes {
		if !calculator.Registered(n.Calculator) {
			return errors.WrapInvalid(errors.ErrConfigError, "graphconfig", "CalculatorTypesRegistered",
				"node "+n.Name+" references unregistered calculator "+n.Calculator)
		}
	}
	return nil
}
