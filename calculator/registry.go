package calculator

import (
	"sync"

	"github.com/c360/flowgraph/errors"
)

// Factory constructs a fresh Calculator instance. One factory call happens
// per node that references the registered name; calculators hold no
// shared mutable state across node instances.
type Factory func() Calculator

var (
	mu         sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register associates name with factory in the process-global calculator
// table. Intended to be called from calculator package init() functions.
// Registering the same name twice panics; that is a build-time
// programming error, not a runtime condition to recover from.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic("calculator: type " + name + " already registered")
	}
	factories[name] = factory
}

// New constructs a calculator instance for the named registered type, or
// returns ConfigError if no such type was registered.
func New(name string) (Calculator, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, errors.WrapFatal(errors.ErrConfigError, "calculator", "New", "unknown calculator type "+name)
	}
	return factory(), nil
}

// Registered reports whether name has a registered factory, for
// validating a graph's node descriptors at load time without constructing
// instances.
func Registered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[name]
	return ok
}
