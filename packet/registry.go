package packet

import (
	"reflect"
	"sync"

	"github.com/c360/flowgraph/errors"
)

// registry maps the declarative type names used in graph configuration
// (e.g. "Image", "Tensor") to the concrete Go type they resolve to. It is
// populated at init() time by calculator and payload packages, mirroring
// how calculator implementations register themselves by name rather than
// being discovered by reflection over the binary.
type registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

var defaultRegistry = &registry{types: make(map[string]reflect.Type)}

// Register associates name with the Go type of zero. Calling Register twice
// for the same name with a different type panics at init time; this is a
// programmer error, not a runtime condition.
func Register[T any](name string) {
	var zero T
	t := reflect.TypeOf(zero)
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if existing, ok := defaultRegistry.types[name]; ok && existing != t {
		panic("packet: type name " + name + " already registered to a different Go type")
	}
	defaultRegistry.types[name] = t
}

// Lookup returns the Go type registered under name.
func Lookup(name string) (reflect.Type, bool) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	t, ok := defaultRegistry.types[name]
	return t, ok
}

// Compatible reports whether a packet declared as producerType may be
// consumed by a port declared as consumerType. Compatibility here is exact
// name equality; the runtime does not support covariance between
// registered types.
func Compatible(producerType, consumerType string) bool {
	return producerType == consumerType
}

// CheckTypeTag validates that p's concrete payload type matches the type
// name declared for the port it is being delivered to, returning
// ErrTypeMismatch if the tags disagree. Empty packets always pass, since
// they carry no payload to check.
func CheckTypeTag(p Packet, declaredName string) error {
	if p.IsEmpty() {
		return nil
	}
	want, ok := Lookup(declaredName)
	if !ok {
		return errors.WrapFatal(errors.ErrTypeMismatch, "packet", "CheckTypeTag",
			"no type registered under name "+declaredName)
	}
	if p.TypeID() != want {
		return errors.WrapFatal(errors.ErrTypeMismatch, "packet", "CheckTypeTag",
			"packet type "+p.TypeID().String()+" does not match declared "+declaredName)
	}
	return nil
}
