// Package jsonmap provides a calculator that remaps, renames, and adds
// fields on a map[string]any payload, one input packet per invocation.
package jsonmap

import (
	"strings"

	"github.com/c360/flowgraph/calculator"
	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/packet"
)

func init() {
	packet.Register[map[string]any]("json")
	calculator.Register("JSONMapCalculator", func() calculator.Calculator {
		return &Calculator{}
	})
}

// FieldMapping renames SourceField to TargetField, optionally applying a
// string Transform along the way.
type FieldMapping struct {
	SourceField string
	TargetField string
	// Transform is one of "", "copy", "uppercase", "lowercase", "trim".
	Transform string
}

// Calculator applies a fixed set of field mappings, additions, and
// removals to each input document. Configure Mappings/AddFields/
// RemoveFields before the node is opened; the calculator holds no other
// state between invocations.
type Calculator struct {
	Mappings     []FieldMapping
	AddFields    map[string]any
	RemoveFields []string

	removeSet map[string]bool
}

// GetContract implements calculator.Calculator.
func (c *Calculator) GetContract() *calculator.Contract {
	return &calculator.Contract{
		Inputs:  []calculator.PortSpec{{Tag: "IN", TypeName: "json"}},
		Outputs: []calculator.PortSpec{{Tag: "OUT", TypeName: "json"}},
	}
}

// Open implements calculator.Calculator.
func (c *Calculator) Open(ctx *calculator.Context) error {
	c.removeSet = make(map[string]bool, len(c.RemoveFields))
	for _, f := range c.RemoveFields {
		c.removeSet[f] = true
	}
	return nil
}

// Process implements calculator.Calculator.
func (c *Calculator) Process(ctx *calculator.Context) error {
	in := ctx.Inputs().Tag("IN")
	if in.IsEmpty() {
		return nil
	}
	data, err := packet.ValueAs[map[string]any](in.Value())
	if err != nil {
		return errors.WrapFatal(errors.ErrTypeMismatch, "jsonmap", "Process", "IN port did not carry map[string]any")
	}

	result := make(map[string]any, len(data))
	for key, value := range data {
		if !c.removeSet[key] {
			result[key] = value
		}
	}

	for _, m := range c.Mappings {
		value, exists := data[m.SourceField]
		if !exists {
			continue
		}
		result[m.TargetField] = applyTransform(value, m.Transform)
		if m.SourceField != m.TargetField {
			delete(result, m.SourceField)
		}
	}

	for key, value := range c.AddFields {
		result[key] = value
	}

	return ctx.Outputs().Tag("OUT").Add(packet.Of(ctx.Timestamp, result))
}

// Close implements calculator.Calculator.
func (c *Calculator) Close(ctx *calculator.Context) error { return nil }

func applyTransform(value any, transform string) any {
	if transform == "" || transform == "copy" {
		return value
	}
	strValue, ok := value.(string)
	if !ok {
		return value
	}
	switch transform {
	case "uppercase":
		return strings.ToUpper(strValue)
	case "lowercase":
		return strings.ToLower(strValue)
	case "trim":
		return strings.TrimSpace(strValue)
	default:
		return value
	}
}
