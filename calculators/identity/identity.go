// Package identity provides a calculator that copies its input packet to
// its output unchanged, for exercising graph wiring and timestamp
// propagation in tests without a real computation behind it.
package identity

import (
	"github.com/c360/flowgraph/calculator"
)

func init() {
	calculator.Register("PassThroughCalculator", func() calculator.Calculator {
		return &Calculator{}
	})
}

// Calculator forwards whatever packet it receives on IN to OUT, including
// empty invocations (in which case nothing is emitted, since a calculator
// must never emit a packet it didn't actually observe data for).
type Calculator struct{}

// GetContract implements calculator.Calculator.
func (Calculator) GetContract() *calculator.Contract {
	return &calculator.Contract{
		Inputs:  []calculator.PortSpec{{Tag: "IN"}},
		Outputs: []calculator.PortSpec{{Tag: "OUT"}},
	}
}

// Open implements calculator.Calculator.
func (Calculator) Open(ctx *calculator.Context) error { return nil }

// Process implements calculator.Calculator.
func (Calculator) Process(ctx *calculator.Context) error {
	in := ctx.Inputs().Tag("IN")
	if in.IsEmpty() {
		return nil
	}
	return ctx.Outputs().Tag("OUT").Add(in.Value())
}

// Close implements calculator.Calculator.
func (Calculator) Close(ctx *calculator.Context) error { return nil }
