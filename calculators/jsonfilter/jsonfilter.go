// Package jsonfilter provides a calculator that passes through a
// map[string]any payload only when it matches every configured rule,
// dropping (emitting nothing for) packets that don't.
package jsonfilter

import (
	"fmt"
	"strings"

	"github.com/c360/flowgraph/calculator"
	"github.com/c360/flowgraph/errors"
	"github.com/c360/flowgraph/packet"
)

func init() {
	packet.Register[map[string]any]("json")
	calculator.Register("JSONFilterCalculator", func() calculator.Calculator {
		return &Calculator{}
	})
}

// Rule tests one field of a document against Value using Operator, one of
// "eq", "ne", "gt", "gte", "lt", "lte", "contains".
type Rule struct {
	Field    string
	Operator string
	Value    any
}

// Calculator drops any input document that fails one of its Rules
// (AND semantics: every rule must match). Configure Rules before Open.
type Calculator struct {
	Rules []Rule
}

// GetContract implements calculator.Calculator.
func (c *Calculator) GetContract() *calculator.Contract {
	return &calculator.Contract{
		Inputs:  []calculator.PortSpec{{Tag: "IN", TypeName: "json"}},
		Outputs: []calculator.PortSpec{{Tag: "OUT", TypeName: "json", Optional: true}},
	}
}

// Open implements calculator.Calculator.
func (c *Calculator) Open(ctx *calculator.Context) error { return nil }

// Process implements calculator.Calculator.
func (c *Calculator) Process(ctx *calculator.Context) error {
	in := ctx.Inputs().Tag("IN")
	if in.IsEmpty() {
		return nil
	}
	data, err := packet.ValueAs[map[string]any](in.Value())
	if err != nil {
		return errors.WrapFatal(errors.ErrTypeMismatch, "jsonfilter", "Process", "IN port did not carry map[string]any")
	}

	if !c.matches(data) {
		return nil
	}
	return ctx.Outputs().Tag("OUT").Add(packet.Of(ctx.Timestamp, data))
}

// Close implements calculator.Calculator.
func (c *Calculator) Close(ctx *calculator.Context) error { return nil }

func (c *Calculator) matches(data map[string]any) bool {
	for _, rule := range c.Rules {
		if !matchesRule(data, rule) {
			return false
		}
	}
	return true
}

func matchesRule(data map[string]any, rule Rule) bool {
	value, ok := data[rule.Field]
	if !ok {
		return false
	}
	switch rule.Operator {
	case "eq":
		return fmt.Sprint(value) == fmt.Sprint(rule.Value)
	case "ne":
		return fmt.Sprint(value) != fmt.Sprint(rule.Value)
	case "gt":
		return compareNumbers(value, rule.Value) > 0
	case "gte":
		return compareNumbers(value, rule.Value) >= 0
	case "lt":
		return compareNumbers(value, rule.Value) < 0
	case "lte":
		return compareNumbers(value, rule.Value) <= 0
	case "contains":
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(rule.Value))
	default:
		return false
	}
}

func compareNumbers(a, b any) int {
	af, bf := toFloat64(a), toFloat64(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	default:
		return 0
	}
}
