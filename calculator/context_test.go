package calculator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowgraph/calculator"
	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/timestamp"
)

type recordingEmitter struct {
	emitted map[string]packet.Packet
	err     error
}

func (e *recordingEmitter) Emit(tag string, p packet.Packet) error {
	if e.err != nil {
		return e.err
	}
	if e.emitted == nil {
		e.emitted = make(map[string]packet.Packet)
	}
	e.emitted[tag] = p
	return nil
}

func TestContextInputsAndOutputs(t *testing.T) {
	emitter := &recordingEmitter{}
	inputs := map[string]packet.Packet{"IN": packet.Of(timestamp.T(1), 7)}
	ctx := calculator.NewContext(timestamp.T(1), inputs, emitter, nil, nil)

	in := ctx.Inputs().Tag("IN")
	assert.False(t, in.IsEmpty())
	v, err := packet.ValueAs[int](in.Value())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	missing := ctx.Inputs().Tag("MISSING")
	assert.True(t, missing.IsEmpty())

	require.NoError(t, ctx.Outputs().Tag("OUT").Add(packet.Of(timestamp.T(1), 9)))
	got, ok := emitter.emitted["OUT"]
	require.True(t, ok)
	v2, err := packet.ValueAs[int](got)
	require.NoError(t, err)
	assert.Equal(t, 9, v2)
}

func TestContextSidePacketsAndServices(t *testing.T) {
	side := map[string]packet.Packet{"CONFIG": packet.Of(timestamp.PreStream, "cfg")}
	services := map[string]any{"clock": 42}
	ctx := calculator.NewContext(timestamp.PreStream, nil, &recordingEmitter{}, side, services)

	p, ok := ctx.SidePacket("CONFIG")
	require.True(t, ok)
	v, err := packet.ValueAs[string](p)
	require.NoError(t, err)
	assert.Equal(t, "cfg", v)

	_, ok = ctx.SidePacket("MISSING")
	assert.False(t, ok)

	svc, ok := ctx.Service("clock")
	require.True(t, ok)
	assert.Equal(t, 42, svc)
}
