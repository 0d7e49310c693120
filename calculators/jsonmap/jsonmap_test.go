package jsonmap

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
}

func (e *recordingEmitter) Emit(tag string, p packet.Packet) error {
	if e.emitted == nil {
		e.emitted = make(map[string]packet.Packet)
	}
	e.emitted[tag] = p
	return nil
}

func TestCalculator_MapsRenamesAndAdds(t *testing.T) {
	c := &Calculator{
		Mappings:     []FieldMapping{{SourceField: "name", TargetField: "Name", Transform: "uppercase"}},
		AddFields:    map[string]any{"source": "test"},
		RemoveFields: []string{"drop_me"},
	}
	require.NoError(t, c.Open(calculator.NewContext(timestamp.PreStream, nil, nil, nil, nil)))

	emitter := &recordingEmitter{}
	in := map[string]packet.Packet{"IN": packet.Of(timestamp.T(1), map[string]any{
		"name":    "ada",
		"drop_me": "gone",
		"keep":    42,
	})}
	ctx := calculator.NewContext(timestamp.T(1), in, emitter, nil, nil)

	require.NoError(t, c.Process(ctx))

	out, err := packet.ValueAs[map[string]any](emitter.emitted["OUT"])
	require.NoError(t, err)
	assert.Equal(t, "ADA", out["Name"])
	assert.Equal(t, 42, out["keep"])
	assert.Equal(t, "test", out["source"])
	_, hadDropped := out["drop_me"]
	assert.False(t, hadDropped)
	_, hadSource := out["name"]
	assert.False(t, hadSource)
}

func TestCalculator_EmptyInputEmitsNothing(t *testing.T) {
	c := &Calculator{}
	require.NoError(t, c.Open(calculator.NewContext(timestamp.PreStream, nil, nil, nil, nil)))

	emitter := &recordingEmitter{}
	ctx := calculator.NewContext(timestamp.T(1), nil, emitter, nil, nil)
	require.NoError(t, c.Process(ctx))
	assert.Nil(t, emitter.emitted)
}
