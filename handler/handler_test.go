package handler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowgraph/handler"
	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/stream"
	"github.com/c360/flowgraph/timestamp"
)

func TestDefaultSynchronizedMerge(t *testing.T) {
	ctx := context.Background()
	a := stream.New("A", 0)
	b := stream.New("B", 0)
	inputs := map[string]*stream.Stream{"A": a, "B": b}
	h := handler.Default{}

	require.NoError(t, a.Add(ctx, packet.Of(timestamp.T(1), 1), stream.AddIfNotFull))
	require.NoError(t, a.Add(ctx, packet.Of(timestamp.T(3), 1), stream.AddIfNotFull))
	require.NoError(t, b.Add(ctx, packet.Of(timestamp.T(2), 1), stream.AddIfNotFull))
	require.NoError(t, b.Add(ctx, packet.Of(timestamp.T(3), 1), stream.AddIfNotFull))
	a.Close()
	b.Close()

	r := h.ComputeReadiness(inputs)
	require.Equal(t, handler.ReadyForProcess, r.Kind)
	assert.Equal(t, timestamp.T(1), r.Timestamp)
	_, _ = a.Pop()

	r = h.ComputeReadiness(inputs)
	require.Equal(t, handler.ReadyForProcess, r.Kind)
	assert.Equal(t, timestamp.T(2), r.Timestamp)
	_, _ = b.Pop()

	r = h.ComputeReadiness(inputs)
	require.Equal(t, handler.ReadyForProcess, r.Kind)
	assert.Equal(t, timestamp.T(3), r.Timestamp)
	_, _ = a.Pop()
	_, _ = b.Pop()

	r = h.ComputeReadiness(inputs)
	assert.Equal(t, handler.ReadyForClose, r.Kind)
}

func TestDefaultBoundOnlyAdvance(t *testing.T) {
	ctx := context.Background()
	a := stream.New("A", 0)
	b := stream.New("B", 0)
	inputs := map[string]*stream.Stream{"A": a, "B": b}
	h := handler.Default{}

	require.NoError(t, a.Add(ctx, packet.Of(timestamp.T(10), 1), stream.AddIfNotFull))
	a.SetNextTimestampBound(timestamp.T(20))
	b.SetNextTimestampBound(timestamp.T(100))

	r := h.ComputeReadiness(inputs)
	require.Equal(t, handler.ReadyForProcess, r.Kind)
	assert.Equal(t, timestamp.T(10), r.Timestamp)
}

func TestDefaultNotReadyWithoutAnyObservation(t *testing.T) {
	a := stream.New("A", 0)
	b := stream.New("B", 0)
	inputs := map[string]*stream.Stream{"A": a, "B": b}
	h := handler.Default{}

	r := h.ComputeReadiness(inputs)
	assert.Equal(t, handler.NotReady, r.Kind)
}

func TestImmediateReadyOnAnyInput(t *testing.T) {
	ctx := context.Background()
	a := stream.New("A", 0)
	b := stream.New("B", 0)
	inputs := map[string]*stream.Stream{"A": a, "B": b}
	h := handler.Immediate{}

	require.NoError(t, a.Add(ctx, packet.Of(timestamp.T(5), 1), stream.AddIfNotFull))

	r := h.ComputeReadiness(inputs)
	require.Equal(t, handler.ReadyForProcess, r.Kind)
	assert.Equal(t, timestamp.T(5), r.Timestamp)
}

func TestFixedSizeDropsOldest(t *testing.T) {
	ctx := context.Background()
	a := stream.New("A", 0)
	inputs := map[string]*stream.Stream{"A": a}
	h := handler.NewFixedSize(1)

	require.NoError(t, a.Add(ctx, packet.Of(timestamp.T(1), 1), stream.AddIfNotFull))
	require.NoError(t, a.Add(ctx, packet.Of(timestamp.T(2), 1), stream.AddIfNotFull))

	r := h.ComputeReadiness(inputs)
	require.Equal(t, handler.ReadyForProcess, r.Kind)
	assert.Equal(t, timestamp.T(2), r.Timestamp)
	assert.Equal(t, 1, a.Len())
}
