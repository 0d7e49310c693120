package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowgraph/packet"
	"github.com/c360/flowgraph/stream"
	"github.com/c360/flowgraph/timestamp"
)

func TestAddAdvancesBound(t *testing.T) {
	s := stream.New("A", 0)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, packet.Of(timestamp.T(1), 1), stream.AddIfNotFull))
	assert.Equal(t, timestamp.T(2), s.Bound())

	require.NoError(t, s.Add(ctx, packet.Of(timestamp.T(5), 2), stream.AddIfNotFull))
	assert.Equal(t, timestamp.T(6), s.Bound())
}

func TestAddRegressionRejected(t *testing.T) {
	s := stream.New("A", 0)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, packet.Of(timestamp.T(5), 1), stream.AddIfNotFull))
	err := s.Add(ctx, packet.Of(timestamp.T(3), 2), stream.AddIfNotFull)
	assert.Error(t, err)
}

func TestSetNextTimestampBoundMonotonic(t *testing.T) {
	s := stream.New("B", 0)
	s.SetNextTimestampBound(timestamp.T(20))
	assert.Equal(t, timestamp.T(20), s.Bound())

	s.SetNextTimestampBound(timestamp.T(10))
	assert.Equal(t, timestamp.T(20), s.Bound(), "bound must not move backward")

	s.SetNextTimestampBound(timestamp.T(30))
	assert.Equal(t, timestamp.T(30), s.Bound())
}

func TestCloseRejectsFurtherAdds(t *testing.T) {
	s := stream.New("A", 0)
	s.Close()
	assert.True(t, s.IsClosed())
	assert.Equal(t, timestamp.Done, s.Bound())

	err := s.Add(context.Background(), packet.Of(timestamp.T(1), 1), stream.AddIfNotFull)
	assert.Error(t, err)
}

func TestPeekPop(t *testing.T) {
	s := stream.New("A", 0)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, packet.Of(timestamp.T(1), "x"), stream.AddIfNotFull))

	peeked, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, timestamp.T(1), peeked.Timestamp())
	assert.Equal(t, 1, s.Len())

	popped, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, timestamp.T(1), popped.Timestamp())
	assert.Equal(t, 0, s.Len())

	_, ok = s.Pop()
	assert.False(t, ok)
}

func TestAddIfNotFullReturnsQueueFull(t *testing.T) {
	s := stream.New("A", 1)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, packet.Of(timestamp.T(1), 1), stream.AddIfNotFull))

	err := s.Add(ctx, packet.Of(timestamp.T(2), 2), stream.AddIfNotFull)
	assert.Error(t, err)
}

func TestWaitTillNotFullUnblocksOnPop(t *testing.T) {
	s := stream.New("A", 1)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, packet.Of(timestamp.T(1), 1), stream.AddIfNotFull))

	done := make(chan error, 1)
	go func() {
		done <- s.Add(ctx, packet.Of(timestamp.T(2), 2), stream.WaitTillNotFull)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Add should still be blocked")
	default:
	}

	_, ok := s.Pop()
	require.True(t, ok)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Add never unblocked after Pop")
	}
}

func TestStats(t *testing.T) {
	s := stream.New("A", 0)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, packet.Of(timestamp.T(1), 1), stream.AddIfNotFull))
	_, _ = s.Pop()

	stats := s.Stats()
	assert.Equal(t, "A", stats.Name)
	assert.EqualValues(t, 1, stats.PacketsAdded)
	assert.EqualValues(t, 1, stats.PacketsPopped)
}
