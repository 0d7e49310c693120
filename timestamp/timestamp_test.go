package timestamp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/flowgraph/timestamp"
)

func TestOrdering(t *testing.T) {
	assert.True(t, timestamp.Unstarted.Before(timestamp.PreStream))
	assert.True(t, timestamp.PreStream.Before(timestamp.Min))
	assert.True(t, timestamp.Min.Before(timestamp.Max))
	assert.True(t, timestamp.Max.Before(timestamp.PostStream))
	assert.True(t, timestamp.PostStream.Before(timestamp.Done))
}

func TestIsSpecial(t *testing.T) {
	assert.True(t, timestamp.Unstarted.IsSpecial())
	assert.True(t, timestamp.Done.IsSpecial())
	assert.False(t, timestamp.T(42).IsSpecial())
}

func TestIsRangeValue(t *testing.T) {
	assert.True(t, timestamp.T(0).IsRangeValue())
	assert.False(t, timestamp.Unstarted.IsRangeValue())
	assert.False(t, timestamp.Done.IsRangeValue())
}

func TestNextAllowedInStream(t *testing.T) {
	assert.Equal(t, timestamp.T(6), timestamp.T(5).NextAllowedInStream())
	assert.Equal(t, timestamp.Done, timestamp.Done.NextAllowedInStream())
}

func TestString(t *testing.T) {
	assert.Equal(t, "Unstarted", timestamp.Unstarted.String())
	assert.Equal(t, "Done", timestamp.Done.String())
	assert.Equal(t, "7", timestamp.T(7).String())
}
