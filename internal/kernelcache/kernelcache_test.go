package kernelcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGet(t *testing.T) {
	c, err := New(1<<20, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	key := NeighborKey(3, 42)
	c.Set(key, []int{1, 2, 3}, 3)

	// ristretto admits asynchronously; poll briefly rather than sleeping a
	// fixed amount.
	var v any
	var ok bool
	for i := 0; i < 100; i++ {
		v, ok = c.Get(key)
		if ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, v)
}

func TestGetMissIncrementsMisses(t *testing.T) {
	c, err := New(1<<20, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(NeighborKey(0, 0))
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Metrics().Misses)
}

func TestNeighborKeyIsStablePerLevelAndMorton(t *testing.T) {
	assert.Equal(t, NeighborKey(2, 10), NeighborKey(2, 10))
	assert.NotEqual(t, NeighborKey(2, 10), NeighborKey(3, 10))
	assert.NotEqual(t, NeighborKey(2, 10), NeighborKey(2, 11))
}
