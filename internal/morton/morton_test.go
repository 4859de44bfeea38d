package morton

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeBijection(t *testing.T) {
	coords := []Coordinate{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{1, 1, 1},
		{5, 3, 7},
		{255, 128, 17},
	}

	for _, c := range coords {
		got := Decode(Encode(c))
		assert.Equal(t, c, got)
	}
}

func TestParentChildRoundTrip(t *testing.T) {
	parent := Encode(Coordinate{3, 2, 1})
	for k := 0; k < 8; k++ {
		child := Child(parent, k)
		assert.Equal(t, parent, Parent(child))
		assert.Equal(t, k, ChildIndex(child))
	}
}

func TestAtLevel(t *testing.T) {
	assert.Equal(t, uint64(0), AtLevel(0xffffffff, 0))

	m := Encode(Coordinate{1, 1, 1})
	assert.Equal(t, m&0x7, AtLevel(m, 1))
}

func TestMaxIndexAndInBounds(t *testing.T) {
	assert.Equal(t, uint32(8), MaxIndex(3))
	assert.True(t, InBounds(Coordinate{7, 7, 7}, 3))
	assert.False(t, InBounds(Coordinate{8, 0, 0}, 3))
	assert.False(t, InBounds(Coordinate{0, 0, 8}, 3))
}
