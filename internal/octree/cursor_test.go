package octree

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scalfmm-go/fmm/internal/particle"
)

func TestCursorGotoBottomLeftReachesMaxHeight(t *testing.T) {
	tree := New([3]float64{0.5, 0.5, 0.5}, 1, 3, 1)
	tree.Insert(particle.Particle{X: 0.01, Y: 0.01, Z: 0.01, Value: []float64{1}, Role: particle.RoleBoth})

	c := tree.NewCursor().GotoBottomLeft()
	assert.Equal(t, tree.Height(), c.Level())
	assert.NotNil(t, c.Node())
	assert.Equal(t, tree.Height(), c.Node().Level)
}

func TestCursorMoveRightSweepsARowInMortonOrder(t *testing.T) {
	tree := New([3]float64{0.5, 0.5, 0.5}, 1, 2, 1)
	insertCloud(tree, 16)

	c := tree.NewCursor().GotoBottomLeft()
	var visited int
	for {
		if c.Node() != nil {
			visited++
		}
		if !c.MoveRight() {
			break
		}
	}
	assert.Greater(t, visited, 0)
}

func TestCursorMoveRightStopsAtLevelBound(t *testing.T) {
	tree := New([3]float64{0.5, 0.5, 0.5}, 1, 1, 1)
	c := tree.NewCursor().GotoBottomLeft()

	assert.True(t, c.MoveRight()) // 0 -> 1, bound is 2
	assert.False(t, c.MoveRight())
}

func TestCursorGotoLeftResetsRowStart(t *testing.T) {
	tree := New([3]float64{0.5, 0.5, 0.5}, 1, 2, 1)
	c := tree.NewCursor().GotoBottomLeft()
	c.MoveRight()
	c.MoveRight()
	assert.Equal(t, uint32(2), c.Coordinate().X)

	c.GotoLeft()
	assert.Equal(t, uint32(0), c.Coordinate().X)
}

func TestCursorMoveUpThenMoveDownRoundTrips(t *testing.T) {
	tree := New([3]float64{0.5, 0.5, 0.5}, 1, 2, 1)
	tree.Insert(particle.Particle{X: 0.1, Y: 0.1, Z: 0.1, Value: []float64{1}, Role: particle.RoleBoth})

	c := tree.NewCursor().GotoBottomLeft()
	start := c.Coordinate()

	assert.True(t, c.MoveUp())
	assert.Equal(t, tree.Height()-1, c.Level())

	assert.True(t, c.MoveDown())
	assert.Equal(t, tree.Height(), c.Level())
	assert.Equal(t, start, c.Coordinate())
}

func TestCursorMoveUpFailsAtRoot(t *testing.T) {
	tree := New([3]float64{0.5, 0.5, 0.5}, 1, 2, 1)
	c := tree.NewCursor()
	assert.False(t, c.MoveUp())
}

func TestCursorMoveDownFailsAtMaxHeight(t *testing.T) {
	tree := New([3]float64{0.5, 0.5, 0.5}, 1, 1, 1)
	c := tree.NewCursor().GotoBottomLeft()
	assert.False(t, c.MoveDown())
}
