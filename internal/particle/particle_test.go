package particle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerPushAndAt(t *testing.T) {
	c := NewContainer(2)
	idx := c.Push(Particle{X: 1, Y: 2, Z: 3, Value: []float64{10, 20}, Role: RoleBoth})

	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, c.Len())

	p := c.At(0)
	assert.Equal(t, 1.0, p.X)
	assert.Equal(t, 2.0, p.Y)
	assert.Equal(t, 3.0, p.Z)
	assert.Equal(t, []float64{10, 20}, p.Value)

	assert.Equal(t, 0.0, c.FX[0])
	assert.Equal(t, 0.0, c.Potential[0])
}

func TestContainerPushPadsMissingValues(t *testing.T) {
	c := NewContainer(3)
	c.Push(Particle{X: 0, Y: 0, Z: 0, Value: []float64{5}})

	p := c.At(0)
	assert.Equal(t, []float64{5, 0, 0}, p.Value)
}

func TestEnableIndexBackfillsExisting(t *testing.T) {
	c := NewContainer(0)
	c.Push(Particle{X: 1})
	c.Push(Particle{X: 2})
	c.EnableIndex()

	assert.Equal(t, []int{0, 1}, c.Index)

	c.Push(Particle{X: 3})
	assert.Equal(t, []int{0, 1, 2}, c.Index)
}

func TestResetAccumulators(t *testing.T) {
	c := NewContainer(1)
	c.Push(Particle{X: 0, Y: 0, Z: 0, Value: []float64{1}})
	c.FX[0], c.FY[0], c.FZ[0], c.Potential[0] = 1, 2, 3, 4

	c.ResetAccumulators()

	assert.Equal(t, 0.0, c.FX[0])
	assert.Equal(t, 0.0, c.FY[0])
	assert.Equal(t, 0.0, c.FZ[0])
	assert.Equal(t, 0.0, c.Potential[0])
}

func TestRoleMembership(t *testing.T) {
	assert.True(t, RoleSource.IsSource())
	assert.False(t, RoleSource.IsTarget())

	assert.True(t, RoleTarget.IsTarget())
	assert.False(t, RoleTarget.IsSource())

	assert.True(t, RoleBoth.IsSource())
	assert.True(t, RoleBoth.IsTarget())
}
