package grouped

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalfmm-go/fmm/internal/octree"
	"github.com/scalfmm-go/fmm/internal/particle"
)

func cloud(n int) *particle.Container {
	c := particle.NewContainer(1)
	for i := 0; i < n; i++ {
		x := float64(i%8) / 8
		y := float64((i/8)%8) / 8
		z := float64((i / 64) % 8) / 8
		c.Push(particle.Particle{X: x, Y: y, Z: z, Value: []float64{1}, Role: particle.RoleBoth})
	}
	return c
}

func TestBuildFromSourcePreservesParticleCount(t *testing.T) {
	tree := BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 3, 0, 4, cloud(64))

	var total int
	tree.ForEachLeaf(func(c *Cell) { total += c.Sources.Len() })
	assert.Equal(t, 64, total)
}

func TestBuildFromSourceRespectsGroupSize(t *testing.T) {
	tree := BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 3, 0, 4, cloud(64))

	tree.ForEachCellWithLevel(tree.Height()-1, func(c *Cell) {})
	for _, g := range tree.Level(tree.Height() - 1) {
		assert.LessOrEqual(t, len(g.Cells), 4)
	}
}

func TestSubTreeHeightShallowsLeafLevel(t *testing.T) {
	full := BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 4, 0, 4, cloud(64))
	shallow := BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 4, 2, 4, cloud(64))

	assert.Less(t, shallow.Height(), full.Height())
}

func TestFindLocatesExistingCell(t *testing.T) {
	tree := BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 3, 0, 4, cloud(64))

	var anyMorton uint64
	var found bool
	tree.ForEachLeaf(func(c *Cell) {
		if !found {
			anyMorton = c.Morton
			found = true
		}
	})
	require.True(t, found)

	group, cell := tree.Find(tree.Height()-1, anyMorton)
	assert.NotNil(t, group)
	assert.NotNil(t, cell)
	assert.Equal(t, anyMorton, cell.Morton)
}

func TestFindReturnsNilForAbsentCell(t *testing.T) {
	tree := BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 3, 0, 4, cloud(64))
	group, cell := tree.Find(tree.Height()-1, ^uint64(0))
	assert.Nil(t, group)
	assert.Nil(t, cell)
}

func TestGroupIndexOf(t *testing.T) {
	g := &Group{Cells: []Cell{{Morton: 2}, {Morton: 5}, {Morton: 9}}}
	assert.Equal(t, 1, g.IndexOf(5))
	assert.Equal(t, -1, g.IndexOf(7))
}

func TestFromPointerTreeMatchesOriginal(t *testing.T) {
	pt := octree.New([3]float64{0.5, 0.5, 0.5}, 1, 3, 1)
	particles := cloud(64)
	for i := 0; i < particles.Len(); i++ {
		pt.Insert(particles.At(i))
	}

	gt := FromPointerTree(pt, 4)

	var viaPointer, viaGrouped int
	pt.ForEachLeaf(func(n *octree.Node) { viaPointer += n.Sources.Len() })
	gt.ForEachLeaf(func(c *Cell) { viaGrouped += c.Sources.Len() })

	assert.Equal(t, viaPointer, viaGrouped)
}
