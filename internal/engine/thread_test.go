package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalfmm-go/fmm/internal/kernel/direct"
	"github.com/scalfmm-go/fmm/internal/octree"
)

func totalPotential(tree *octree.Tree) float64 {
	var total float64
	tree.ForEachLeaf(func(n *octree.Node) {
		for _, p := range n.Targets.Potential {
			total += p
		}
	})
	return total
}

func TestThreadAgreesWithSequential(t *testing.T) {
	particles := gridCloud(64)

	seqTree := buildTree(particles, 3)
	seq := NewSequential(seqTree, direct.New(direct.InverseR{}))
	require.NoError(t, seq.Prepare())
	require.NoError(t, seq.Run(context.Background()))

	threadTree := buildTree(particles, 3)
	th := NewThread(threadTree, direct.New(direct.InverseR{}), 4)
	require.NoError(t, th.Prepare())
	require.NoError(t, th.Run(context.Background()))

	assert.InDelta(t, totalPotential(seqTree), totalPotential(threadTree), 1e-9)
}

func TestThreadDefaultsWorkersWhenNonPositive(t *testing.T) {
	tree := buildTree(gridCloud(8), 2)
	th := NewThread(tree, direct.New(direct.InverseR{}), 0)
	assert.Greater(t, th.Workers, 0)
}

func TestThreadRejectsDoubleRun(t *testing.T) {
	tree := buildTree(gridCloud(8), 2)
	th := NewThread(tree, direct.New(direct.InverseR{}), 2)
	require.NoError(t, th.Prepare())
	require.NoError(t, th.Run(context.Background()))
	assert.Error(t, th.Run(context.Background()))
}
