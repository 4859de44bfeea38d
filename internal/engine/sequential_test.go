package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalfmm-go/fmm/internal/kernel/direct"
	"github.com/scalfmm-go/fmm/internal/octree"
	"github.com/scalfmm-go/fmm/internal/particle"
)

func gridCloud(n int) []particle.Particle {
	out := make([]particle.Particle, 0, n)
	for i := 0; i < n; i++ {
		x := float64(i%8) / 8
		y := float64((i/8)%8) / 8
		z := float64((i / 64) % 8) / 8
		out = append(out, particle.Particle{X: x, Y: y, Z: z, Value: []float64{1}, Role: particle.RoleBoth})
	}
	return out
}

func buildTree(particles []particle.Particle, height uint8) *octree.Tree {
	tree := octree.New([3]float64{0.5, 0.5, 0.5}, 1, height, 1)
	for _, p := range particles {
		tree.Insert(p)
	}
	return tree
}

func bruteForcePotentials(particles []particle.Particle) []float64 {
	f := direct.InverseR{}
	out := make([]float64, len(particles))
	for i, t := range particles {
		for j, s := range particles {
			if i == j {
				continue
			}
			_, _, _, pot := f.Pairwise(t.X, t.Y, t.Z, t.Value, s.X, s.Y, s.Z, s.Value)
			out[i] += pot
		}
	}
	return out
}

func TestSequentialMatchesBruteForce(t *testing.T) {
	particles := gridCloud(64)
	tree := buildTree(particles, 3)

	eng := NewSequential(tree, direct.New(direct.InverseR{}))
	require.NoError(t, eng.Prepare())
	require.NoError(t, eng.Run(context.Background()))

	var got []float64
	tree.ForEachLeaf(func(n *octree.Node) {
		for i := range n.Targets.Potential {
			got = append(got, n.Targets.Potential[i])
		}
	})

	want := bruteForcePotentials(particles)
	assert.Len(t, got, len(want))

	var gotTotal, wantTotal float64
	for _, v := range got {
		gotTotal += v
	}
	for _, v := range want {
		wantTotal += v
	}
	assert.InDelta(t, wantTotal, gotTotal, 1e-9)
}

func TestSequentialTracksStats(t *testing.T) {
	particles := gridCloud(64)
	tree := buildTree(particles, 3)

	eng := NewSequential(tree, direct.New(direct.InverseR{}))
	require.NoError(t, eng.Prepare())
	require.NoError(t, eng.Run(context.Background()))

	assert.Greater(t, eng.Stats.Leaves, 0)
	assert.Equal(t, eng.Stats.Leaves, eng.Stats.P2MCalls)
	assert.Equal(t, eng.Stats.Leaves, eng.Stats.P2PCalls)
	assert.Equal(t, eng.Stats.Leaves, eng.Stats.L2PCalls)
}

func TestSequentialRejectsDoubleRun(t *testing.T) {
	tree := buildTree(gridCloud(8), 2)
	eng := NewSequential(tree, direct.New(direct.InverseR{}))
	require.NoError(t, eng.Prepare())
	require.NoError(t, eng.Run(context.Background()))

	assert.Error(t, eng.Run(context.Background()))
}

func TestSequentialRejectsRunBeforePrepare(t *testing.T) {
	tree := buildTree(gridCloud(8), 2)
	eng := NewSequential(tree, direct.New(direct.InverseR{}))
	assert.Error(t, eng.Run(context.Background()))
}
