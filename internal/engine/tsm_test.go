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

// disjointSourcesAndTargets returns particles where the first half are
// sources-only and the second half are targets-only, so the Tsm engine's
// split passes are actually exercised (no particle is both).
func disjointSourcesAndTargets() []particle.Particle {
	var out []particle.Particle
	for i := 0; i < 32; i++ {
		x := float64(i%4) / 8
		y := float64((i/4)%4) / 8
		z := float64((i / 16) % 4) / 8
		out = append(out, particle.Particle{X: x, Y: y, Z: z, Value: []float64{1}, Role: particle.RoleSource})
	}
	for i := 0; i < 32; i++ {
		x := 0.5 + float64(i%4)/8
		y := 0.5 + float64((i/4)%4)/8
		z := 0.5 + float64((i/16)%4)/8
		out = append(out, particle.Particle{X: x, Y: y, Z: z, Value: []float64{1}, Role: particle.RoleTarget})
	}
	return out
}

func TestTsmMatchesBruteForceWithDisjointRoles(t *testing.T) {
	particles := disjointSourcesAndTargets()
	tree := buildTree(particles, 3)

	eng := NewTsm(tree, direct.New(direct.InverseR{}), 4)
	require.NoError(t, eng.Prepare())
	require.NoError(t, eng.Run(context.Background()))

	var sources, targets []particle.Particle
	for _, p := range particles {
		if p.Role.IsSource() {
			sources = append(sources, p)
		}
		if p.Role.IsTarget() {
			targets = append(targets, p)
		}
	}

	f := direct.InverseR{}
	var wantTotal float64
	for _, tgt := range targets {
		for _, src := range sources {
			_, _, _, pot := f.Pairwise(tgt.X, tgt.Y, tgt.Z, tgt.Value, src.X, src.Y, src.Z, src.Value)
			wantTotal += pot
		}
	}

	var gotTotal float64
	tree.ForEachLeaf(func(n *octree.Node) {
		for _, p := range n.Targets.Potential {
			gotTotal += p
		}
	})

	assert.InDelta(t, wantTotal, gotTotal, 1e-9)
}

func TestTsmSkipsCellsWithNoTargets(t *testing.T) {
	// every particle is source-only: no leaf ever has targets, so the
	// direct pass should produce zero accumulated potential everywhere.
	var particles []particle.Particle
	for i := 0; i < 16; i++ {
		particles = append(particles, particle.Particle{
			X: float64(i%4) / 8, Y: float64((i/4)%4) / 8, Z: 0,
			Value: []float64{1}, Role: particle.RoleSource,
		})
	}
	tree := buildTree(particles, 2)

	eng := NewTsm(tree, direct.New(direct.InverseR{}), 2)
	require.NoError(t, eng.Prepare())
	require.NoError(t, eng.Run(context.Background()))

	var total float64
	tree.ForEachLeaf(func(n *octree.Node) {
		for _, p := range n.Targets.Potential {
			total += p
		}
	})
	assert.Equal(t, 0.0, total)
}
