package particlesource

import (
	"github.com/scalfmm-go/fmm/internal/grouped"
	"github.com/scalfmm-go/fmm/internal/octree"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// ToContainer drains src into a single particle.Container, useful for
// feeding grouped.BuildFromSource or any other bulk consumer that wants
// every particle materialized up front rather than inserted one at a
// time.
func ToContainer(src particle.ParticleSource) *particle.Container {
	nValues := 0
	if n := src.NumParticles(); n > 0 {
		nValues = len(src.Fill(0).Value)
	}
	c := particle.NewContainer(nValues)
	for i := 0; i < src.NumParticles(); i++ {
		c.Push(src.Fill(i))
	}
	return c
}

// BuildOctree constructs a pointer-form octree by inserting every
// particle from src one at a time (incremental construction), as
// opposed to grouped.BuildFromSource's bulk bucket-and-pack construction.
// Depth is fixed at height; groupSize has no bearing on this tree and is
// not accepted here (see grouped.BuildFromSource for where it applies).
func BuildOctree(src particle.ParticleSource, height uint8) *octree.Tree {
	nValues := 0
	if n := src.NumParticles(); n > 0 {
		nValues = len(src.Fill(0).Value)
	}
	cx, cy, cz := src.BoxCentre()
	t := octree.New([3]float64{cx, cy, cz}, src.BoxWidth(), height, nValues)
	for i := 0; i < src.NumParticles(); i++ {
		t.Insert(src.Fill(i))
	}
	return t
}

// BuildGrouped constructs a grouped (block-of-cells) tree in bulk from
// src, per grouped.BuildFromSource.
func BuildGrouped(src particle.ParticleSource, height, subTreeHeight uint8, groupSize int) *grouped.Tree {
	cx, cy, cz := src.BoxCentre()
	return grouped.BuildFromSource([3]float64{cx, cy, cz}, src.BoxWidth(), height, subTreeHeight, groupSize, ToContainer(src))
}
