package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/scalfmm-go/fmm/internal/grouped"
	"github.com/scalfmm-go/fmm/internal/kernel/direct"
)

func TestDistributedTagsLoggerWithOwnRank(t *testing.T) {
	groupedTree := grouped.BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 2, 0, 4, buildGroupedContainer(gridCloud(8)))
	bus := NewLocalBus(2)

	rank0 := NewDistributed(groupedTree, direct.New(direct.InverseR{}), bus.Peer(0))
	rank1 := NewDistributed(groupedTree, direct.New(direct.InverseR{}), bus.Peer(1))
	require.NoError(t, rank0.Prepare())
	require.NoError(t, rank1.Prepare())

	assert.Equal(t, "peer0", rank0.log.Tag())
	assert.Equal(t, "peer1", rank1.log.Tag())
}

func TestDistributedSingleRankAgreesWithSequential(t *testing.T) {
	particles := gridCloud(64)

	seqTree := buildTree(particles, 3)
	seq := NewSequential(seqTree, direct.New(direct.InverseR{}))
	require.NoError(t, seq.Prepare())
	require.NoError(t, seq.Run(context.Background()))

	groupedTree := grouped.BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 3, 0, 4, buildGroupedContainer(particles))
	bus := NewLocalBus(1)
	dist := NewDistributed(groupedTree, direct.New(direct.InverseR{}), bus.Peer(0))
	require.NoError(t, dist.Prepare())
	require.NoError(t, dist.Run(context.Background()))

	assert.InDelta(t, totalPotential(seqTree), totalGroupedPotential(groupedTree), 1e-9)
}

func TestDistributedTwoRanksAgreeWithSequential(t *testing.T) {
	particles := gridCloud(64)

	seqTree := buildTree(particles, 3)
	seq := NewSequential(seqTree, direct.New(direct.InverseR{}))
	require.NoError(t, seq.Prepare())
	require.NoError(t, seq.Run(context.Background()))

	groupedTree := grouped.BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 3, 0, 4, buildGroupedContainer(particles))
	bus := NewLocalBus(2)

	rank0 := NewDistributed(groupedTree, direct.New(direct.InverseR{}), bus.Peer(0))
	rank1 := NewDistributed(groupedTree, direct.New(direct.InverseR{}), bus.Peer(1))
	require.NoError(t, rank0.Prepare())
	require.NoError(t, rank1.Prepare())

	ctx := context.Background()
	var g errgroup.Group
	g.Go(func() error { return rank0.Run(ctx) })
	g.Go(func() error { return rank1.Run(ctx) })
	require.NoError(t, g.Wait())

	assert.InDelta(t, totalPotential(seqTree), totalGroupedPotential(groupedTree), 1e-9)
}

func TestDistributedRejectsDoubleRun(t *testing.T) {
	groupedTree := grouped.BuildFromSource([3]float64{0.5, 0.5, 0.5}, 1, 2, 0, 100, buildGroupedContainer(gridCloud(8)))
	bus := NewLocalBus(1)
	dist := NewDistributed(groupedTree, direct.New(direct.InverseR{}), bus.Peer(0))
	require.NoError(t, dist.Prepare())
	require.NoError(t, dist.Run(context.Background()))
	assert.Error(t, dist.Run(context.Background()))
}
