package engine

import (
	"context"

	"github.com/scalfmm-go/fmm/internal/kernel"
	"github.com/scalfmm-go/fmm/internal/kernelcache"
	"github.com/scalfmm-go/fmm/internal/metrics"
	"github.com/scalfmm-go/fmm/internal/octree"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// Sequential runs the six-pass schedule single-threaded over a
// pointer-form octree: P2M at the leaves, M2M bottom-up, M2L and L2L
// level by level top-down, then P2P and L2P at the leaves.
type Sequential struct {
	lifecycle
	Tree   *octree.Tree
	Kernel kernel.Kernel
	Stats  Stats

	// Cache, if set, memoizes InteractionListSlots per (level, cell) so
	// repeated runs over the same tree don't re-walk the same geometry.
	Cache *kernelcache.Cache

	// Metrics, if set, records per-pass duration and call counts.
	Metrics *metrics.Recorder
}

// NewSequential returns a Sequential engine ready to Prepare.
func NewSequential(tree *octree.Tree, k kernel.Kernel) *Sequential {
	return &Sequential{Tree: tree, Kernel: k}
}

// Prepare validates configuration and initializes the kernel.
func (e *Sequential) Prepare() error {
	if err := e.lifecycle.prepare(); err != nil {
		return err
	}
	return e.Kernel.Init()
}

// Run executes the full pass schedule.
func (e *Sequential) Run(ctx context.Context) error {
	if err := e.lifecycle.start(); err != nil {
		return err
	}
	defer e.lifecycle.complete()

	run := func() error {
		e.bottomPass()
		e.upwardPass()
		e.transferPass()
		e.downwardPass()
		e.directPass()
		return ctx.Err()
	}
	if e.Metrics != nil {
		return e.Metrics.Track(run)
	}
	return run()
}

// cellOf returns the node's kernel-owned expansion, allocating it on
// first use.
func cellOf(n *octree.Node) *kernel.CellExpansion {
	if n.Expansion == nil {
		n.Expansion = &kernel.CellExpansion{}
	}
	return n.Expansion.(*kernel.CellExpansion)
}

// bottomPass computes P2M for every leaf.
func (e *Sequential) bottomPass() {
	if e.Metrics != nil {
		defer e.Metrics.Timer("P2M", -1)()
	}
	e.Tree.ForEachLeaf(func(n *octree.Node) {
		e.Kernel.P2M(cellOf(n), n.Sources)
		e.Stats.P2MCalls++
		e.Stats.Leaves++
	})
	if e.Metrics != nil {
		e.Metrics.AddCalls("P2M", e.Stats.P2MCalls)
	}
}

// upwardPass computes M2M from the deepest internal level up to level 1.
func (e *Sequential) upwardPass() {
	for level := int(e.Tree.Height()) - 1; level >= 1; level-- {
		e.Tree.ForEachCellAtLevel(uint8(level), func(n *octree.Node) {
			if n.Leaf {
				return
			}
			var children [8]*kernel.CellExpansion
			for k, c := range n.Children {
				if c != nil {
					children[k] = cellOf(c)
				}
			}
			e.Kernel.M2M(cellOf(n), children, uint8(level))
			e.Stats.M2MCalls++
		})
	}
}

// transferPass computes M2L at every level from 2 down to the leaf
// level, translating each cell's interaction list into its local
// expansion.
func (e *Sequential) transferPass() {
	for level := 2; level <= int(e.Tree.Height()); level++ {
		var stop func()
		if e.Metrics != nil {
			stop = e.Metrics.Timer("M2L", level)
		}
		e.Tree.ForEachCellAtLevel(uint8(level), func(n *octree.Node) {
			far := e.interactionList(n, level)
			if len(far) == 0 {
				return
			}
			sources := make([]kernel.Source, 0, len(far))
			for _, f := range far {
				sources = append(sources, kernel.Source{Cell: cellOf(f.Node), Slot: f.Slot})
			}
			e.Kernel.M2L(cellOf(n), sources, uint8(level))
			e.Stats.M2LCalls++
		})
		if stop != nil {
			stop()
		}
	}
	if e.Metrics != nil {
		e.Metrics.AddCalls("M2L", e.Stats.M2LCalls)
	}
}

// interactionList returns n's interaction-list slots, serving from Cache
// when present: the enumeration depends only on n's Morton index and
// level, not on anything that changes between runs over the same tree.
func (e *Sequential) interactionList(n *octree.Node, level int) []octree.SlottedNode {
	if e.Cache == nil {
		return e.Tree.InteractionListSlots(n)
	}
	key := kernelcache.NeighborKey(level, n.Morton)
	if v, ok := e.Cache.Get(key); ok {
		return v.([]octree.SlottedNode)
	}
	far := e.Tree.InteractionListSlots(n)
	e.Cache.Set(key, far, int64(len(far))+1)
	return far
}

// downwardPass computes L2L from level 1 down to the deepest internal
// level.
func (e *Sequential) downwardPass() {
	for level := 1; level < int(e.Tree.Height()); level++ {
		e.Tree.ForEachCellAtLevel(uint8(level), func(n *octree.Node) {
			if n.Leaf {
				return
			}
			var children [8]*kernel.CellExpansion
			for k, c := range n.Children {
				if c != nil {
					children[k] = cellOf(c)
				}
			}
			e.Kernel.L2L(cellOf(n), children, uint8(level))
			e.Stats.L2LCalls++
		})
	}
}

// directPass computes P2P between every leaf and its near neighbours,
// then L2P at every leaf.
func (e *Sequential) directPass() {
	e.Tree.ForEachLeaf(func(n *octree.Node) {
		neighborNodes := e.Tree.DirectNeighborSlots(n)
		neighbors := make([]*particle.Container, 0, len(neighborNodes))
		slots := make([]int, 0, len(neighborNodes))
		for _, nb := range neighborNodes {
			neighbors = append(neighbors, nb.Node.Sources)
			slots = append(slots, nb.Slot)
		}

		e.Kernel.P2P(n.Targets, n.Sources, neighbors, slots)
		e.Stats.P2PCalls++
		e.Stats.Interactions += len(neighborNodes)

		e.Kernel.L2P(cellOf(n), n.Targets)
		e.Stats.L2PCalls++
	})
}

var _ Engine = (*Sequential)(nil)
