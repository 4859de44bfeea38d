package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/scalfmm-go/fmm/internal/kernel"
	"github.com/scalfmm-go/fmm/internal/octree"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// Tsm runs the six-pass schedule over a tree whose Sources and Targets
// containers were populated independently (a particle can be a source, a
// target, or both). Every subtree that carries no source particles can
// never contribute to the far or near field, and every subtree that
// carries no target particles never needs a computed field at all — so
// Tsm tracks, per cell, whether any source or target particle descends
// from it and skips the operator calls that flag rules out.
//
// Because a leaf only ever writes to its own Targets container (it reads
// neighbours' Sources but never writes them), the near-field pass needs
// no colour-phase scheme the way the symmetric engines do: concurrent
// leaves never alias a write.
type Tsm struct {
	lifecycle
	Tree    *octree.Tree
	Kernel  kernel.Kernel
	Workers int
	Stats   Stats

	hasSrc     map[*octree.Node]bool
	hasTargets map[*octree.Node]bool
}

// NewTsm returns a Tsm engine. workers <= 0 defaults to runtime.GOMAXPROCS(0).
func NewTsm(tree *octree.Tree, k kernel.Kernel, workers int) *Tsm {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Tsm{Tree: tree, Kernel: k, Workers: workers}
}

func (e *Tsm) Prepare() error {
	if err := e.lifecycle.prepare(); err != nil {
		return err
	}
	return e.Kernel.Init()
}

func (e *Tsm) Run(ctx context.Context) error {
	if err := e.lifecycle.start(); err != nil {
		return err
	}
	defer e.lifecycle.complete()

	e.computeFlags()

	if err := e.bottomPass(ctx); err != nil {
		return err
	}
	if err := e.upwardPass(ctx); err != nil {
		return err
	}
	if err := e.transferPass(ctx); err != nil {
		return err
	}
	if err := e.downwardPass(ctx); err != nil {
		return err
	}
	return e.directPass(ctx)
}

// computeFlags propagates hasSrc/hasTargets bottom-up from the leaves.
// Cheap bookkeeping compared to the operator calls it gates, so it runs
// single-threaded — no point parallelising a pass that's pure map
// writes with no kernel work behind it.
func (e *Tsm) computeFlags() {
	e.hasSrc = map[*octree.Node]bool{}
	e.hasTargets = map[*octree.Node]bool{}

	e.Tree.ForEachLeaf(func(n *octree.Node) {
		if n.Sources.Len() > 0 {
			e.hasSrc[n] = true
		}
		if n.Targets.Len() > 0 {
			e.hasTargets[n] = true
		}
	})

	for level := int(e.Tree.Height()) - 1; level >= 0; level-- {
		e.Tree.ForEachCellAtLevel(uint8(level), func(n *octree.Node) {
			if n.Leaf {
				return
			}
			for _, c := range n.Children {
				if c == nil {
					continue
				}
				if e.hasSrc[c] {
					e.hasSrc[n] = true
				}
				if e.hasTargets[c] {
					e.hasTargets[n] = true
				}
			}
		})
	}
}

func (e *Tsm) parallelOver(ctx context.Context, n int, fn func(k kernel.Kernel, i int)) error {
	if n == 0 {
		return nil
	}
	workers := e.Workers
	if workers > n {
		workers = n
	}
	g, gctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			local := e.Kernel.Clone()
			for i := start; i < end; i++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				fn(local, i)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Tsm) bottomPass(ctx context.Context) error {
	var leaves []*octree.Node
	e.Tree.ForEachLeaf(func(n *octree.Node) {
		if e.hasSrc[n] {
			leaves = append(leaves, n)
		}
	})
	return e.parallelOver(ctx, len(leaves), func(k kernel.Kernel, i int) {
		n := leaves[i]
		k.P2M(cellOf(n), n.Sources)
		e.Stats.P2MCalls++
	})
}

func (e *Tsm) upwardPass(ctx context.Context) error {
	for level := int(e.Tree.Height()) - 1; level >= 1; level-- {
		var cells []*octree.Node
		e.Tree.ForEachCellAtLevel(uint8(level), func(n *octree.Node) {
			if !n.Leaf && e.hasSrc[n] {
				cells = append(cells, n)
			}
		})
		err := e.parallelOver(ctx, len(cells), func(k kernel.Kernel, i int) {
			n := cells[i]
			var children [8]*kernel.CellExpansion
			for idx, c := range n.Children {
				if c != nil && e.hasSrc[c] {
					children[idx] = cellOf(c)
				}
			}
			k.M2M(cellOf(n), children, uint8(level))
			e.Stats.M2MCalls++
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Tsm) transferPass(ctx context.Context) error {
	for level := 2; level <= int(e.Tree.Height()); level++ {
		var cells []*octree.Node
		e.Tree.ForEachCellAtLevel(uint8(level), func(n *octree.Node) {
			if e.hasTargets[n] {
				cells = append(cells, n)
			}
		})
		err := e.parallelOver(ctx, len(cells), func(k kernel.Kernel, i int) {
			n := cells[i]
			far := e.Tree.InteractionListSlots(n)
			sources := make([]kernel.Source, 0, len(far))
			for _, f := range far {
				if e.hasSrc[f.Node] {
					sources = append(sources, kernel.Source{Cell: cellOf(f.Node), Slot: f.Slot})
				}
			}
			if len(sources) == 0 {
				return
			}
			k.M2L(cellOf(n), sources, uint8(level))
			e.Stats.M2LCalls++
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Tsm) downwardPass(ctx context.Context) error {
	for level := 1; level < int(e.Tree.Height()); level++ {
		var cells []*octree.Node
		e.Tree.ForEachCellAtLevel(uint8(level), func(n *octree.Node) {
			if !n.Leaf && e.hasTargets[n] {
				cells = append(cells, n)
			}
		})
		err := e.parallelOver(ctx, len(cells), func(k kernel.Kernel, i int) {
			n := cells[i]
			var children [8]*kernel.CellExpansion
			for idx, c := range n.Children {
				if c != nil && e.hasTargets[c] {
					children[idx] = cellOf(c)
				}
			}
			k.L2L(cellOf(n), children, uint8(level))
			e.Stats.L2LCalls++
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Tsm) directPass(ctx context.Context) error {
	var leaves []*octree.Node
	e.Tree.ForEachLeaf(func(n *octree.Node) {
		if e.hasTargets[n] {
			leaves = append(leaves, n)
		}
	})
	return e.parallelOver(ctx, len(leaves), func(k kernel.Kernel, i int) {
		n := leaves[i]
		k.L2P(cellOf(n), n.Targets)
		e.Stats.L2PCalls++

		// Sources and Targets are independent particle sets here, not the
		// same particles wearing two hats, so there is no self-pair to
		// exclude the way the symmetric engines do: every source
		// contributes to every target, including a leaf's own sources.
		// Pushing n.Sources into the neighbour list (instead of the
		// "ownSources" slot) keeps the kernel's index-aligned self-skip
		// from wrongly discarding the diagonal.
		selfSlot := 13 // neighbor.NearSlot(0, 0, 0)
		neighborNodes := e.Tree.DirectNeighborSlots(n)
		neighbors := make([]*particle.Container, 0, len(neighborNodes)+1)
		slots := make([]int, 0, len(neighborNodes)+1)
		if e.hasSrc[n] {
			neighbors = append(neighbors, n.Sources)
			slots = append(slots, selfSlot)
		}
		for _, nb := range neighborNodes {
			if e.hasSrc[nb.Node] {
				neighbors = append(neighbors, nb.Node.Sources)
				slots = append(slots, nb.Slot)
			}
		}
		k.P2P(n.Targets, particle.NewContainer(len(n.Targets.Value)), neighbors, slots)
		e.Stats.P2PCalls++
		e.Stats.Interactions += len(neighbors)
	})
}

var _ Engine = (*Tsm)(nil)
