package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/scalfmm-go/fmm/internal/kernel"
	"github.com/scalfmm-go/fmm/internal/octree"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// Thread runs the same six-pass schedule as Sequential but fans work out
// across goroutines: one kernel clone per worker (Kernel.Clone), gathered
// per-level cell arrays processed in parallel chunks for P2M/M2M/M2L/L2L/
// L2P, and a 27-colour scheme for P2P so that mutually-writing near-field
// pairs never race.
//
// The colouring assigns each leaf a colour from its integer coordinate
// mod 3 on each axis (27 colours; one, the self colour, never appears as
// a distinct neighbour relation). Two leaves sharing a colour are always
// at Chebyshev distance >= 3 apart, so they can never be direct
// neighbours of one another or of a common direct neighbour — processing
// one colour's P2P mutual writes fully in parallel is therefore race
// free, and colours are processed one after another.
type Thread struct {
	lifecycle
	Tree    *octree.Tree
	Kernel  kernel.Kernel
	Workers int
	Stats   Stats
}

// NewThread returns a Thread engine. workers <= 0 defaults to
// runtime.GOMAXPROCS(0).
func NewThread(tree *octree.Tree, k kernel.Kernel, workers int) *Thread {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Thread{Tree: tree, Kernel: k, Workers: workers}
}

func (e *Thread) Prepare() error {
	if err := e.lifecycle.prepare(); err != nil {
		return err
	}
	return e.Kernel.Init()
}

func (e *Thread) Run(ctx context.Context) error {
	if err := e.lifecycle.start(); err != nil {
		return err
	}
	defer e.lifecycle.complete()

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

// forEachLeafParallel gathers every leaf into a slice and fans fn out
// across e.Workers goroutines, each with its own kernel clone.
func (e *Thread) forEachLeafParallel(ctx context.Context, fn func(k kernel.Kernel, n *octree.Node)) error {
	var leaves []*octree.Node
	e.Tree.ForEachLeaf(func(n *octree.Node) { leaves = append(leaves, n) })
	return e.parallelOver(ctx, len(leaves), func(k kernel.Kernel, i int) { fn(k, leaves[i]) })
}

func (e *Thread) forEachCellAtLevelParallel(ctx context.Context, level int, fn func(k kernel.Kernel, n *octree.Node)) error {
	var cells []*octree.Node
	e.Tree.ForEachCellAtLevel(uint8(level), func(n *octree.Node) { cells = append(cells, n) })
	return e.parallelOver(ctx, len(cells), func(k kernel.Kernel, i int) { fn(k, cells[i]) })
}

// parallelOver runs fn(clone, i) for i in [0, n) across e.Workers
// goroutines, each owning one kernel clone for its whole share of work.
func (e *Thread) parallelOver(ctx context.Context, n int, fn func(k kernel.Kernel, i int)) error {
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

func (e *Thread) bottomPass(ctx context.Context) error {
	return e.forEachLeafParallel(ctx, func(k kernel.Kernel, n *octree.Node) {
		k.P2M(cellOf(n), n.Sources)
	})
}

func (e *Thread) upwardPass(ctx context.Context) error {
	for level := int(e.Tree.Height()) - 1; level >= 1; level-- {
		err := e.forEachCellAtLevelParallel(ctx, level, func(k kernel.Kernel, n *octree.Node) {
			if n.Leaf {
				return
			}
			var children [8]*kernel.CellExpansion
			for idx, c := range n.Children {
				if c != nil {
					children[idx] = cellOf(c)
				}
			}
			k.M2M(cellOf(n), children, uint8(level))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Thread) transferPass(ctx context.Context) error {
	for level := 2; level <= int(e.Tree.Height()); level++ {
		err := e.forEachCellAtLevelParallel(ctx, level, func(k kernel.Kernel, n *octree.Node) {
			far := e.Tree.InteractionListSlots(n)
			if len(far) == 0 {
				return
			}
			sources := make([]kernel.Source, 0, len(far))
			for _, f := range far {
				sources = append(sources, kernel.Source{Cell: cellOf(f.Node), Slot: f.Slot})
			}
			k.M2L(cellOf(n), sources, uint8(level))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Thread) downwardPass(ctx context.Context) error {
	for level := 1; level < int(e.Tree.Height()); level++ {
		err := e.forEachCellAtLevelParallel(ctx, level, func(k kernel.Kernel, n *octree.Node) {
			if n.Leaf {
				return
			}
			var children [8]*kernel.CellExpansion
			for idx, c := range n.Children {
				if c != nil {
					children[idx] = cellOf(c)
				}
			}
			k.L2L(cellOf(n), children, uint8(level))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// colourOf returns a leaf's mod-3-per-axis colour in [0, 27).
func colourOf(n *octree.Node) int {
	c := octree.Coordinate(n)
	return int(c.X%3)*9 + int(c.Y%3)*3 + int(c.Z%3)
}

func (e *Thread) directPass(ctx context.Context) error {
	byColour := make([][]*octree.Node, 27)
	e.Tree.ForEachLeaf(func(n *octree.Node) {
		col := colourOf(n)
		byColour[col] = append(byColour[col], n)
	})

	for _, leaves := range byColour {
		if len(leaves) == 0 {
			continue
		}
		err := e.parallelOver(ctx, len(leaves), func(k kernel.Kernel, i int) {
			n := leaves[i]
			neighborSlots := e.Tree.DirectNeighborSlots(n)
			if mk, ok := k.(kernel.MutualP2PKernel); ok {
				mk.P2PSelf(n.Targets, n.Sources)
				for _, nb := range neighborSlots {
					if nb.Node.Morton > n.Morton {
						mk.P2PMutual(n.Targets, n.Sources, nb.Node.Targets, nb.Node.Sources)
					}
				}
				return
			}
			neighbors := make([]*particle.Container, 0, len(neighborSlots))
			slots := make([]int, 0, len(neighborSlots))
			for _, nb := range neighborSlots {
				neighbors = append(neighbors, nb.Node.Sources)
				slots = append(slots, nb.Slot)
			}
			k.P2P(n.Targets, n.Sources, neighbors, slots)
		})
		if err != nil {
			return err
		}
	}

	return e.forEachLeafParallel(ctx, func(k kernel.Kernel, n *octree.Node) {
		k.L2P(cellOf(n), n.Targets)
	})
}

var _ Engine = (*Thread)(nil)
