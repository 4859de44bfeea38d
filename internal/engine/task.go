package engine

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/scalfmm-go/fmm/internal/grouped"
	"github.com/scalfmm-go/fmm/internal/kernel"
	"github.com/scalfmm-go/fmm/internal/morton"
	"github.com/scalfmm-go/fmm/internal/neighbor"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// OutOfBlockInteraction records one neighbour relationship that crosses
// a group boundary: a cell inside the group being processed (insideMorton)
// interacts with a cell outside it (outsideMorton) at the given slot,
// Slot being outsideMorton's position relative to insideMorton. One record
// is collected per cross-group cell pair and slot: reduceOutOfBlock sorts
// by OutsideMorton, drops the OutsideMorton >= InsideMorton half (the
// mutual form only needs one direction), and removes exact duplicates.
// Records are not merged per group pair; each surviving record still
// names one cell pair.
type OutOfBlockInteraction struct {
	OutsideMorton uint64
	InsideMorton  uint64
	Slot          int
}

// MirrorSlot returns the slot the outside cell would use to look back at
// the inside cell: the centrally-symmetric opposite of Slot. A group
// scheduler walking the edge in the other direction derives this instead
// of re-running InteractionList/DirectNeighbors from that side.
func (o OutOfBlockInteraction) MirrorSlot(far bool) int {
	if far {
		return neighbor.OppositeFarSlot(o.Slot)
	}
	return neighbor.OppositeNearSlot(o.Slot)
}

// reduceOutOfBlock sorts records by (OutsideMorton, InsideMorton, Slot),
// keeps only the OutsideMorton < InsideMorton half (the mutual form's
// canonical direction), and drops exact repeats. The result still holds
// one record per cross-group cell pair and slot.
func reduceOutOfBlock(records []OutOfBlockInteraction) []OutOfBlockInteraction {
	sort.Slice(records, func(i, j int) bool {
		if records[i].OutsideMorton != records[j].OutsideMorton {
			return records[i].OutsideMorton < records[j].OutsideMorton
		}
		if records[i].InsideMorton != records[j].InsideMorton {
			return records[i].InsideMorton < records[j].InsideMorton
		}
		return records[i].Slot < records[j].Slot
	})
	out := records[:0]
	for i, r := range records {
		if r.OutsideMorton >= r.InsideMorton {
			continue
		}
		if i > 0 && len(out) > 0 && out[len(out)-1] == r {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Task runs the six-pass schedule over a grouped (blocked) octree: each
// Group is one schedulable unit, and groups within a level run
// concurrently. P2M/M2M/M2L/L2L are safe to parallelise this way because
// every cell's write target is its own expansion; P2P additionally needs
// the colour-phase split documented on directPass. Cross-group neighbour
// relationships are reported as OutOfBlockInteraction occurrences, see
// FarGroupEdges/NearGroupEdges.
type Task struct {
	lifecycle
	Tree    *grouped.Tree
	Kernel  kernel.Kernel
	Workers int
	Stats   Stats

	// FarGroupEdges and NearGroupEdges are the reduced (see
	// reduceOutOfBlock) cross-group M2L/P2P cell-pair records found by the
	// most recent Run, in the
	// canonical OutsideMorton < InsideMorton direction. A scheduler can
	// walk these instead of re-deriving cross-group dependencies from
	// the tree, using MirrorSlot to view an edge from its outside cell.
	FarGroupEdges  []OutOfBlockInteraction
	NearGroupEdges []OutOfBlockInteraction
}

// NewTask returns a Task engine over a grouped tree.
func NewTask(tree *grouped.Tree, k kernel.Kernel, workers int) *Task {
	if workers <= 0 {
		workers = 4
	}
	return &Task{Tree: tree, Kernel: k, Workers: workers}
}

func (e *Task) Prepare() error {
	if err := e.lifecycle.prepare(); err != nil {
		return err
	}
	return e.Kernel.Init()
}

func (e *Task) Run(ctx context.Context) error {
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

// forEachGroupParallel fans fn out across e.Workers goroutines, one
// kernel clone per worker, over every group at the given level.
func (e *Task) forEachGroupParallel(ctx context.Context, level int, fn func(k kernel.Kernel, g *grouped.Group)) error {
	groups := e.Tree.Level(level)
	if len(groups) == 0 {
		return nil
	}
	workers := e.Workers
	if workers > len(groups) {
		workers = len(groups)
	}
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(groups) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(groups) {
			end = len(groups)
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
				fn(local, groups[i])
			}
			return nil
		})
	}
	return g.Wait()
}

func cellExpansion(c *grouped.Cell) *kernel.CellExpansion {
	return &kernel.CellExpansion{Multipole: c.Multipole, Local: c.Local}
}

func storeExpansion(c *grouped.Cell, ce *kernel.CellExpansion) {
	c.Multipole = ce.Multipole
	c.Local = ce.Local
}

func (e *Task) bottomPass(ctx context.Context) error {
	level := e.Tree.Height() - 1
	return e.forEachGroupParallel(ctx, level, func(k kernel.Kernel, g *grouped.Group) {
		for i := range g.Cells {
			c := &g.Cells[i]
			if !c.IsLeaf {
				continue
			}
			ce := cellExpansion(c)
			k.P2M(ce, c.Sources)
			storeExpansion(c, ce)
		}
	})
}

// findChildren resolves a parent cell's (at most 8) children at level+1
// by Morton index across the whole tree (children may live in a
// different group than their parent).
func (e *Task) findChildren(level int, parentMorton uint64) [8]*kernel.CellExpansion {
	var out [8]*kernel.CellExpansion
	for k := 0; k < 8; k++ {
		_, cell := e.Tree.Find(level+1, parentMorton<<3|uint64(k))
		if cell != nil {
			out[k] = cellExpansion(cell)
		}
	}
	return out
}

func (e *Task) upwardPass(ctx context.Context) error {
	for level := e.Tree.Height() - 2; level >= 0; level-- {
		err := e.forEachGroupParallel(ctx, level, func(k kernel.Kernel, g *grouped.Group) {
			for i := range g.Cells {
				c := &g.Cells[i]
				if c.IsLeaf {
					continue
				}
				children := e.findChildren(level, c.Morton)
				ce := cellExpansion(c)
				k.M2M(ce, children, uint8(level))
				storeExpansion(c, ce)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// crossGroupFar returns M2L sources for every existing interaction-list
// neighbour of the cell at level, whichever group holds it, plus an
// out-of-block record for each of those neighbours that lives in a group
// other than g.
func (e *Task) crossGroupFar(level int, g *grouped.Group, cellMorton uint64) ([]kernel.Source, []OutOfBlockInteraction) {
	coord := morton.Decode(cellMorton)
	far := neighbor.InteractionList(coord, uint8(level))
	var sources []kernel.Source
	var out []OutOfBlockInteraction
	for _, f := range far {
		og, cell := e.Tree.Find(level, f.Morton)
		if cell == nil {
			continue
		}
		sources = append(sources, kernel.Source{Cell: cellExpansion(cell), Slot: f.Slot})
		if og != g {
			out = append(out, OutOfBlockInteraction{OutsideMorton: f.Morton, InsideMorton: cellMorton, Slot: f.Slot})
		}
	}
	return sources, out
}

func (e *Task) transferPass(ctx context.Context) error {
	var mu sync.Mutex
	var crossGroup []OutOfBlockInteraction
	var m2lCalls int
	for level := 2; level < e.Tree.Height(); level++ {
		err := e.forEachGroupParallel(ctx, level, func(k kernel.Kernel, g *grouped.Group) {
			for i := range g.Cells {
				c := &g.Cells[i]
				sources, out := e.crossGroupFar(level, g, c.Morton)
				if len(sources) == 0 {
					continue
				}
				ce := cellExpansion(c)
				k.M2L(ce, sources, uint8(level))
				storeExpansion(c, ce)

				mu.Lock()
				m2lCalls++
				if len(out) > 0 {
					crossGroup = append(crossGroup, out...)
				}
				mu.Unlock()
			}
		})
		if err != nil {
			return err
		}
	}
	e.FarGroupEdges = reduceOutOfBlock(crossGroup)
	e.Stats.M2LCalls += m2lCalls
	e.Stats.CrossGroupEdges += len(e.FarGroupEdges)
	return nil
}

func (e *Task) downwardPass(ctx context.Context) error {
	for level := 1; level < e.Tree.Height()-1; level++ {
		err := e.forEachGroupParallel(ctx, level, func(k kernel.Kernel, g *grouped.Group) {
			for i := range g.Cells {
				c := &g.Cells[i]
				if c.IsLeaf {
					continue
				}
				children := e.findChildren(level, c.Morton)
				ce := cellExpansion(c)
				k.L2L(ce, children, uint8(level))
				storeExpansion(c, ce)
				for k2 := 0; k2 < 8; k2++ {
					_, cell := e.Tree.Find(level+1, c.Morton<<3|uint64(k2))
					if cell != nil && children[k2] != nil {
						storeExpansion(cell, children[k2])
					}
				}
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// directPass computes near-field P2P. Unlike the other passes, P2P
// cannot simply run one group per goroutine: two cells in different
// groups can be direct neighbours, and a naive per-group split risks two
// goroutines writing the same target container's accumulators at once.
// Leaves are instead bucketed into the same 27-colour scheme the thread
// engine uses (mod-3-per-axis coordinate), and coloured phases run one
// after another; within a phase no two leaves being processed are
// mutual neighbours, so concurrent writes never alias. Cross-group
// neighbour pairs are additionally collected as OutOfBlockInteraction
// occurrences and reduced via reduceOutOfBlock, reported through
// e.NearGroupEdges and Stats.CrossGroupEdges.
func (e *Task) directPass(ctx context.Context) error {
	level := e.Tree.Height() - 1
	var mu sync.Mutex
	var crossGroup []OutOfBlockInteraction
	var interactions int

	byColour := make([][]*grouped.Cell, 27)
	owningGroup := map[*grouped.Cell]*grouped.Group{}
	for _, g := range e.Tree.Level(level) {
		for i := range g.Cells {
			c := &g.Cells[i]
			if !c.IsLeaf {
				continue
			}
			coord := morton.Decode(c.Morton)
			col := int(coord.X%3)*9 + int(coord.Y%3)*3 + int(coord.Z%3)
			byColour[col] = append(byColour[col], c)
			owningGroup[c] = g
		}
	}

	for _, cells := range byColour {
		if len(cells) == 0 {
			continue
		}
		err := e.parallelOverCells(ctx, cells, func(k kernel.Kernel, c *grouped.Cell) {
			mk, hasMutual := k.(kernel.MutualP2PKernel)
			coord := morton.Decode(c.Morton)
			near := neighbor.DirectNeighbors(coord, uint8(level))
			var neighbors []*particle.Container
			var slots []int
			var out []OutOfBlockInteraction
			var found int
			for _, nb := range near {
				og, cell := e.Tree.Find(level, nb.Morton)
				if cell == nil {
					continue
				}
				found++
				if og != owningGroup[c] {
					out = append(out, OutOfBlockInteraction{OutsideMorton: nb.Morton, InsideMorton: c.Morton, Slot: nb.Slot})
				}
				if hasMutual {
					if cell.Morton > c.Morton {
						mk.P2PMutual(c.Targets, c.Sources, cell.Targets, cell.Sources)
					}
					continue // cell.Morton < c.Morton handled by that cell's own pass
				}
				neighbors = append(neighbors, cell.Sources)
				slots = append(slots, nb.Slot)
			}
			if hasMutual {
				mk.P2PSelf(c.Targets, c.Sources)
			}
			if len(neighbors) > 0 {
				k.P2P(c.Targets, c.Sources, neighbors, slots)
			}
			k.L2P(cellExpansion(c), c.Targets)

			mu.Lock()
			interactions += found
			crossGroup = append(crossGroup, out...)
			mu.Unlock()
		})
		if err != nil {
			return err
		}
	}

	e.NearGroupEdges = reduceOutOfBlock(crossGroup)
	e.Stats.Interactions += interactions
	e.Stats.CrossGroupEdges += len(e.NearGroupEdges)
	return nil
}

// parallelOverCells fans fn out across e.Workers goroutines, one kernel
// clone per worker, over a flat slice of cells.
func (e *Task) parallelOverCells(ctx context.Context, cells []*grouped.Cell, fn func(k kernel.Kernel, c *grouped.Cell)) error {
	workers := e.Workers
	if workers > len(cells) {
		workers = len(cells)
	}
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(cells) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(cells) {
			end = len(cells)
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
				fn(local, cells[i])
			}
			return nil
		})
	}
	return g.Wait()
}

var _ Engine = (*Task)(nil)
