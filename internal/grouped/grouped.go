// Package grouped implements the grouped (blocked) octree: cells at each
// level are packed, greedily and in Morton order, into fixed-capacity
// Group records backed by dense slices rather than individually
// heap-allocated nodes. This is the layout the task-parallel engine
// schedules over, since a Group's cells can be claimed as a single
// unit of work.
package grouped

import (
	"sort"

	"github.com/scalfmm-go/fmm/internal/morton"
	"github.com/scalfmm-go/fmm/internal/octree"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// Cell is one record inside a Group: the tree bookkeeping a kernel
// attaches its expansion to.
type Cell struct {
	Morton     uint64
	Multipole  any
	Local      any
	IsLeaf     bool
	Sources    *particle.Container
	Targets    *particle.Container
}

// Group is a contiguous, Morton-ordered run of cells at one level. Start
// and End are the half-open Morton index interval the group was built
// from; Cells holds only the cells that actually exist within it (the
// tree may be non-uniform, so not every index in [Start, End) is
// necessarily populated).
type Group struct {
	Level int
	Start uint64
	End   uint64
	Cells []Cell
}

// IndexOf returns the position of the cell with the given Morton index
// within the group, or -1 if absent.
func (g *Group) IndexOf(m uint64) int {
	i := sort.Search(len(g.Cells), func(i int) bool { return g.Cells[i].Morton >= m })
	if i < len(g.Cells) && g.Cells[i].Morton == m {
		return i
	}
	return -1
}

// Tree is the full grouped octree: one list of Groups per level. There is
// no separate list of particle groups: each leaf-level group's cells carry
// their own Sources/Targets containers directly.
type Tree struct {
	height    int
	groupSize int
	levels    [][]*Group // levels[level] is that level's groups, levels[0] always has one group (the root)
}

// Height returns the tree's depth.
func (t *Tree) Height() int { return t.height }

// Level returns the groups at the given level.
func (t *Tree) Level(level int) []*Group { return t.levels[level] }

// FromPointerTree builds a grouped tree by copying an existing
// pointer-form octree, packing up to groupSize consecutive (in Morton
// order) cells per level into each group. This mirrors building a
// blocked representation from an already-constructed tree to hand off to
// a task-parallel scheduler, without re-deriving any geometry.
func FromPointerTree(src *octree.Tree, groupSize int) *Tree {
	t := &Tree{
		height:    int(src.Height()) + 1,
		groupSize: groupSize,
		levels:    make([][]*Group, int(src.Height())+1),
	}
	for level := 0; level <= int(src.Height()); level++ {
		var cells []Cell
		src.ForEachCellAtLevel(uint8(level), func(n *octree.Node) {
			c := Cell{Morton: n.Morton, IsLeaf: n.Leaf}
			if n.Leaf {
				c.Sources = n.Sources
				c.Targets = n.Targets
			}
			cells = append(cells, c)
		})
		sort.Slice(cells, func(i, j int) bool { return cells[i].Morton < cells[j].Morton })
		t.levels[level] = packGroups(level, cells, groupSize)
	}
	return t
}

// BuildFromSource builds a grouped tree directly from a particle source,
// without ever materialising a pointer-form octree: it buckets particles
// by their leaf-level Morton index, derives ancestor cells level by
// level, and packs each level greedily. subTreeHeight, when > 0 and less
// than height, stops refinement early so the bottom subTreeHeight levels
// are merged into coarser leaf groups — a common knob for tuning group
// granularity against cache/scheduling overhead.
func BuildFromSource(boxCentre [3]float64, boxWidth float64, height uint8, subTreeHeight uint8, groupSize int, particles *particle.Container) *Tree {
	leafLevel := height
	if subTreeHeight > 0 && subTreeHeight < height {
		leafLevel = height - subTreeHeight
	}

	buckets := map[uint64][]int{}
	for i := 0; i < particles.Len(); i++ {
		p := particles.At(i)
		coord := coordAt(boxCentre, boxWidth, p.X, p.Y, p.Z, leafLevel)
		m := morton.Encode(coord)
		buckets[m] = append(buckets[m], i)
	}

	leafMortons := make([]uint64, 0, len(buckets))
	for m := range buckets {
		leafMortons = append(leafMortons, m)
	}
	sort.Slice(leafMortons, func(i, j int) bool { return leafMortons[i] < leafMortons[j] })

	t := &Tree{
		height:    int(leafLevel) + 1,
		groupSize: groupSize,
		levels:    make([][]*Group, int(leafLevel)+1),
	}

	leafCells := make([]Cell, 0, len(leafMortons))
	for _, m := range leafMortons {
		c := Cell{Morton: m, IsLeaf: true, Sources: particle.NewContainer(len(particles.Value)), Targets: particle.NewContainer(len(particles.Value))}
		for _, idx := range buckets[m] {
			// A Container carries no role tag, so every particle is both a
			// source and a target of its leaf.
			p := particles.At(idx)
			c.Sources.Push(p)
			c.Targets.Push(p)
		}
		leafCells = append(leafCells, c)
	}
	t.levels[leafLevel] = packGroups(int(leafLevel), leafCells, groupSize)

	level := leafLevel
	cur := leafMortons
	for level > 0 {
		level--
		parentSet := map[uint64]bool{}
		for _, m := range cur {
			parentSet[morton.Parent(m)] = true
		}
		parents := make([]uint64, 0, len(parentSet))
		for m := range parentSet {
			parents = append(parents, m)
		}
		sort.Slice(parents, func(i, j int) bool { return parents[i] < parents[j] })

		cells := make([]Cell, 0, len(parents))
		for _, m := range parents {
			cells = append(cells, Cell{Morton: m, IsLeaf: false})
		}
		t.levels[level] = packGroups(int(level), cells, groupSize)
		cur = parents
	}
	return t
}

// packGroups splits a Morton-sorted cell slice into fixed-capacity,
// contiguous groups, matching the bulk-build's greedy blocking strategy.
func packGroups(level int, cells []Cell, groupSize int) []*Group {
	if len(cells) == 0 {
		return nil
	}
	var groups []*Group
	for start := 0; start < len(cells); start += groupSize {
		end := start + groupSize
		if end > len(cells) {
			end = len(cells)
		}
		groups = append(groups, &Group{
			Level: level,
			Start: cells[start].Morton,
			End:   cells[end-1].Morton + 1,
			Cells: append([]Cell(nil), cells[start:end]...),
		})
	}
	return groups
}

func coordAt(boxCentre [3]float64, boxWidth float64, x, y, z float64, level uint8) morton.Coordinate {
	n := float64(morton.MaxIndex(level))
	half := boxWidth / 2
	min := [3]float64{boxCentre[0] - half, boxCentre[1] - half, boxCentre[2] - half}
	cx := clampIndex(int((x-min[0])/boxWidth*n), n)
	cy := clampIndex(int((y-min[1])/boxWidth*n), n)
	cz := clampIndex(int((z-min[2])/boxWidth*n), n)
	return morton.Coordinate{X: uint32(cx), Y: uint32(cy), Z: uint32(cz)}
}

func clampIndex(i int, n float64) int {
	if i < 0 {
		return 0
	}
	if i >= int(n) {
		return int(n) - 1
	}
	return i
}

// ForEachLeaf visits every leaf cell across every leaf-level group.
func (t *Tree) ForEachLeaf(fn func(*Cell)) {
	for _, g := range t.levels[t.height-1] {
		for i := range g.Cells {
			if g.Cells[i].IsLeaf {
				fn(&g.Cells[i])
			}
		}
	}
}

// ForEachCellWithLevel visits every cell at the given level, across every
// group at that level.
func (t *Tree) ForEachCellWithLevel(level int, fn func(*Cell)) {
	for _, g := range t.levels[level] {
		for i := range g.Cells {
			fn(&g.Cells[i])
		}
	}
}

// Find locates the cell with the given Morton index at the given level,
// and the group containing it, or (nil, nil) if absent.
func (t *Tree) Find(level int, m uint64) (*Group, *Cell) {
	groups := t.levels[level]
	i := sort.Search(len(groups), func(i int) bool { return groups[i].End > m })
	if i >= len(groups) || groups[i].Start > m {
		return nil, nil
	}
	idx := groups[i].IndexOf(m)
	if idx < 0 {
		return nil, nil
	}
	return groups[i], &groups[i].Cells[idx]
}
