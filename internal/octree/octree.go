// Package octree implements the pointer-form octree: particles are
// inserted one at a time and every occupied path refines down to the
// tree's fixed maximum height, so every leaf sits at the same level
// regardless of how particles are distributed. Unoccupied regions simply
// never grow nodes; the tree is sparse, not shallow.
package octree

import (
	"sync"

	"github.com/scalfmm-go/fmm/internal/morton"
	"github.com/scalfmm-go/fmm/internal/neighbor"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// Node is one cell of the tree: its Morton index, level, optional
// children, and — for leaves only — the particles it owns.
type Node struct {
	Morton     uint64
	Level      uint8
	Children   [8]*Node
	Leaf       bool
	Sources    *particle.Container
	Targets    *particle.Container
	Expansion  any // lazily set to a *kernel.CellExpansion by the engine
}

// IsLeaf reports whether this node currently has no children.
func (n *Node) IsLeaf() bool { return n.Children[0] == nil }

// Tree is the pointer-form octree of one simulation box. Its height is
// fixed at construction; a leaf is always a node at that height, never a
// node that merely happens to hold few particles. groupSize is not a
// property of this tree — it belongs to the grouped (blocked) octree's
// block-packing (see internal/grouped), which this package knows
// nothing about.
type Tree struct {
	mu         sync.RWMutex
	root       *Node
	height     uint8
	nValues    int
	boxCentre  [3]float64
	boxWidth   float64
	nodeCount  int
}

// New returns an empty tree over a cubic box of the given centre and
// width, with the given fixed maximum height: every leaf this tree ever
// grows sits at that height.
func New(boxCentre [3]float64, boxWidth float64, height uint8, nValues int) *Tree {
	return &Tree{
		root: &Node{
			Morton:  0,
			Level:   0,
			Leaf:    true,
			Sources: particle.NewContainer(nValues),
			Targets: particle.NewContainer(nValues),
		},
		height:    height,
		nValues:   nValues,
		boxCentre: boxCentre,
		boxWidth:  boxWidth,
		nodeCount: 1,
	}
}

// Height returns the tree's maximum depth.
func (t *Tree) Height() uint8 { return t.height }

// NodeCount returns the number of nodes (internal and leaf) in the tree.
func (t *Tree) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodeCount
}

// coordAt maps a particle's position to its integer grid coordinate at
// the tree's maximum height.
func (t *Tree) coordAt(x, y, z float64) morton.Coordinate {
	n := float64(morton.MaxIndex(t.height))
	half := t.boxWidth / 2
	min := [3]float64{t.boxCentre[0] - half, t.boxCentre[1] - half, t.boxCentre[2] - half}
	cx := clampIndex(int((x-min[0])/t.boxWidth*n), n)
	cy := clampIndex(int((y-min[1])/t.boxWidth*n), n)
	cz := clampIndex(int((z-min[2])/t.boxWidth*n), n)
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

// Insert adds one particle at its natural leaf, refining every node
// along its path down to the tree's fixed height. Distinct particles may
// share a position; nothing here rejects that.
func (t *Tree) Insert(p particle.Particle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	coord := t.coordAt(p.X, p.Y, p.Z)
	full := morton.Encode(coord)
	t.insert(t.root, p, full, t.height)
}

// insert walks from n towards the leaf at t.height along the path full
// describes, subdividing any leaf it passes through that is not yet at
// that height. remaining counts the levels still to descend. A node is
// only ever a true leaf (holding particles) once remaining reaches 0.
func (t *Tree) insert(n *Node, p particle.Particle, full uint64, remaining uint8) {
	if remaining == 0 {
		if p.Role.IsSource() {
			n.Sources.Push(p)
		}
		if p.Role.IsTarget() {
			n.Targets.Push(p)
		}
		return
	}
	if n.Leaf {
		t.subdivide(n)
	}
	shift := 3 * (remaining - 1)
	childIdx := int((full >> shift) & 0x7)
	t.insert(n.Children[childIdx], p, full, remaining-1)
}

// subdivide turns a leaf into an internal node with 8 fresh, empty leaf
// children. Since a node only ever holds particles once it reaches
// t.height, a node being subdivided never has particles to move.
func (t *Tree) subdivide(n *Node) {
	n.Leaf = false
	n.Sources = nil
	n.Targets = nil

	for k := 0; k < 8; k++ {
		n.Children[k] = &Node{
			Morton:  n.Morton<<3 | uint64(k),
			Level:   n.Level + 1,
			Leaf:    true,
			Sources: particle.NewContainer(t.nValues),
			Targets: particle.NewContainer(t.nValues),
		}
		t.nodeCount++
	}
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Coordinate returns the integer grid coordinate of a node's Morton index
// at its own level.
func Coordinate(n *Node) morton.Coordinate {
	return morton.Decode(n.Morton)
}

// Find descends from root to the node at the given Morton index and
// level, returning nil if no such node exists (the tree is not refined
// that deep along this path).
func (t *Tree) Find(target uint64, level uint8) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	for l := uint8(0); l < level; l++ {
		if n.Leaf {
			return nil
		}
		shift := 3 * (level - l - 1)
		idx := int((target >> shift) & 0x7)
		n = n.Children[idx]
	}
	return n
}

// DirectNeighbors returns the existing leaf nodes among n's near-field
// neighbours at n's level.
func (t *Tree) DirectNeighbors(n *Node) []*Node {
	var out []*Node
	for _, s := range t.DirectNeighborSlots(n) {
		out = append(out, s.Node)
	}
	return out
}

// SlottedNode pairs a neighbour node with its direction/relative-position
// slot, needed wherever a kernel distinguishes neighbours by direction.
type SlottedNode struct {
	Node *Node
	Slot int
}

// DirectNeighborSlots is DirectNeighbors plus each neighbour's slot.
func (t *Tree) DirectNeighborSlots(n *Node) []SlottedNode {
	coord := morton.Decode(n.Morton)
	var out []SlottedNode
	for _, near := range neighbor.DirectNeighbors(coord, n.Level) {
		if nb := t.Find(near.Morton, n.Level); nb != nil {
			out = append(out, SlottedNode{Node: nb, Slot: near.Slot})
		}
	}
	return out
}

// InteractionList returns the existing nodes among n's M2L neighbours at
// n's level.
func (t *Tree) InteractionList(n *Node) []*Node {
	var out []*Node
	for _, s := range t.InteractionListSlots(n) {
		out = append(out, s.Node)
	}
	return out
}

// InteractionListSlots is InteractionList plus each neighbour's slot.
func (t *Tree) InteractionListSlots(n *Node) []SlottedNode {
	coord := morton.Decode(n.Morton)
	var out []SlottedNode
	for _, far := range neighbor.InteractionList(coord, n.Level) {
		if nb := t.Find(far.Morton, n.Level); nb != nil {
			out = append(out, SlottedNode{Node: nb, Slot: far.Slot})
		}
	}
	return out
}

// ForEachLeaf visits every leaf node in the tree.
func (t *Tree) ForEachLeaf(fn func(*Node)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	forEachLeaf(t.root, fn)
}

func forEachLeaf(n *Node, fn func(*Node)) {
	if n.Leaf {
		fn(n)
		return
	}
	for _, c := range n.Children {
		if c != nil {
			forEachLeaf(c, fn)
		}
	}
}

// ForEachCellAtLevel visits every node at the given level, internal or
// leaf, used by the upward/downward passes which operate level by level.
func (t *Tree) ForEachCellAtLevel(level uint8, fn func(*Node)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	forEachCellAtLevel(t.root, level, fn)
}

func forEachCellAtLevel(n *Node, level uint8, fn func(*Node)) {
	if n.Level == level {
		fn(n)
		return
	}
	if n.Leaf {
		return
	}
	for _, c := range n.Children {
		if c != nil {
			forEachCellAtLevel(c, level, fn)
		}
	}
}

// Cursor is a restartable, coordinate-aware position into a Tree: it
// remembers a level and an integer grid coordinate at that level, not a
// *Node, so it can re-resolve after the tree changes and can name a
// position that has no node yet (an empty region of a sparse tree).
// Node resolves the position with Find, walking down from the root on
// every call.
type Cursor struct {
	tree  *Tree
	level uint8
	coord morton.Coordinate
}

// NewCursor returns a Cursor parked at the tree's root.
func (t *Tree) NewCursor() *Cursor {
	return &Cursor{tree: t}
}

// Node resolves the cursor's current position to a node, or nil if the
// tree has no node there.
func (c *Cursor) Node() *Node {
	return c.tree.Find(morton.Encode(c.coord), c.level)
}

// Level returns the level the cursor is currently positioned at.
func (c *Cursor) Level() uint8 { return c.level }

// Coordinate returns the cursor's current integer grid coordinate.
func (c *Cursor) Coordinate() morton.Coordinate { return c.coord }

// GotoBottomLeft parks the cursor at the tree's maximum height, at the
// coordinate origin (0, 0, 0), the starting point for a MoveRight sweep.
// MoveRight walks only the current row (fixed Y and Z) in increasing X
// and does not go on to the next row; Cursor has no operation that steps
// Y or Z, so one sweep from here covers a single row of leaves.
func (c *Cursor) GotoBottomLeft() *Cursor {
	c.level = c.tree.height
	c.coord = morton.Coordinate{}
	return c
}

// GotoLeft resets the cursor's X coordinate to 0, keeping its level and
// Y/Z unchanged — jumping back to the start of the current row.
func (c *Cursor) GotoLeft() *Cursor {
	c.coord.X = 0
	return c
}

// MoveRight advances one cell along X at the cursor's current level. It
// reports false (and leaves the cursor unmoved) once X would run past
// the level's bound.
func (c *Cursor) MoveRight() bool {
	if c.coord.X+1 >= morton.MaxIndex(c.level) {
		return false
	}
	c.coord.X++
	return true
}

// MoveUp moves the cursor to its parent cell: level decreases by one and
// the coordinate halves on every axis. It reports false at level 0.
func (c *Cursor) MoveUp() bool {
	if c.level == 0 {
		return false
	}
	c.level--
	c.coord = morton.Coordinate{X: c.coord.X >> 1, Y: c.coord.Y >> 1, Z: c.coord.Z >> 1}
	return true
}

// MoveDown moves the cursor to octant 0 of its current cell: level
// increases by one and the coordinate doubles on every axis. It reports
// false at the tree's maximum height.
func (c *Cursor) MoveDown() bool {
	if c.level >= c.tree.height {
		return false
	}
	c.level++
	c.coord = morton.Coordinate{X: c.coord.X << 1, Y: c.coord.Y << 1, Z: c.coord.Z << 1}
	return true
}
