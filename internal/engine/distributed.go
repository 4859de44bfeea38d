package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/scalfmm-go/fmm/internal/grouped"
	"github.com/scalfmm-go/fmm/internal/kernel"
	"github.com/scalfmm-go/fmm/internal/logger"
	"github.com/scalfmm-go/fmm/internal/morton"
	"github.com/scalfmm-go/fmm/internal/neighbor"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// Interval is a closed [Min, Max] range of Morton indices (inclusive on
// both ends, matching the per-process partition the distributed engine
// assigns cells by).
type Interval struct {
	Min, Max uint64
}

// Contains reports whether m falls within the interval.
func (iv Interval) Contains(m uint64) bool { return m >= iv.Min && m <= iv.Max }

// GhostCell is one remote cell's expansion or particle data as received
// from a peer rank: enough for M2L/P2P/L2L to treat it like a local Source
// without mutating it.
type GhostCell struct {
	Morton    uint64
	Level     int
	Multipole any
	Local     any
	Sources   *particle.Container
}

// Message is one point-to-point exchange between two ranks, tagged by
// pass and level so a receiver can route it without out-of-band
// coordination.
type Message struct {
	From, To int
	Tag      Tag
	Level    int
	Cells    []GhostCell
}

// Tag identifies which pass a Message belongs to, mirroring the
// upward/transfer/downward/direct staging a real process-parallel FMM run
// must keep separate so messages from different passes are never
// mistaken for one another.
type Tag int

const (
	TagUpward Tag = iota
	TagTransfer
	TagDownward
	TagDirect
)

// Peer is the message-passing contract the distributed engine runs over.
// A process-local implementation backed by channels is enough to exercise
// the partitioning and ghost-exchange logic in a single binary; a real
// deployment swaps in a network-backed Peer without the engine changing.
type Peer interface {
	Rank() int
	NumPeers() int
	Send(ctx context.Context, msg Message) error
	Recv(ctx context.Context) (Message, error)
}

// partitionIntervals splits nbProcess (nearly) equal contiguous shares of
// a sorted, deduplicated Morton index list. Each rank owns a real
// interval of leaf indices; this is the "real" interval that working
// intervals are later widened or narrowed against.
func partitionIntervals(sorted []uint64, nbProcess int) []Interval {
	n := len(sorted)
	out := make([]Interval, nbProcess)
	if n == 0 {
		return out
	}
	chunk := (n + nbProcess - 1) / nbProcess
	for p := 0; p < nbProcess; p++ {
		start := p * chunk
		if start >= n {
			out[p] = Interval{Min: sorted[n-1] + 1, Max: sorted[n-1]} // empty: Min > Max
			continue
		}
		end := start + chunk
		if end > n {
			end = n
		}
		out[p] = Interval{Min: sorted[start], Max: sorted[end-1]}
	}
	return out
}

// ancestorIntervals derives level L's real intervals from the leaf-level
// real intervals by right-shifting each bound by 3 bits per level of
// ascent — every leaf index collapses to its level-L ancestor's index
// under the same Morton encoding, so the interval bounds collapse the
// same way.
func ancestorIntervals(leafReal []Interval, leafLevel, level int) []Interval {
	shift := uint(3 * (leafLevel - level))
	out := make([]Interval, len(leafReal))
	for p, iv := range leafReal {
		if iv.Min > iv.Max {
			out[p] = iv
			continue
		}
		out[p] = Interval{Min: iv.Min >> shift, Max: iv.Max >> shift}
	}
	return out
}

// workingIntervals applies the boundary-cleanup rule: rank 0's working
// interval is its real interval unchanged; every later rank's working
// minimum is pulled up to one past the previous rank's working maximum.
// At coarser levels the real intervals of two neighbouring ranks can both
// contain the same parent cell (its children straddle the rank boundary);
// raising the minimum leaves that cell to the earlier rank only, so no
// cell is worked on by two ranks.
func workingIntervals(real []Interval) []Interval {
	working := make([]Interval, len(real))
	if len(real) == 0 {
		return working
	}
	working[0] = real[0]
	for p := 1; p < len(real); p++ {
		min := real[p].Min
		if prevMax := working[p-1].Max; prevMax+1 > min {
			min = prevMax + 1
		}
		working[p] = Interval{Min: min, Max: real[p].Max}
	}
	return working
}

// Distributed runs the six-pass schedule across NumPeers() ranks, each
// owning one working interval of a shared grouped tree per level.
// Passes that only need a cell's own descendants (P2M, M2M) never cross
// rank boundaries. M2L, L2L and P2P do, so each of those passes opens
// with a ghost round: every rank figures out which remote cells its
// working-interval cells need, requests them from their owning rank, and
// answers the same requests for its own cells, all before computing.
type Distributed struct {
	lifecycle
	Tree   *grouped.Tree
	Kernel kernel.Kernel
	Peer   Peer
	Stats  Stats

	working []Interval     // working[level], computed at Prepare
	log     *logger.Logger // tagged "peer<rank>", set in Prepare once Peer.Rank() is known
}

// NewDistributed returns a Distributed engine bound to a Peer. Tree must
// be identical (same shape, same particle assignment) across every rank;
// only the working intervals differ.
func NewDistributed(tree *grouped.Tree, k kernel.Kernel, peer Peer) *Distributed {
	return &Distributed{Tree: tree, Kernel: k, Peer: peer}
}

func (e *Distributed) Prepare() error {
	if err := e.lifecycle.prepare(); err != nil {
		return err
	}
	e.log = logger.New(logger.INFO).WithTag(fmt.Sprintf("peer%d", e.Peer.Rank()))

	if err := e.Kernel.Init(); err != nil {
		return err
	}

	leafLevel := e.Tree.Height() - 1
	var leafMortons []uint64
	e.Tree.ForEachLeaf(func(c *grouped.Cell) { leafMortons = append(leafMortons, c.Morton) })
	sort.Slice(leafMortons, func(i, j int) bool { return leafMortons[i] < leafMortons[j] })

	leafReal := partitionIntervals(leafMortons, e.Peer.NumPeers())
	e.working = make([]Interval, e.Tree.Height())
	for level := 0; level < e.Tree.Height(); level++ {
		real := ancestorIntervals(leafReal, leafLevel, level)
		e.working[level] = workingIntervals(real)[e.Peer.Rank()]
	}
	e.log.Debug("prepared, %d working intervals across %d ranks", len(e.working), e.Peer.NumPeers())
	return nil
}

func (e *Distributed) Run(ctx context.Context) error {
	if err := e.lifecycle.start(); err != nil {
		return err
	}
	defer e.lifecycle.complete()

	e.log.Debug("bottom pass")
	if err := e.bottomPass(); err != nil {
		return err
	}
	e.log.Debug("upward pass")
	if err := e.upwardPass(); err != nil {
		return err
	}
	e.log.Debug("transfer pass")
	if err := e.transferPass(ctx); err != nil {
		e.log.Error("transfer pass failed: %v", err)
		return err
	}
	e.log.Debug("downward pass")
	if err := e.downwardPass(ctx); err != nil {
		e.log.Error("downward pass failed: %v", err)
		return err
	}
	e.log.Debug("direct pass")
	if err := e.directPass(ctx); err != nil {
		e.log.Error("direct pass failed: %v", err)
		return err
	}
	e.log.Info("run complete: %d P2M %d M2M %d M2L %d L2L %d P2P %d L2P", e.Stats.P2MCalls, e.Stats.M2MCalls, e.Stats.M2LCalls, e.Stats.L2LCalls, e.Stats.P2PCalls, e.Stats.L2PCalls)
	return nil
}

// owns reports whether the given cell falls in this rank's working
// interval at level.
func (e *Distributed) owns(level int, m uint64) bool {
	return e.working[level].Contains(m)
}

func (e *Distributed) bottomPass() error {
	level := e.Tree.Height() - 1
	e.Tree.ForEachCellWithLevel(level, func(c *grouped.Cell) {
		if !c.IsLeaf || !e.owns(level, c.Morton) {
			return
		}
		ce := cellExpansion(c)
		e.Kernel.P2M(ce, c.Sources)
		storeExpansion(c, ce)
		e.Stats.P2MCalls++
	})
	return nil
}

func (e *Distributed) upwardPass() error {
	for level := e.Tree.Height() - 2; level >= 0; level-- {
		childLevel := level + 1
		e.Tree.ForEachCellWithLevel(level, func(c *grouped.Cell) {
			if !e.owns(level, c.Morton) {
				return
			}
			var children [8]*kernel.CellExpansion
			for k := 0; k < 8; k++ {
				_, cell := e.Tree.Find(childLevel, c.Morton<<3|uint64(k))
				if cell != nil {
					children[k] = cellExpansion(cell)
				}
			}
			ce := cellExpansion(c)
			e.Kernel.M2M(ce, children, uint8(level))
			storeExpansion(c, ce)
			e.Stats.M2MCalls++
		})
	}
	return nil
}

// exchangeGhosts runs one all-to-all ghost round at level: every rank
// sends the owning rank of each remote index it needs a request (encoded
// as a zero-cell GhostCell naming only the Morton index), then answers
// whatever requests arrive for cells it owns, then collects replies until
// it has heard from every other rank once. This two-phase shape (ask,
// then answer, then collect) is what keeps ranks from deadlocking on
// each other's sends without needing a separate request/response tag.
func (e *Distributed) exchangeGhosts(ctx context.Context, tag Tag, level int, wanted map[int][]uint64) (map[uint64]GhostCell, error) {
	result := map[uint64]GhostCell{}
	if len(wanted) == 0 {
		return result, nil
	}
	e.log.Debug("ghost round: tag=%v level=%d requesting from %d peers", tag, level, len(wanted))

	for to, mortons := range wanted {
		if to == e.Peer.Rank() {
			continue
		}
		cells := make([]GhostCell, len(mortons))
		for i, m := range mortons {
			cells[i] = GhostCell{Morton: m, Level: level}
		}
		if err := e.Peer.Send(ctx, Message{From: e.Peer.Rank(), To: to, Tag: tag, Level: level, Cells: cells}); err != nil {
			e.log.Error("ghost request to peer %d failed: %v", to, err)
			return nil, err
		}
	}

	pending := 0
	for to := range wanted {
		if to != e.Peer.Rank() {
			pending++
		}
	}
	answered := map[int]bool{}
	for pending > 0 {
		msg, err := e.Peer.Recv(ctx)
		if err != nil {
			e.log.Error("ghost recv failed: %v", err)
			return nil, err
		}
		if msg.Tag != tag || msg.Level != level {
			continue
		}
		if len(msg.Cells) > 0 && msg.Cells[0].Multipole == nil && msg.Cells[0].Local == nil && msg.Cells[0].Sources == nil {
			// request: answer with this rank's own cell state.
			reply := make([]GhostCell, 0, len(msg.Cells))
			for _, req := range msg.Cells {
				_, cell := e.Tree.Find(level, req.Morton)
				if cell == nil {
					continue
				}
				reply = append(reply, GhostCell{Morton: cell.Morton, Level: level, Multipole: cell.Multipole, Local: cell.Local, Sources: cell.Sources})
			}
			if err := e.Peer.Send(ctx, Message{From: e.Peer.Rank(), To: msg.From, Tag: tag, Level: level, Cells: reply}); err != nil {
				e.log.Error("ghost reply to peer %d failed: %v", msg.From, err)
				return nil, err
			}
			continue
		}
		for _, c := range msg.Cells {
			result[c.Morton] = c
		}
		if !answered[msg.From] {
			answered[msg.From] = true
			pending--
		}
	}
	return result, nil
}

// ownerOf returns which rank's working interval a level/Morton pair falls
// into, by scanning the working intervals every rank computed identically
// from the same partition — no coordination round needed to learn it.
func (e *Distributed) ownerOf(level int, m uint64, leafLevel int, leafReal []Interval) int {
	real := ancestorIntervals(leafReal, leafLevel, level)
	w := workingIntervals(real)
	for p, iv := range w {
		if iv.Contains(m) {
			return p
		}
	}
	return e.Peer.Rank()
}

func (e *Distributed) transferPass(ctx context.Context) error {
	for level := 2; level < e.Tree.Height(); level++ {
		wanted := map[int][]uint64{}
		var jobs []struct {
			c   *grouped.Cell
			far []neighbor.Far
		}
		e.Tree.ForEachCellWithLevel(level, func(c *grouped.Cell) {
			if !e.owns(level, c.Morton) {
				return
			}
			far := neighbor.InteractionList(morton.Decode(c.Morton), uint8(level))
			jobs = append(jobs, struct {
				c   *grouped.Cell
				far []neighbor.Far
			}{c, far})
			for _, f := range far {
				if !e.owns(level, f.Morton) {
					if _, cell := e.Tree.Find(level, f.Morton); cell != nil {
						owner := ownerByRecompute(e, level, f.Morton)
						wanted[owner] = append(wanted[owner], f.Morton)
					}
				}
			}
		})

		ghosts, err := e.exchangeGhosts(ctx, TagTransfer, level, wanted)
		if err != nil {
			return err
		}

		for _, job := range jobs {
			sources := make([]kernel.Source, 0, len(job.far))
			for _, f := range job.far {
				if e.owns(level, f.Morton) {
					_, cell := e.Tree.Find(level, f.Morton)
					if cell == nil {
						continue
					}
					sources = append(sources, kernel.Source{Cell: cellExpansion(cell), Slot: f.Slot})
					continue
				}
				if g, ok := ghosts[f.Morton]; ok {
					sources = append(sources, kernel.Source{Cell: &kernel.CellExpansion{Multipole: g.Multipole, Local: g.Local}, Slot: f.Slot})
				}
			}
			if len(sources) == 0 {
				continue
			}
			ce := cellExpansion(job.c)
			e.Kernel.M2L(ce, sources, uint8(level))
			storeExpansion(job.c, ce)
			e.Stats.M2LCalls++
		}
	}
	return nil
}

// ownerByRecompute answers "which rank owns this cell" by rebuilding the
// full per-rank working-interval table from the same leaf partition every
// rank derives identically, so ownership of a remote cell never needs a
// round trip to discover.
func ownerByRecompute(e *Distributed, level int, m uint64) int {
	leafLevel := e.Tree.Height() - 1
	var leafMortons []uint64
	e.Tree.ForEachLeaf(func(c *grouped.Cell) { leafMortons = append(leafMortons, c.Morton) })
	sort.Slice(leafMortons, func(i, j int) bool { return leafMortons[i] < leafMortons[j] })
	leafReal := partitionIntervals(leafMortons, e.Peer.NumPeers())
	real := ancestorIntervals(leafReal, leafLevel, level)
	w := workingIntervals(real)
	for p, iv := range w {
		if iv.Contains(m) {
			return p
		}
	}
	return 0
}

func (e *Distributed) downwardPass(ctx context.Context) error {
	for level := 1; level < e.Tree.Height()-1; level++ {
		childLevel := level + 1
		wanted := map[int][]uint64{}
		e.Tree.ForEachCellWithLevel(childLevel, func(c *grouped.Cell) {
			if !e.owns(childLevel, c.Morton) {
				return
			}
			parentMorton := morton.Parent(c.Morton)
			if !e.owns(level, parentMorton) {
				wanted[ownerByRecompute(e, level, parentMorton)] = append(wanted[ownerByRecompute(e, level, parentMorton)], parentMorton)
			}
		})
		ghosts, err := e.exchangeGhosts(ctx, TagDownward, level, wanted)
		if err != nil {
			return err
		}

		e.Tree.ForEachCellWithLevel(level, func(c *grouped.Cell) {
			if !e.owns(level, c.Morton) {
				return
			}
			var children [8]*kernel.CellExpansion
			for k := 0; k < 8; k++ {
				_, cell := e.Tree.Find(childLevel, c.Morton<<3|uint64(k))
				if cell != nil {
					children[k] = cellExpansion(cell)
				}
			}
			ce := cellExpansion(c)
			e.Kernel.L2L(ce, children, uint8(level))
			storeExpansion(c, ce)
			for k := 0; k < 8; k++ {
				_, cell := e.Tree.Find(childLevel, c.Morton<<3|uint64(k))
				if cell != nil && children[k] != nil {
					storeExpansion(cell, children[k])
				}
			}
			e.Stats.L2LCalls++
		})

		for m, g := range ghosts {
			_, cell := e.Tree.Find(level, m)
			if cell != nil {
				cell.Local = g.Local
			}
		}
	}
	return nil
}

func (e *Distributed) directPass(ctx context.Context) error {
	level := e.Tree.Height() - 1
	wanted := map[int][]uint64{}
	var jobs []struct {
		c    *grouped.Cell
		near []neighbor.Near
	}
	e.Tree.ForEachCellWithLevel(level, func(c *grouped.Cell) {
		if !c.IsLeaf || !e.owns(level, c.Morton) {
			return
		}
		near := neighbor.DirectNeighbors(morton.Decode(c.Morton), uint8(level))
		jobs = append(jobs, struct {
			c    *grouped.Cell
			near []neighbor.Near
		}{c, near})
		for _, n := range near {
			if !e.owns(level, n.Morton) {
				if _, cell := e.Tree.Find(level, n.Morton); cell != nil {
					owner := ownerByRecompute(e, level, n.Morton)
					wanted[owner] = append(wanted[owner], n.Morton)
				}
			}
		}
	})

	ghosts, err := e.exchangeGhosts(ctx, TagDirect, level, wanted)
	if err != nil {
		return err
	}

	supportsRemote := e.Kernel.SupportsP2PRemote()
	for _, job := range jobs {
		var neighbors []*particle.Container
		var slots []int
		for _, n := range job.near {
			if e.owns(level, n.Morton) {
				_, cell := e.Tree.Find(level, n.Morton)
				if cell == nil {
					continue
				}
				neighbors = append(neighbors, cell.Sources)
				slots = append(slots, n.Slot)
				continue
			}
			if !supportsRemote {
				continue
			}
			if g, ok := ghosts[n.Morton]; ok && g.Sources != nil {
				neighbors = append(neighbors, g.Sources)
				slots = append(slots, n.Slot)
			}
		}
		e.Kernel.P2P(job.c.Targets, job.c.Sources, neighbors, slots)
		e.Stats.P2PCalls++
		e.Stats.Interactions += len(neighbors)
		e.Kernel.L2P(cellExpansion(job.c), job.c.Targets)
		e.Stats.L2PCalls++
	}
	return nil
}

var _ Engine = (*Distributed)(nil)
