// Package kernel defines the FMM operator contract.
// The core never inspects expansion internals: a Kernel owns opaque
// multipole/local expansion buffers and is the sole thing that knows how
// to read and write them.
package kernel

import (
	"github.com/scalfmm-go/fmm/internal/particle"
)

// CellExpansion is the opaque per-cell state a Kernel owns: a multipole
// blob and a local blob. The engine never reads these
// fields; it only carries the pointer between operator calls.
type CellExpansion struct {
	Multipole any
	Local     any
}

// Source describes one interaction-list neighbour cell as seen by M2L:
// its expansion plus the relative-position slot used for symmetry
// bookkeeping. P2P takes neighbour particle containers and slots
// directly, not Sources.
type Source struct {
	Cell *CellExpansion
	Slot int
}

// Kernel provides the six FMM operators plus near-field direct
// interaction. Implementations are reentrant: the engine clones one
// instance per worker before execution via Clone.
type Kernel interface {
	// Init allocates/prepares per-worker workspace. Called once per clone.
	Init() error

	// Clone returns an independent instance sharing no mutable state,
	// the "clone per worker thread" contract every engine relies on.
	Clone() Kernel

	// P2M computes a leaf cell's initial multipole from its sources.
	P2M(leaf *CellExpansion, sources *particle.Container)

	// M2M aggregates up to 8 child multipoles (nil entries are absent
	// children) into the parent's multipole, at tree level.
	M2M(parent *CellExpansion, children [8]*CellExpansion, level uint8)

	// M2L accumulates translated multipoles from the interaction list into
	// target's local expansion, at tree level.
	M2L(target *CellExpansion, sources []Source, level uint8)

	// L2L propagates a parent's local expansion down into up to 8
	// children (nil entries are absent children), at tree level.
	L2L(parent *CellExpansion, children [8]*CellExpansion, level uint8)

	// L2P evaluates a leaf's local expansion at each target particle,
	// writing into the container's force/potential accumulators.
	L2P(leaf *CellExpansion, targets *particle.Container)

	// P2P computes direct near-field interaction between target and its
	// own source container plus up to 26 neighbouring source containers.
	// neighbors[i] corresponds to neighborSlots[i] (see DirectInteraction).
	P2P(targets *particle.Container, ownSources *particle.Container, neighbors []*particle.Container, neighborSlots []int)

	// SupportsP2PRemote reports whether P2P can be evaluated against a
	// remote (received, not locally owned) source container without
	// mutating it — required by the distributed engine's ghost exchange.
	SupportsP2PRemote() bool
}

// MutualP2PKernel is an optional capability: a kernel that can compute a
// near-field pair once and write both sides (Newton's third law), the
// "mutual form" used to avoid redundant computation
// under the 27-colour scheme and the task engine's out-of-block pairing.
// Engines type-assert for it and fall back to two unilateral Kernel.P2P
// calls when a kernel does not implement it.
type MutualP2PKernel interface {
	Kernel

	// P2PMutual computes the interaction between two distinct leaves
	// once, reading each side's sources and writing each side's targets.
	// aTargets/aSources and bTargets/bSources may alias (the common
	// non-TSM case where every particle is both), which implementations
	// must tolerate.
	P2PMutual(aTargets, aSources, bTargets, bSources *particle.Container)

	// P2PSelf computes every unordered pair of sources within one leaf
	// once, writing the shared targets container.
	P2PSelf(targets, sources *particle.Container)
}

// DirectInteraction is the pluggable, SIMD-specialisable near-field
// routine a Kernel's P2P ultimately delegates to; kept as a narrow
// interface so concrete kernels can swap in vectorised implementations
// without the engine knowing.
type DirectInteraction interface {
	Evaluate(targets, sources *particle.Container, mutual bool)
}
