package direct

import (
	"encoding/gob"

	"github.com/scalfmm-go/fmm/internal/kernel"
	"github.com/scalfmm-go/fmm/internal/particle"
)

// Multipole/Local expansions cross the wire inside GhostCell's any-typed
// fields during a distributed run; gob needs the concrete type registered
// once, from the package that owns it, to decode into an interface.
func init() {
	gob.Register([]entry{})
}

// entry is one source particle as kept alive inside a multipole or local
// expansion: just enough to evaluate Formula exactly later, nothing
// approximated or truncated.
type entry struct {
	X, Y, Z float64
	Value   []float64
}

// Kernel is the exact reference operator set: instead of truncating the
// far field to a finite set of moments, it carries every contributing
// source particle through P2M/M2M/M2L/L2L verbatim and evaluates Formula
// pairwise at L2P/P2P time. Slower than any real expansion, but exact —
// useful as the ground truth `fmmctl verify` and the test suite compare
// against.
type Kernel struct {
	Formula Formula
}

// New returns a Kernel using the given pairwise formula.
func New(f Formula) *Kernel {
	return &Kernel{Formula: f}
}

func (k *Kernel) Init() error { return nil }

func (k *Kernel) Clone() kernel.Kernel {
	return &Kernel{Formula: k.Formula}
}

func (k *Kernel) P2M(leaf *kernel.CellExpansion, sources *particle.Container) {
	list := make([]entry, 0, sources.Len())
	for i := 0; i < sources.Len(); i++ {
		p := sources.At(i)
		list = append(list, entry{X: p.X, Y: p.Y, Z: p.Z, Value: p.Value})
	}
	leaf.Multipole = list
}

func (k *Kernel) M2M(parent *kernel.CellExpansion, children [8]*kernel.CellExpansion, level uint8) {
	var total int
	for _, c := range children {
		if c == nil {
			continue
		}
		total += len(asEntries(c.Multipole))
	}
	merged := make([]entry, 0, total)
	for _, c := range children {
		if c == nil {
			continue
		}
		merged = append(merged, asEntries(c.Multipole)...)
	}
	parent.Multipole = merged
}

func (k *Kernel) M2L(target *kernel.CellExpansion, sources []kernel.Source, level uint8) {
	local := asEntries(target.Local)
	for _, s := range sources {
		local = append(local, asEntries(s.Cell.Multipole)...)
	}
	target.Local = local
}

func (k *Kernel) L2L(parent *kernel.CellExpansion, children [8]*kernel.CellExpansion, level uint8) {
	parentLocal := asEntries(parent.Local)
	for _, c := range children {
		if c == nil {
			continue
		}
		c.Local = append(asEntries(c.Local), parentLocal...)
	}
}

func (k *Kernel) L2P(leaf *kernel.CellExpansion, targets *particle.Container) {
	local := asEntries(leaf.Local)
	for i := 0; i < targets.Len(); i++ {
		t := targets.At(i)
		var fx, fy, fz, pot float64
		for _, s := range local {
			dfx, dfy, dfz, dpot := k.Formula.Pairwise(t.X, t.Y, t.Z, t.Value, s.X, s.Y, s.Z, s.Value)
			fx += dfx
			fy += dfy
			fz += dfz
			pot += dpot
		}
		targets.FX[i] += fx
		targets.FY[i] += fy
		targets.FZ[i] += fz
		targets.Potential[i] += pot
	}
}

func (k *Kernel) P2P(targets, ownSources *particle.Container, neighbors []*particle.Container, neighborSlots []int) {
	k.evaluate(targets, ownSources, true)
	for _, n := range neighbors {
		k.evaluate(targets, n, false)
	}
}

// evaluate accumulates every source's contribution into every target.
// skipSelf guards against a particle interacting with itself when targets
// and sources are the same container.
func (k *Kernel) evaluate(targets, sources *particle.Container, skipSelf bool) {
	for i := 0; i < targets.Len(); i++ {
		t := targets.At(i)
		var fx, fy, fz, pot float64
		for j := 0; j < sources.Len(); j++ {
			if skipSelf && i == j {
				continue
			}
			s := sources.At(j)
			dfx, dfy, dfz, dpot := k.Formula.Pairwise(t.X, t.Y, t.Z, t.Value, s.X, s.Y, s.Z, s.Value)
			fx += dfx
			fy += dfy
			fz += dfz
			pot += dpot
		}
		targets.FX[i] += fx
		targets.FY[i] += fy
		targets.FZ[i] += fz
		targets.Potential[i] += pot
	}
}

func (k *Kernel) SupportsP2PRemote() bool { return true }

// P2PMutual evaluates every aSources-bSources pair once, accumulating
// onto aTargets and bTargets respectively (Newton's third law: the two
// evaluations of Formula.Pairwise share the same separation vector).
func (k *Kernel) P2PMutual(aTargets, aSources, bTargets, bSources *particle.Container) {
	for i := 0; i < aSources.Len(); i++ {
		sa := aSources.At(i)
		for j := 0; j < bSources.Len(); j++ {
			sb := bSources.At(j)

			if aTargets.Len() == aSources.Len() {
				ta := aTargets.At(i)
				fx, fy, fz, pot := k.Formula.Pairwise(ta.X, ta.Y, ta.Z, ta.Value, sb.X, sb.Y, sb.Z, sb.Value)
				aTargets.FX[i] += fx
				aTargets.FY[i] += fy
				aTargets.FZ[i] += fz
				aTargets.Potential[i] += pot
			}
			if bTargets.Len() == bSources.Len() {
				tb := bTargets.At(j)
				fx, fy, fz, pot := k.Formula.Pairwise(tb.X, tb.Y, tb.Z, tb.Value, sa.X, sa.Y, sa.Z, sa.Value)
				bTargets.FX[j] += fx
				bTargets.FY[j] += fy
				bTargets.FZ[j] += fz
				bTargets.Potential[j] += pot
			}
		}
	}
}

// P2PSelf evaluates every unordered pair of sources within one leaf
// once, accumulating onto the shared targets container (targets and
// sources are co-indexed: particle i's target slot corresponds to
// sources.At(i)).
func (k *Kernel) P2PSelf(targets, sources *particle.Container) {
	for i := 0; i < sources.Len(); i++ {
		si := sources.At(i)
		for j := i + 1; j < sources.Len(); j++ {
			sj := sources.At(j)

			ti := targets.At(i)
			fx, fy, fz, pot := k.Formula.Pairwise(ti.X, ti.Y, ti.Z, ti.Value, sj.X, sj.Y, sj.Z, sj.Value)
			targets.FX[i] += fx
			targets.FY[i] += fy
			targets.FZ[i] += fz
			targets.Potential[i] += pot

			tj := targets.At(j)
			fx2, fy2, fz2, pot2 := k.Formula.Pairwise(tj.X, tj.Y, tj.Z, tj.Value, si.X, si.Y, si.Z, si.Value)
			targets.FX[j] += fx2
			targets.FY[j] += fy2
			targets.FZ[j] += fz2
			targets.Potential[j] += pot2
		}
	}
}

func asEntries(v any) []entry {
	if v == nil {
		return nil
	}
	return v.([]entry)
}

var (
	_ kernel.Kernel          = (*Kernel)(nil)
	_ kernel.MutualP2PKernel = (*Kernel)(nil)
)
