// Package direct implements the exact reference kernel used by the test
// suite and `fmmctl verify`: a brute-force direct-summation verifier used
// to check the tree-based engines against a known-correct answer.
//
// Rather than approximating the far field with a truncated analytical
// expansion (Chebyshev/spherical-harmonics/Taylor/uniform — all
// explicitly out of scope for this module), DirectKernel keeps every
// contributing source particle in the multipole/local blobs themselves
// and defers the actual pairwise evaluation to L2P/P2P. Every particle is
// accounted for in exactly one of "near field" (P2P) or "some ancestor's
// interaction list" (M2L), which neighbour-list completeness guarantees
// covers every particle exactly once — so the result is the same as brute-force
// O(N²) summation up to floating-point rounding, letting the same kernel validate both physical
// correctness and the tree traversal itself.
package direct

import "math"

// Formula computes one source's contribution to one target.
type Formula interface {
	// Pairwise returns the force contribution (fx, fy, fz) and potential
	// contribution that source (at sx,sy,sz with value sval) exerts on
	// target (at tx,ty,tz with value tval).
	Pairwise(tx, ty, tz float64, tval []float64, sx, sy, sz float64, sval []float64) (fx, fy, fz, potential float64)
}

// InverseR is the classic electrostatic/gravitational 1/r kernel used in
// the common electrostatic/gravitational test case: potential(i) = Σ q_i·q_j / r_ij,
// force(i) = Σ q_i·q_j / r_ij² directed from target toward source
// (attractive, matching scenario S1's worked numbers).
type InverseR struct{}

func (InverseR) Pairwise(tx, ty, tz float64, tval []float64, sx, sy, sz float64, sval []float64) (fx, fy, fz, potential float64) {
	dx, dy, dz := sx-tx, sy-ty, sz-tz
	r2 := dx*dx + dy*dy + dz*dz
	if r2 == 0 {
		return 0, 0, 0, 0
	}
	r := math.Sqrt(r2)
	q := tval[0] * sval[0]
	potential = q / r
	mag := q / r2
	fx, fy, fz = mag*dx/r, mag*dy/r, mag*dz/r
	return
}

// Tensorial is the r_ij kernel used in scenario S6: it accumulates the
// source-value-weighted separation vector into the target's force slots
// (the "tensor field"), leaving potential at zero.
type Tensorial struct{}

func (Tensorial) Pairwise(tx, ty, tz float64, tval []float64, sx, sy, sz float64, sval []float64) (fx, fy, fz, potential float64) {
	dx, dy, dz := sx-tx, sy-ty, sz-tz
	w := sval[0]
	return w * dx, w * dy, w * dz, 0
}

// ByName resolves a formula by the config-level kernel name.
func ByName(name string) (Formula, bool) {
	switch name {
	case "inverse-r":
		return InverseR{}, true
	case "tensorial":
		return Tensorial{}, true
	default:
		return nil, false
	}
}
