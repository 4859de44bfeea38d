// Package particle implements the structure-of-arrays particle container
// and the source/role model used throughout the FMM pipeline.
package particle

// Role distinguishes source-only, target-only, and dual particles for the
// target-source model (TSM).
type Role uint8

const (
	RoleSource Role = iota
	RoleTarget
	RoleBoth
)

// IsSource reports whether a particle with this role contributes mass/
// charge to multipole expansions.
func (r Role) IsSource() bool { return r == RoleSource || r == RoleBoth }

// IsTarget reports whether a particle with this role accumulates forces
// and potential.
func (r Role) IsTarget() bool { return r == RoleTarget || r == RoleBoth }

// Particle is a single physical point as delivered by a ParticleSource:
// position, one or more scalar physical values (mass, charge, ...), and a
// role tag. Target accumulators live in Container, not here, since the
// container is what the kernel mutates in place.
type Particle struct {
	X, Y, Z float64
	Value   []float64
	Role    Role
}

// Container is the structure-of-arrays particle store:
// position arrays, scalar physical-value arrays, per-target accumulators,
// and an optional index array carrying each particle's original
// insertion rank.
type Container struct {
	X, Y, Z []float64
	Value   [][]float64 // Value[k][i] is the k-th scalar attribute of particle i
	FX, FY, FZ []float64
	Potential  []float64
	Index      []int // original insertion rank, nil until EnableIndex is called
}

// NewContainer returns an empty container ready to accept nValues scalar
// attributes per particle.
func NewContainer(nValues int) *Container {
	return &Container{Value: make([][]float64, nValues)}
}

// Len returns the number of particles currently stored.
func (c *Container) Len() int { return len(c.X) }

// EnableIndex allocates the parallel insertion-rank array, backfilling it
// for particles already present.
func (c *Container) EnableIndex() {
	if c.Index != nil {
		return
	}
	c.Index = make([]int, c.Len())
	for i := range c.Index {
		c.Index[i] = i
	}
}

// Push appends one particle, expanding every backing array by one slot.
// The returned index is the particle's position within the container.
func (c *Container) Push(p Particle) int {
	idx := c.Len()
	c.X = append(c.X, p.X)
	c.Y = append(c.Y, p.Y)
	c.Z = append(c.Z, p.Z)
	for k := range c.Value {
		var v float64
		if k < len(p.Value) {
			v = p.Value[k]
		}
		c.Value[k] = append(c.Value[k], v)
	}
	c.FX = append(c.FX, 0)
	c.FY = append(c.FY, 0)
	c.FZ = append(c.FZ, 0)
	c.Potential = append(c.Potential, 0)
	if c.Index != nil {
		c.Index = append(c.Index, idx)
	}
	return idx
}

// At reconstructs the Particle at index i (positions and values only; the
// accumulators are read separately since kernels write to them directly).
func (c *Container) At(i int) Particle {
	p := Particle{X: c.X[i], Y: c.Y[i], Z: c.Z[i]}
	if len(c.Value) > 0 {
		p.Value = make([]float64, len(c.Value))
		for k := range c.Value {
			p.Value[k] = c.Value[k][i]
		}
	}
	return p
}

// ResetAccumulators zeroes force and potential accumulators, used before
// re-running L2P/P2P on an already-built container.
func (c *Container) ResetAccumulators() {
	for i := range c.FX {
		c.FX[i], c.FY[i], c.FZ[i], c.Potential[i] = 0, 0, 0, 0
	}
}

// ParticleSource streams a particle dataset without requiring the whole
// set to be materialized in memory up front: a tree builder calls
// NumParticles once, then Fill once per index in any order.
type ParticleSource interface {
	BoxCentre() (float64, float64, float64)
	BoxWidth() float64
	NumParticles() int
	Fill(index int) Particle
}
