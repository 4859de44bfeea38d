package particlesource

import (
	"math/rand"

	"github.com/scalfmm-go/fmm/internal/particle"
)

// Synthetic generates a reproducible uniform-random particle cloud in a
// cube box, for benchmark/bench-mode runs that aren't driven by an input
// file (the -nb flag with no -f).
type Synthetic struct {
	centre [3]float64
	width  float64
	n      int
	seed   int64
}

// NewSynthetic returns a generator for n particles in a cube of the
// given centre/width, deterministic for a given seed so repeated runs
// are directly comparable.
func NewSynthetic(centre [3]float64, width float64, n int, seed int64) *Synthetic {
	return &Synthetic{centre: centre, width: width, n: n, seed: seed}
}

func (s *Synthetic) BoxCentre() (float64, float64, float64) { return s.centre[0], s.centre[1], s.centre[2] }
func (s *Synthetic) BoxWidth() float64                       { return s.width }
func (s *Synthetic) NumParticles() int                       { return s.n }

// Fill derives particle index's position and value from a per-index
// random source, so calling Fill(i) twice (or out of order) always
// yields the same particle without needing to cache the whole set.
func (s *Synthetic) Fill(index int) particle.Particle {
	r := rand.New(rand.NewSource(s.seed + int64(index)))
	half := s.width / 2
	return particle.Particle{
		X:     s.centre[0] + (r.Float64()*2-1)*half,
		Y:     s.centre[1] + (r.Float64()*2-1)*half,
		Z:     s.centre[2] + (r.Float64()*2-1)*half,
		Value: []float64{r.Float64() + 0.1},
		Role:  particle.RoleBoth,
	}
}

var _ particle.ParticleSource = (*Synthetic)(nil)
