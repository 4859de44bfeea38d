package direct

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInverseRPairwise(t *testing.T) {
	fx, fy, fz, pot := InverseR{}.Pairwise(0, 0, 0, []float64{1}, 1, 0, 0, []float64{1})

	assert.InDelta(t, 1.0, pot, 1e-12)
	assert.InDelta(t, 1.0, fx, 1e-12) // force points from target toward source (attractive)
	assert.InDelta(t, 0.0, fy, 1e-12)
	assert.InDelta(t, 0.0, fz, 1e-12)
}

func TestInverseRCoincidentPointsIsZero(t *testing.T) {
	fx, fy, fz, pot := InverseR{}.Pairwise(1, 1, 1, []float64{1}, 1, 1, 1, []float64{1})
	assert.Equal(t, 0.0, fx)
	assert.Equal(t, 0.0, fy)
	assert.Equal(t, 0.0, fz)
	assert.Equal(t, 0.0, pot)
}

func TestInverseRDecaysWithDistance(t *testing.T) {
	_, _, _, potNear := InverseR{}.Pairwise(0, 0, 0, []float64{1}, 1, 0, 0, []float64{1})
	_, _, _, potFar := InverseR{}.Pairwise(0, 0, 0, []float64{1}, 2, 0, 0, []float64{1})
	assert.Greater(t, potNear, potFar)
	assert.True(t, math.Abs(potFar-0.5) < 1e-12)
}

func TestTensorialPairwise(t *testing.T) {
	fx, fy, fz, pot := Tensorial{}.Pairwise(0, 0, 0, nil, 2, 3, 4, []float64{2})

	assert.Equal(t, 4.0, fx)
	assert.Equal(t, 6.0, fy)
	assert.Equal(t, 8.0, fz)
	assert.Equal(t, 0.0, pot)
}

func TestByName(t *testing.T) {
	f, ok := ByName("inverse-r")
	assert.True(t, ok)
	assert.IsType(t, InverseR{}, f)

	f, ok = ByName("tensorial")
	assert.True(t, ok)
	assert.IsType(t, Tensorial{}, f)

	_, ok = ByName("nonexistent")
	assert.False(t, ok)
}
