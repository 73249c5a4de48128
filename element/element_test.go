package element

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLGLNodesAndWeights(t *testing.T) {
	// Order 1: endpoints with unit weights
	el := NewLineLGL(1)
	assert.InDeltaSlice(t, []float64{-1, 1}, el.R, 1e-14)
	assert.InDeltaSlice(t, []float64{1, 1}, el.W, 1e-14)

	// Order 2: classic {-1, 0, 1} with weights {1/3, 4/3, 1/3}
	el = NewLineLGL(2)
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, el.R, 1e-14)
	assert.InDeltaSlice(t, []float64{1. / 3., 4. / 3., 1. / 3.}, el.W, 1e-13)

	// Order 3: interior nodes at ±1/sqrt(5), weights {1/6, 5/6, 5/6, 1/6}
	el = NewLineLGL(3)
	s5 := 1. / math.Sqrt(5.)
	assert.InDeltaSlice(t, []float64{-1, -s5, s5, 1}, el.R, 1e-13)
	assert.InDeltaSlice(t, []float64{1. / 6., 5. / 6., 5. / 6., 1. / 6.}, el.W, 1e-13)

	// Weights sum to the reference interval length for a range of orders
	for N := 1; N <= 8; N++ {
		el = NewLineLGL(N)
		sum := 0.
		for _, w := range el.W {
			sum += w
		}
		assert.InDelta(t, 2., sum, 1e-12, "order %d", N)
	}
}

func TestDifferentiationMatrix(t *testing.T) {
	for N := 1; N <= 6; N++ {
		el := NewLineLGL(N)
		Np := el.Props.Np

		// Derivative of a constant is zero: rows of D sum to zero
		for i := 0; i < Np; i++ {
			sum := 0.
			for k := 0; k < Np; k++ {
				sum += el.Ops.D.At(i, k)
			}
			assert.InDelta(t, 0., sum, 1e-11)
		}

		// Exact derivative of r^N at the nodes
		u := make([]float64, Np)
		du := make([]float64, Np)
		for i, r := range el.R {
			u[i] = math.Pow(r, float64(N))
			du[i] = float64(N) * math.Pow(r, float64(N-1))
		}
		got := make([]float64, Np)
		for i := 0; i < Np; i++ {
			for k := 0; k < Np; k++ {
				got[i] += el.Ops.D.At(i, k) * u[k]
			}
		}
		assert.InDeltaSlice(t, du, got, 1e-10, "order %d", N)
	}
}

func TestWeakFormDerivativeTelescopes(t *testing.T) {
	// For a constant flux f the weak-form volume term must exactly cancel
	// the surface lift of f, node by node: sum_k Dhat[i,k] = (d_i0 - d_iN)/w_i.
	for N := 1; N <= 6; N++ {
		el := NewLineLGL(N)
		Np := el.Props.Np
		for i := 0; i < Np; i++ {
			sum := 0.
			for k := 0; k < Np; k++ {
				sum += el.Ops.Dhat.At(i, k)
			}
			want := 0.
			if i == 0 {
				want = el.LhatLeft()
			} else if i == Np-1 {
				want = -el.LhatRight()
			}
			assert.InDelta(t, want, sum, 1e-11, "order %d node %d", N, i)
		}
	}
}

func TestMortarConformingIdentity(t *testing.T) {
	// Restriction composed with interpolation must be the identity:
	// ReverseLower*ForwardLower + ReverseUpper*ForwardUpper = I.
	for N := 1; N <= 7; N++ {
		el := NewLineLGL(N)
		Np := el.Props.Np
		mo := el.Mortar

		acc := mat.NewDense(Np, Np, nil)
		tmp := mat.NewDense(Np, Np, nil)
		acc.Mul(mo.ReverseLower, mo.ForwardLower)
		tmp.Mul(mo.ReverseUpper, mo.ForwardUpper)
		acc.Add(acc, tmp)

		for i := 0; i < Np; i++ {
			for j := 0; j < Np; j++ {
				want := 0.
				if i == j {
					want = 1.
				}
				require.InDelta(t, want, acc.At(i, j), 1e-10,
					"order %d entry (%d,%d)", N, i, j)
			}
		}
	}
}

func TestMortarInterpolationExactness(t *testing.T) {
	// Forward interpolation reproduces polynomials up to order N exactly.
	N := 4
	el := NewLineLGL(N)
	poly := func(r float64) float64 { return 1 + r + 0.5*r*r - 0.25*r*r*r }

	u := make([]float64, el.Props.Np)
	for i, r := range el.R {
		u[i] = poly(r)
	}
	for i := 0; i < el.Props.Np; i++ {
		lower, upper := 0., 0.
		for k := 0; k < el.Props.Np; k++ {
			lower += el.Mortar.ForwardLower.At(i, k) * u[k]
			upper += el.Mortar.ForwardUpper.At(i, k) * u[k]
		}
		assert.InDelta(t, poly((el.R[i]-1.)/2.), lower, 1e-12)
		assert.InDelta(t, poly((el.R[i]+1.)/2.), upper, 1e-12)
	}
}

func TestNewLineLGLPanicsOnBadOrder(t *testing.T) {
	assert.Panics(t, func() { NewLineLGL(0) })
}
