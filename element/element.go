package element

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Properties contains metadata describing the reference element
type Properties struct {
	Name      string // Full descriptive name (e.g., "LGL Line Order 3")
	ShortName string // Abbreviated name (e.g., "Line3")
	Order     int    // Polynomial order
	Np        int    // Number of nodes along one direction (Order+1)
	NFp       int    // Number of nodes per face in 1D (always 1)
	NFaces    int    // Faces per element in 1D (always 2)
}

// Operators contains the precomputed reference-space matrices the
// residual pipeline consumes. All matrices are immutable once built.
type Operators struct {
	V    *mat.Dense // Vandermonde: modal to nodal [Np × Np]
	Vinv *mat.Dense // nodal to modal [Np × Np]
	M    *mat.Dense // exact mass matrix (V V^T)^-1 [Np × Np]
	Minv *mat.Dense // inverse mass matrix V V^T [Np × Np]
	D    *mat.Dense // nodal differentiation matrix [Np × Np]
	Dhat *mat.Dense // weak-form derivative: Dhat[i,k] = -D[k,i] w[k]/w[i]
	Ds   *mat.Dense // split-form derivative: 2D with boundary correction
}

// LineLGL is the one-dimensional Legendre-Gauss-Lobatto reference element
// on [-1, 1]. Tensor products of it define quadrilateral (and, eventually,
// hexahedral) elements; all face traces live on its node set.
type LineLGL struct {
	Props  Properties
	R      []float64 // LGL node coordinates, length Np
	W      []float64 // LGL quadrature weights, length Np
	Ops    Operators
	Mortar MortarOperators
}

// NewLineLGL constructs the reference element of polynomial order N.
func NewLineLGL(N int) (el *LineLGL) {
	if N < 1 {
		panic(fmt.Sprintf("polynomial order must be at least 1, got %d", N))
	}
	var (
		Np = N + 1
	)
	el = &LineLGL{
		Props: Properties{
			Name:      fmt.Sprintf("LGL Line Order %d", N),
			ShortName: fmt.Sprintf("Line%d", N),
			Order:     N,
			Np:        Np,
			NFp:       1,
			NFaces:    2,
		},
	}
	el.R = JacobiGL(0, 0, N)
	el.W = LGLWeights(el.R)

	V := Vandermonde1D(N, el.R)
	Vr := GradVandermonde1D(N, el.R)

	Vinv := mat.NewDense(Np, Np, nil)
	if err := Vinv.Inverse(V); err != nil {
		panic(fmt.Sprintf("Vandermonde matrix is singular: %v", err))
	}

	Minv := mat.NewDense(Np, Np, nil)
	Minv.Mul(V, V.T())
	M := mat.NewDense(Np, Np, nil)
	if err := M.Inverse(Minv); err != nil {
		panic(fmt.Sprintf("mass matrix inversion failed: %v", err))
	}

	D := mat.NewDense(Np, Np, nil)
	D.Mul(Vr, Vinv)

	Dhat := mat.NewDense(Np, Np, nil)
	for i := 0; i < Np; i++ {
		for k := 0; k < Np; k++ {
			Dhat.Set(i, k, -D.At(k, i)*el.W[k]/el.W[i])
		}
	}

	// Split-form operator for flux-differencing volume integrals:
	// Ds = 2D - Minv B, which for LGL collocation is 2D with the
	// boundary entries corrected by ±1/w.
	Ds := mat.NewDense(Np, Np, nil)
	Ds.Scale(2, D)
	Ds.Set(0, 0, Ds.At(0, 0)+1./el.W[0])
	Ds.Set(Np-1, Np-1, Ds.At(Np-1, Np-1)-1./el.W[Np-1])

	el.Ops = Operators{
		V:    V,
		Vinv: Vinv,
		M:    M,
		Minv: Minv,
		D:    D,
		Dhat: Dhat,
		Ds:   Ds,
	}
	el.Mortar = NewMortarOperators(el)
	return
}

// LhatLeft and LhatRight are the boundary interpolation factors that lift
// a face flux value into the volume residual. With LGL collocation the
// boundary node coincides with the face, so only one entry survives.
func (el *LineLGL) LhatLeft() float64  { return 1. / el.W[0] }
func (el *LineLGL) LhatRight() float64 { return 1. / el.W[el.Props.Np-1] }

// InterpolationMatrix builds the matrix evaluating the nodal polynomial at
// arbitrary points rOut: I = V(rOut) Vinv.
func (el *LineLGL) InterpolationMatrix(rOut []float64) *mat.Dense {
	Vout := Vandermonde1D(el.Props.Order, rOut)
	I := mat.NewDense(len(rOut), el.Props.Np, nil)
	I.Mul(Vout, el.Ops.Vinv)
	return I
}
