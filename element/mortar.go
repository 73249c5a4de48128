package element

import (
	"gonum.org/v1/gonum/mat"
)

// MortarOperators holds the fixed interpolation and restriction matrices
// used at non-conforming faces, where one large face borders two half-size
// small faces (lower covers [-1,0] of the large face, upper covers [0,1]).
//
// Forward matrices interpolate the large-face trace to the small-face node
// sets. Reverse matrices are the L2 adjoints built from the exact mass
// matrix, so that ReverseLower·ForwardLower + ReverseUpper·ForwardUpper = I
// holds to machine precision (the conforming-limit identity).
type MortarOperators struct {
	ForwardLower *mat.Dense // [Np × Np] large trace → lower child nodes
	ForwardUpper *mat.Dense // [Np × Np] large trace → upper child nodes
	ReverseLower *mat.Dense // [Np × Np] lower child flux → large face
	ReverseUpper *mat.Dense // [Np × Np] upper child flux → large face
}

// NewMortarOperators derives the mortar matrices from the reference element.
func NewMortarOperators(el *LineLGL) (mo MortarOperators) {
	var (
		Np = el.Props.Np
	)
	// Map the child node sets into large-face coordinates.
	rLower := make([]float64, Np)
	rUpper := make([]float64, Np)
	for i, r := range el.R {
		rLower[i] = (r - 1.) / 2.
		rUpper[i] = (r + 1.) / 2.
	}
	mo.ForwardLower = el.InterpolationMatrix(rLower)
	mo.ForwardUpper = el.InterpolationMatrix(rUpper)

	// reverse_c = 1/2 Minv forward_c^T M. The half accounts for the child
	// face covering half of the large face.
	mo.ReverseLower = reverseFromForward(el, mo.ForwardLower)
	mo.ReverseUpper = reverseFromForward(el, mo.ForwardUpper)
	return
}

func reverseFromForward(el *LineLGL, forward *mat.Dense) *mat.Dense {
	var (
		Np  = el.Props.Np
		tmp = mat.NewDense(Np, Np, nil)
		rev = mat.NewDense(Np, Np, nil)
	)
	tmp.Mul(forward.T(), el.Ops.M)
	rev.Mul(el.Ops.Minv, tmp)
	rev.Scale(0.5, rev)
	return rev
}
