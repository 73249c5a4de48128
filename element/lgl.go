package element

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// JacobiGQ computes the Gauss quadrature nodes and weights for the Jacobi
// polynomial family (alpha, beta) of order N via the Golub-Welsch
// eigenvalue method.
func JacobiGQ(alpha, beta float64, N int) (x, w []float64) {
	if N == 0 {
		x = []float64{-(alpha - beta) / (alpha + beta + 2.)}
		w = []float64{2.}
		return
	}

	h1 := make([]float64, N+1)
	for i := 0; i < N+1; i++ {
		h1[i] = 2*float64(i) + alpha + beta
	}

	// main diagonal of the symmetric tridiagonal Jacobi matrix
	d0 := make([]float64, N+1)
	fac := -.5 * (alpha*alpha - beta*beta)
	for i := 0; i < N+1; i++ {
		val := h1[i]
		d0[i] = fac / (val * (val + 2.))
	}
	eps := 1.e-16
	if alpha+beta < 10*eps {
		d0[0] = 0.
	}

	// first superdiagonal
	d1 := make([]float64, N)
	for i := 0; i < N; i++ {
		ip1 := float64(i + 1)
		val := h1[i]
		d1[i] = 2. / (val + 2.)
		d1[i] *= math.Sqrt(ip1 * (ip1 + alpha + beta) * (ip1 + alpha) * (ip1 + beta) / ((val + 1.) * (val + 3.)))
	}

	JJ := mat.NewSymDense(N+1, nil)
	for i := 0; i < N+1; i++ {
		JJ.SetSym(i, i, d0[i])
		if i < N {
			JJ.SetSym(i, i+1, d1[i])
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(JJ, true); !ok {
		panic("eigenvalue decomposition failed")
	}
	x = eig.Values(nil)

	VVr := mat.NewDense(N+1, N+1, nil)
	eig.VectorsTo(VVr)
	w = make([]float64, N+1)
	g0 := gamma0(alpha, beta)
	for i := 0; i < N+1; i++ {
		v := VVr.At(0, i)
		w[i] = v * v * g0
	}
	return
}

// JacobiGL computes the Legendre-Gauss-Lobatto nodes for order N,
// i.e. the endpoints -1, 1 plus the interior Gauss points of the
// (alpha+1, beta+1) family.
func JacobiGL(alpha, beta float64, N int) (x []float64) {
	x = make([]float64, N+1)
	if N == 1 {
		x[0] = -1
		x[1] = 1
		return
	}
	xint, _ := JacobiGQ(alpha+1, beta+1, N-2)
	x[0] = -1
	x[N] = 1
	copy(x[1:N], xint)
	return
}

// LGLWeights computes the quadrature weights for the LGL nodes r,
// w_i = 2 / (N(N+1) P_N(r_i)^2).
func LGLWeights(r []float64) (w []float64) {
	var (
		N  = len(r) - 1
		fN = float64(N)
	)
	w = make([]float64, N+1)
	pN := JacobiP(r, 0, 0, N)
	// JacobiP is normalized; rescale to the standard Legendre polynomial
	scale := math.Sqrt(2. / (2.*fN + 1.))
	for i := range w {
		p := pN[i] * scale
		w[i] = 2. / (fN * (fN + 1.) * p * p)
	}
	return
}

// JacobiP evaluates the normalized Jacobi polynomial of order N at the
// points r using the standard three-term recurrence.
func JacobiP(r []float64, alpha, beta float64, N int) (p []float64) {
	var (
		Nc = len(r)
	)
	rg := 1. / math.Sqrt(gamma0(alpha, beta))
	if N == 0 {
		p = make([]float64, Nc)
		for i := range p {
			p[i] = rg
		}
		return
	}
	Np1 := N + 1
	PL := mat.NewDense(Np1, Nc, nil)
	for i := 0; i < Nc; i++ {
		PL.Set(0, i, rg)
	}

	ab := alpha + beta
	rg1 := 1. / math.Sqrt(gamma1(alpha, beta))
	for i := 0; i < Nc; i++ {
		PL.Set(1, i, rg1*((ab+2.0)*r[i]/2.0+(alpha-beta)/2.0))
	}
	if N == 1 {
		p = PL.RawRowView(1)
		return
	}

	a1 := alpha + 1.
	b1 := beta + 1.
	ab1 := ab + 1.
	aold := 2.0 * math.Sqrt(a1*b1/(ab+3.0)) / (ab + 2.0)
	for i := 0; i < N-1; i++ {
		ip1 := float64(i + 1)
		ip2 := ip1 + 1
		h1 := 2.0*ip1 + ab
		anew := 2.0 / (h1 + 2.0) * math.Sqrt(ip2*(ip1+ab1)*(ip1+a1)*(ip1+b1)/(h1+1.0)/(h1+3.0))
		bnew := -(alpha*alpha - beta*beta) / h1 / (h1 + 2.0)
		xi := PL.RawRowView(i)
		xip1 := PL.RawRowView(i + 1)
		xrow := make([]float64, Nc)
		for j := range xi {
			xrow[j] = (-aold*xi[j] + (r[j]-bnew)*xip1[j]) / anew
		}
		PL.SetRow(i+2, xrow)
		aold = anew
	}
	p = PL.RawRowView(N)
	return
}

// GradJacobiP evaluates the derivative of the normalized Jacobi polynomial.
func GradJacobiP(r []float64, alpha, beta float64, N int) (p []float64) {
	if N == 0 {
		p = make([]float64, len(r))
		return
	}
	p = append([]float64{}, JacobiP(r, alpha+1, beta+1, N-1)...)
	fN := float64(N)
	fac := math.Sqrt(fN * (fN + alpha + beta + 1))
	for i, val := range p {
		p[i] = val * fac
	}
	return
}

// Vandermonde1D builds the generalized Vandermonde matrix V_ij = P_j(r_i).
func Vandermonde1D(N int, r []float64) (V *mat.Dense) {
	V = mat.NewDense(len(r), N+1, nil)
	for j := 0; j < N+1; j++ {
		col := JacobiP(r, 0, 0, j)
		for i := range col {
			V.Set(i, j, col[i])
		}
	}
	return
}

// GradVandermonde1D builds Vr_ij = P'_j(r_i).
func GradVandermonde1D(N int, r []float64) (Vr *mat.Dense) {
	Vr = mat.NewDense(len(r), N+1, nil)
	for j := 0; j < N+1; j++ {
		col := GradJacobiP(r, 0, 0, j)
		for i := range col {
			Vr.Set(i, j, col[i])
		}
	}
	return
}

func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1.
	a1 := alpha + 1.
	b1 := beta + 1.
	return math.Gamma(a1) * math.Gamma(b1) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

func gamma1(alpha, beta float64) float64 {
	return (alpha + 1.) * (beta + 1.) / (alpha + beta + 3.) * gamma0(alpha, beta)
}
