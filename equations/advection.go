package equations

import (
	"fmt"
	"math"
)

// LinearAdvection is scalar advection u_t + a·grad(u) = 0 in one or two
// dimensions. The workhorse system for pipeline verification: smooth,
// linear, and exactly conservative.
type LinearAdvection struct {
	Dims  int
	Speed [2]float64
}

func NewLinearAdvection1D(a float64) *LinearAdvection {
	return &LinearAdvection{Dims: 1, Speed: [2]float64{a, 0}}
}

func NewLinearAdvection2D(ax, ay float64) *LinearAdvection {
	return &LinearAdvection{Dims: 2, Speed: [2]float64{ax, ay}}
}

func (eq *LinearAdvection) Name() string {
	return fmt.Sprintf("LinearAdvection%dD", eq.Dims)
}

func (eq *LinearAdvection) NumVars() int { return 1 }
func (eq *LinearAdvection) NumDims() int { return eq.Dims }

func (eq *LinearAdvection) Flux(f, u []float64, orientation int) {
	f[0] = eq.Speed[orientation] * u[0]
}

func (eq *LinearAdvection) MaxAbsSpeed(uL, uR []float64, orientation int) float64 {
	return math.Abs(eq.Speed[orientation])
}

func (eq *LinearAdvection) DeviceSource() string {
	return fmt.Sprintf(`
#define ADV_AX %.15e
#define ADV_AY %.15e

void phys_flux(const real_t* u, const int orient, real_t* f) {
	f[0] = (orient == 0 ? ADV_AX : ADV_AY) * u[0];
}

real_t max_abs_speed(const real_t* uL, const real_t* uR, const int orient) {
	const real_t a = (orient == 0 ? ADV_AX : ADV_AY);
	return a < 0 ? -a : a;
}
`, eq.Speed[0], eq.Speed[1])
}
