package equations

import (
	"fmt"
	"math"
)

// ShallowWater1D is the one-dimensional shallow water system with bottom
// topography, variables (h, hv, b):
//
//	h_t  + (hv)_x                     = 0
//	hv_t + (hv^2 + g h^2 / 2)_x + g h b_x = 0
//	b_t  = 0
//
// The g h b_x coupling is not the divergence of a single flux, so the
// system carries a non-conservative term: at an interface each side
// evaluates g * h_me * b_other, which differ whenever the topography
// jumps. Topography is taken elementwise constant, so the coupling acts
// only through these interface terms.
type ShallowWater1D struct {
	Gravity float64
}

func NewShallowWater1D(g float64) *ShallowWater1D {
	return &ShallowWater1D{Gravity: g}
}

func (eq *ShallowWater1D) Name() string { return "ShallowWater1D" }

func (eq *ShallowWater1D) NumVars() int { return 3 }
func (eq *ShallowWater1D) NumDims() int { return 1 }

func (eq *ShallowWater1D) Flux(f, u []float64, orientation int) {
	h, hv := u[0], u[1]
	v := hv / h
	f[0] = hv
	f[1] = hv*v + 0.5*eq.Gravity*h*h
	f[2] = 0 // topography does not evolve
}

func (eq *ShallowWater1D) MaxAbsSpeed(uL, uR []float64, orientation int) float64 {
	vL := uL[1] / uL[0]
	vR := uR[1] / uR[0]
	cL := math.Sqrt(eq.Gravity * uL[0])
	cR := math.Sqrt(eq.Gravity * uR[0])
	return math.Max(math.Abs(vL)+cL, math.Abs(vR)+cR)
}

// NonconservativeFlux is the topography coupling seen from the side holding
// uMe: (0, g h_me b_other, 0). The two sides of a jump receive different
// values, which is the required asymmetry of non-conservative terms.
func (eq *ShallowWater1D) NonconservativeFlux(f, uMe, uOther []float64, orientation int) {
	f[0] = 0
	f[1] = eq.Gravity * uMe[0] * uOther[2]
	f[2] = 0
}

func (eq *ShallowWater1D) DeviceSource() string {
	return fmt.Sprintf(`
#define SW_GRAVITY %.15e

void phys_flux(const real_t* u, const int orient, real_t* f) {
	const real_t h = u[0];
	const real_t hv = u[1];
	const real_t v = hv / h;
	f[0] = hv;
	f[1] = hv * v + 0.5 * SW_GRAVITY * h * h;
	f[2] = 0.0;
}

real_t max_abs_speed(const real_t* uL, const real_t* uR, const int orient) {
	const real_t vL = uL[1] / uL[0];
	const real_t vR = uR[1] / uR[0];
	const real_t cL = sqrt(SW_GRAVITY * uL[0]);
	const real_t cR = sqrt(SW_GRAVITY * uR[0]);
	const real_t sL = (vL < 0 ? -vL : vL) + cL;
	const real_t sR = (vR < 0 ? -vR : vR) + cR;
	return sL > sR ? sL : sR;
}
`, eq.Gravity)
}

func (eq *ShallowWater1D) DeviceNonconsSource() string {
	return `
void noncons_flux(const real_t* u_me, const real_t* u_other, const int orient, real_t* f) {
	f[0] = 0.0;
	f[1] = SW_GRAVITY * u_me[0] * u_other[2];
	f[2] = 0.0;
}
`
}

// ShallowWaterFlux is a Lax-Friedrichs flux that leaves the topography
// variable untouched: b carries no flux and must not pick up dissipation
// across a jump.
func ShallowWaterFlux(eq *ShallowWater1D) SurfaceFlux {
	return func(f, uL, uR []float64, orientation int) {
		fL := make([]float64, 3)
		fR := make([]float64, 3)
		eq.Flux(fL, uL, orientation)
		eq.Flux(fR, uR, orientation)
		lambda := eq.MaxAbsSpeed(uL, uR, orientation)
		for v := 0; v < 2; v++ {
			f[v] = 0.5*(fL[v]+fR[v]) - 0.5*lambda*(uR[v]-uL[v])
		}
		f[2] = 0
	}
}

// ShallowWaterFluxDeviceSource is the device counterpart of ShallowWaterFlux.
func ShallowWaterFluxDeviceSource() string {
	return `
void surface_flux(const real_t* uL, const real_t* uR, const int orient, real_t* f) {
	real_t fL[NVAR];
	real_t fR[NVAR];
	phys_flux(uL, orient, fL);
	phys_flux(uR, orient, fR);
	const real_t lambda = max_abs_speed(uL, uR, orient);
	for (int v = 0; v < 2; ++v) {
		f[v] = 0.5 * (fL[v] + fR[v]) - 0.5 * lambda * (uR[v] - uL[v]);
	}
	f[2] = 0.0;
}
`
}
