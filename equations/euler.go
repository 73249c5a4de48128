package equations

import (
	"fmt"
	"math"
)

// CompressibleEuler1D is the one-dimensional compressible Euler system
// with variables (rho, rho v, E) and ideal-gas pressure closure.
type CompressibleEuler1D struct {
	Gamma float64
}

func NewCompressibleEuler1D(gamma float64) *CompressibleEuler1D {
	return &CompressibleEuler1D{Gamma: gamma}
}

func (eq *CompressibleEuler1D) Name() string { return "CompressibleEuler1D" }

func (eq *CompressibleEuler1D) NumVars() int { return 3 }
func (eq *CompressibleEuler1D) NumDims() int { return 1 }

// Pressure recovers p from the conserved variables.
func (eq *CompressibleEuler1D) Pressure(u []float64) float64 {
	rho, rhov, ener := u[0], u[1], u[2]
	return (eq.Gamma - 1.) * (ener - 0.5*rhov*rhov/rho)
}

func (eq *CompressibleEuler1D) Flux(f, u []float64, orientation int) {
	rho, rhov, ener := u[0], u[1], u[2]
	v := rhov / rho
	p := eq.Pressure(u)
	f[0] = rhov
	f[1] = rhov*v + p
	f[2] = (ener + p) * v
}

func (eq *CompressibleEuler1D) MaxAbsSpeed(uL, uR []float64, orientation int) float64 {
	vL := uL[1] / uL[0]
	vR := uR[1] / uR[0]
	cL := math.Sqrt(eq.Gamma * eq.Pressure(uL) / uL[0])
	cR := math.Sqrt(eq.Gamma * eq.Pressure(uR) / uR[0])
	return math.Max(math.Abs(vL)+cL, math.Abs(vR)+cR)
}

func (eq *CompressibleEuler1D) DeviceSource() string {
	return fmt.Sprintf(`
#define EULER_GAMMA %.15e

real_t euler_pressure(const real_t* u) {
	return (EULER_GAMMA - 1.0) * (u[2] - 0.5 * u[1] * u[1] / u[0]);
}

void phys_flux(const real_t* u, const int orient, real_t* f) {
	const real_t v = u[1] / u[0];
	const real_t p = euler_pressure(u);
	f[0] = u[1];
	f[1] = u[1] * v + p;
	f[2] = (u[2] + p) * v;
}

real_t max_abs_speed(const real_t* uL, const real_t* uR, const int orient) {
	const real_t vL = uL[1] / uL[0];
	const real_t vR = uR[1] / uR[0];
	const real_t cL = sqrt(EULER_GAMMA * euler_pressure(uL) / uL[0]);
	const real_t cR = sqrt(EULER_GAMMA * euler_pressure(uR) / uR[0]);
	const real_t sL = (vL < 0 ? -vL : vL) + cL;
	const real_t sR = (vR < 0 ? -vR : vR) + cR;
	return sL > sR ? sL : sR;
}
`, eq.Gamma)
}
