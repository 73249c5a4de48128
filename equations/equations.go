// Package equations defines the conservation-law systems the residual
// pipeline can run, together with their numerical surface fluxes. Each
// system supplies two faces of the same behavior: Go callables consumed by
// the sequential host pipeline, and OKL C source spliced into the device
// kernels. Both are resolved once at configuration time.
package equations

import (
	"fmt"
	"math"
)

// System describes a hyperbolic conservation-law system.
type System interface {
	Name() string
	NumVars() int
	NumDims() int

	// Flux writes the physical flux along the given orientation
	// (0 = x, 1 = y) into f. len(f) == len(u) == NumVars().
	Flux(f, u []float64, orientation int)

	// MaxAbsSpeed returns an upper bound on the characteristic speeds of
	// the two states along the orientation, for Lax-Friedrichs dissipation.
	MaxAbsSpeed(uL, uR []float64, orientation int) float64

	// DeviceSource returns OKL C source defining, at minimum,
	//   void phys_flux(const real_t* u, const int orient, real_t* f)
	//   real_t max_abs_speed(const real_t* uL, const real_t* uR, const int orient)
	// against an NVAR macro supplied by the kernel generator.
	DeviceSource() string
}

// NonconservativeSystem extends System with side-dependent coupling terms
// that are not expressible as the divergence of a single flux. The two
// sides of an interface receive different values by construction.
type NonconservativeSystem interface {
	System

	// NonconservativeFlux writes the non-conservative coupling term seen
	// from the side holding uMe, facing uOther across the interface.
	NonconservativeFlux(f, uMe, uOther []float64, orientation int)

	// DeviceNonconsSource returns OKL C source defining
	//   void noncons_flux(const real_t* u_me, const real_t* u_other,
	//                     const int orient, real_t* f)
	DeviceNonconsSource() string
}

// SurfaceFlux computes a numerical flux from a two-sided trace, oriented
// along the positive coordinate direction. It must be conservative:
// swapping sides and negating the direction reproduces the same flux
// applied with opposite sign on the other side.
type SurfaceFlux func(f, uL, uR []float64, orientation int)

// FluxRegistry bundles the flux callables resolved for one configuration.
// Noncons is nil when the system declares no non-conservative terms;
// the pipeline then skips that half of every flux computation outright.
type FluxRegistry struct {
	System        System
	Surface       SurfaceFlux
	Noncons       NonconservativeSystem // nil for purely conservative systems
	DeviceDefs    string                // concatenated OKL source for the device side
	SurfaceDevice string                // OKL surface_flux source, empty means host-only
	NumVars       int
	HasNoncons    bool
}

// NewFluxRegistry validates and freezes the flux selection for a system.
func NewFluxRegistry(sys System, surface SurfaceFlux) (*FluxRegistry, error) {
	if sys == nil {
		return nil, fmt.Errorf("equation system is required")
	}
	if surface == nil {
		return nil, fmt.Errorf("surface flux for %s is required", sys.Name())
	}
	reg := &FluxRegistry{
		System:     sys,
		Surface:    surface,
		DeviceDefs: sys.DeviceSource(),
		NumVars:    sys.NumVars(),
	}
	if nc, ok := sys.(NonconservativeSystem); ok {
		reg.Noncons = nc
		reg.HasNoncons = true
		reg.DeviceDefs += "\n" + nc.DeviceNonconsSource()
	}
	return reg, nil
}

// WithDeviceSurface attaches the OKL counterpart of the surface flux. A
// registry without one configures the host pipeline only.
func (reg *FluxRegistry) WithDeviceSurface(src string) *FluxRegistry {
	reg.SurfaceDevice = src
	return reg
}

// LaxFriedrichsFlux builds the local Lax-Friedrichs flux for sys:
// f* = (f(uL)+f(uR))/2 - lambda (uR-uL)/2.
func LaxFriedrichsFlux(sys System) SurfaceFlux {
	nv := sys.NumVars()
	return func(f, uL, uR []float64, orientation int) {
		fL := make([]float64, nv)
		fR := make([]float64, nv)
		sys.Flux(fL, uL, orientation)
		sys.Flux(fR, uR, orientation)
		lambda := sys.MaxAbsSpeed(uL, uR, orientation)
		for v := 0; v < nv; v++ {
			f[v] = 0.5*(fL[v]+fR[v]) - 0.5*lambda*(uR[v]-uL[v])
		}
	}
}

// CentralFlux builds the arithmetic-mean flux, useful for checking
// discrete conservation without dissipation.
func CentralFlux(sys System) SurfaceFlux {
	nv := sys.NumVars()
	return func(f, uL, uR []float64, orientation int) {
		fL := make([]float64, nv)
		fR := make([]float64, nv)
		sys.Flux(fL, uL, orientation)
		sys.Flux(fR, uR, orientation)
		for v := 0; v < nv; v++ {
			f[v] = 0.5 * (fL[v] + fR[v])
		}
	}
}

// laxFriedrichsDeviceSource emits the device-side counterpart of
// LaxFriedrichsFlux in terms of the system's phys_flux and max_abs_speed.
const laxFriedrichsDeviceSource = `
void surface_flux(const real_t* uL, const real_t* uR, const int orient, real_t* f) {
	real_t fL[NVAR];
	real_t fR[NVAR];
	phys_flux(uL, orient, fL);
	phys_flux(uR, orient, fR);
	const real_t lambda = max_abs_speed(uL, uR, orient);
	for (int v = 0; v < NVAR; ++v) {
		f[v] = 0.5 * (fL[v] + fR[v]) - 0.5 * lambda * (uR[v] - uL[v]);
	}
}
`

// LaxFriedrichsDeviceSource returns the OKL source for the LLF flux.
func LaxFriedrichsDeviceSource() string { return laxFriedrichsDeviceSource }

// checkFinite reports the first non-finite entry of u, if any.
func checkFinite(u []float64) error {
	for v, val := range u {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("non-finite value %v in variable %d", val, v)
		}
	}
	return nil
}
