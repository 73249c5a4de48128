package equations

import (
	"fmt"
	"strings"
)

// BoundaryCondition computes the flux at a physical boundary face from the
// one-sided interior trace. normalSign is +1 when the outward normal points
// along the positive orientation axis, -1 otherwise. Implementations must
// be pure functions of their arguments.
type BoundaryCondition interface {
	Name() string
	Flux(f, uInner []float64, orientation, normalSign int, x []float64, t float64)

	// DeviceSource returns OKL C source defining
	//   void <fn>(const real_t* u_inner, const int orient,
	//             const int normal_sign, const real_t* x, const real_t t,
	//             real_t* f)
	// or the empty string when the condition has no device counterpart
	// (such conditions are usable with the host pipeline only).
	DeviceSource(fn string) string
}

// DirichletBC imposes a fixed exterior state and resolves the boundary flux
// with the registered surface flux, interior on the interior side.
type DirichletBC struct {
	Label   string
	State   []float64
	Surface SurfaceFlux
}

func NewDirichletBC(label string, state []float64, surface SurfaceFlux) *DirichletBC {
	return &DirichletBC{Label: label, State: state, Surface: surface}
}

func (bc *DirichletBC) Name() string { return bc.Label }

func (bc *DirichletBC) Flux(f, uInner []float64, orientation, normalSign int, x []float64, t float64) {
	if normalSign > 0 {
		bc.Surface(f, uInner, bc.State, orientation)
	} else {
		bc.Surface(f, bc.State, uInner, orientation)
	}
}

func (bc *DirichletBC) DeviceSource(fn string) string {
	vals := make([]string, len(bc.State))
	for v, s := range bc.State {
		vals[v] = fmt.Sprintf("%.15e", s)
	}
	return fmt.Sprintf(`
void %s(const real_t* u_inner, const int orient, const int normal_sign,
        const real_t* x, const real_t t, real_t* f) {
	const real_t u_outer[NVAR] = {%s};
	if (normal_sign > 0) {
		surface_flux(u_inner, u_outer, orient, f);
	} else {
		surface_flux(u_outer, u_inner, orient, f);
	}
}
`, fn, strings.Join(vals, ", "))
}

// ReflectiveWallBC is a slip-wall condition: the exterior state mirrors the
// interior with the normal momentum negated, and the flux is resolved with
// the registered surface flux. With a symmetric dissipation operator this
// yields exactly zero mass flux through the wall.
type ReflectiveWallBC struct {
	Label       string
	MomentumVar int // index of the normal-momentum variable (per orientation base)
	Surface     SurfaceFlux
	numVars     int
}

func NewReflectiveWallBC(label string, sys System, surface SurfaceFlux) *ReflectiveWallBC {
	return &ReflectiveWallBC{
		Label:       label,
		MomentumVar: 1, // (density, momentum, ...) layout of the provided systems
		Surface:     surface,
		numVars:     sys.NumVars(),
	}
}

func (bc *ReflectiveWallBC) Name() string { return bc.Label }

func (bc *ReflectiveWallBC) Flux(f, uInner []float64, orientation, normalSign int, x []float64, t float64) {
	uMirror := make([]float64, bc.numVars)
	copy(uMirror, uInner)
	uMirror[bc.MomentumVar+orientation] = -uInner[bc.MomentumVar+orientation]
	if normalSign > 0 {
		bc.Surface(f, uInner, uMirror, orientation)
	} else {
		bc.Surface(f, uMirror, uInner, orientation)
	}
}

func (bc *ReflectiveWallBC) DeviceSource(fn string) string {
	return fmt.Sprintf(`
void %s(const real_t* u_inner, const int orient, const int normal_sign,
        const real_t* x, const real_t t, real_t* f) {
	real_t u_mirror[NVAR];
	for (int v = 0; v < NVAR; ++v) {
		u_mirror[v] = u_inner[v];
	}
	u_mirror[%d + orient] = -u_inner[%d + orient];
	if (normal_sign > 0) {
		surface_flux(u_inner, u_mirror, orient, f);
	} else {
		surface_flux(u_mirror, u_inner, orient, f);
	}
}
`, fn, bc.MomentumVar, bc.MomentumVar)
}

// FuncBC wraps an arbitrary Go callable as a boundary condition. It has no
// device counterpart and is rejected when configuring a device pipeline.
type FuncBC struct {
	Label string
	Fn    func(f, uInner []float64, orientation, normalSign int, x []float64, t float64)
}

func (bc *FuncBC) Name() string { return bc.Label }

func (bc *FuncBC) Flux(f, uInner []float64, orientation, normalSign int, x []float64, t float64) {
	bc.Fn(f, uInner, orientation, normalSign, x, t)
}

func (bc *FuncBC) DeviceSource(fn string) string { return "" }
