package solver

import "fmt"

// Carpenter-Kennedy five-stage fourth-order low-storage Runge-Kutta.
var (
	rk4a = [5]float64{
		0,
		-567301805773. / 1357537059087.,
		-2404267990393. / 2016746695238.,
		-3550918686646. / 2091501179385.,
		-1275806237668. / 842570457699.,
	}
	rk4b = [5]float64{
		1432997174477. / 9575080441755.,
		5161836677717. / 13612068292357.,
		1720146321549. / 2090206949498.,
		3134564353537. / 4481467310338.,
		2277821191437. / 14882151754819.,
	}
	rk4c = [5]float64{
		0,
		1432997174477. / 9575080441755.,
		2526269341429. / 6820363962896.,
		2006345519317. / 3224310063776.,
		2802321613138. / 2924317926251.,
	}
)

// Residualer is any pipeline that evaluates dU = residual(U, t): the
// sequential Solver or a device-backed pipeline with the same field layout.
type Residualer interface {
	Residual(dU, U []float64, t float64) error
	FieldSize() int
}

// Integrator advances a solution in time with the low-storage RK scheme.
// It owns the residual and accumulation registers, so steps allocate
// nothing.
type Integrator struct {
	pipe Residualer
	dU   []float64
	res  []float64
}

// NewIntegrator builds an integrator over the given residual pipeline.
func NewIntegrator(pipe Residualer) *Integrator {
	return &Integrator{
		pipe: pipe,
		dU:   make([]float64, pipe.FieldSize()),
		res:  make([]float64, pipe.FieldSize()),
	}
}

// Step advances U in place from t to t+dt.
func (it *Integrator) Step(U []float64, t, dt float64) error {
	if len(U) != it.pipe.FieldSize() {
		return fmt.Errorf("field length %d does not match pipeline size %d", len(U), it.pipe.FieldSize())
	}
	for i := range it.res {
		it.res[i] = 0
	}
	for stage := 0; stage < 5; stage++ {
		if err := it.pipe.Residual(it.dU, U, t+rk4c[stage]*dt); err != nil {
			return fmt.Errorf("stage %d at t=%g: %w", stage, t, err)
		}
		for i := range U {
			it.res[i] = rk4a[stage]*it.res[i] + dt*it.dU[i]
			U[i] += rk4b[stage] * it.res[i]
		}
	}
	return nil
}

// Run integrates from t=0 to tFinal, shortening the last step to land on
// tFinal exactly. onStep, if non-nil, is called after every accepted step.
func (it *Integrator) Run(U []float64, tFinal, dt float64, onStep func(step int, t float64)) error {
	if dt <= 0 {
		return fmt.Errorf("step size must be positive, got %g", dt)
	}
	t := 0.0
	for step := 0; t < tFinal; step++ {
		h := dt
		if t+h > tFinal {
			h = tFinal - t
		}
		if err := it.Step(U, t, h); err != nil {
			return err
		}
		t += h
		if onStep != nil {
			onStep(step, t)
		}
	}
	return nil
}

// EstimateDt returns a CFL-limited step size from the current solution:
// the minimum over elements of cfl * length / (speed * (2N+1)).
func (s *Solver) EstimateDt(U []float64, cfl float64) float64 {
	var (
		u     = make([]float64, s.NVar)
		sys   = s.Reg.System
		dtMin = 1e300
	)
	for k := 0; k < s.Mesh.K; k++ {
		var speed float64
		for node := 0; node < s.Npe; node++ {
			for v := 0; v < s.NVar; v++ {
				u[v] = U[s.Idx(k, v, node)]
			}
			for dir := 0; dir < s.Mesh.Dims; dir++ {
				if sp := sys.MaxAbsSpeed(u, u, dir); sp > speed {
					speed = sp
				}
			}
		}
		if speed <= 0 {
			continue
		}
		dt := cfl * s.Mesh.Lengths[k] / (speed * float64(2*s.El.Props.Order+1))
		if dt < dtMin {
			dtMin = dt
		}
	}
	return dtMin
}
