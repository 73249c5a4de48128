package solver

import (
	"fmt"
	"math"

	"github.com/czha/dgtree/equations"
)

// VolumeScheme computes the element-internal part of the residual. The
// scheme owns the reset of dU: it overwrites, the later stages accumulate.
type VolumeScheme interface {
	validate(s *Solver) error
	compute(s *Solver, dU, U []float64)
}

// WeakForm is the standard weak-form DG volume integral using the Dhat
// operator per direction. Conservative systems only: the non-conservative
// volume contribution needs the split operator, use FluxDifferencing.
type WeakForm struct{}

func (WeakForm) validate(s *Solver) error {
	if s.Reg.HasNoncons {
		return fmt.Errorf("weak-form volume integral cannot carry the non-conservative terms of %s, use flux differencing",
			s.Reg.System.Name())
	}
	return nil
}

func (WeakForm) compute(s *Solver, dU, U []float64) {
	var (
		sys  = s.Reg.System
		dhat = s.El.Ops.Dhat
		np1  = s.Np1
		u    = make([]float64, s.NVar)
		f    = make([]float64, s.NVar*s.Npe)
	)
	for k := 0; k < s.Mesh.K; k++ {
		base := k * s.NVar * s.Npe
		for i := base; i < base+s.NVar*s.Npe; i++ {
			dU[i] = 0
		}
		for dir := 0; dir < s.Mesh.Dims; dir++ {
			for node := 0; node < s.Npe; node++ {
				for v := 0; v < s.NVar; v++ {
					u[v] = U[s.Idx(k, v, node)]
				}
				sys.Flux(f[node*s.NVar:(node+1)*s.NVar], u, dir)
			}
			if s.Mesh.Dims == 1 {
				for i := 0; i < np1; i++ {
					for m := 0; m < np1; m++ {
						d := dhat.At(i, m)
						for v := 0; v < s.NVar; v++ {
							dU[s.Idx(k, v, i)] += d * f[m*s.NVar+v]
						}
					}
				}
				continue
			}
			// tensor product: Dhat acts along x for dir 0, along y for dir 1
			for j := 0; j < np1; j++ {
				for i := 0; i < np1; i++ {
					node := j*np1 + i
					for m := 0; m < np1; m++ {
						var d float64
						var src int
						if dir == 0 {
							d, src = dhat.At(i, m), j*np1+m
						} else {
							d, src = dhat.At(j, m), m*np1+i
						}
						for v := 0; v < s.NVar; v++ {
							dU[s.Idx(k, v, node)] += d * f[src*s.NVar+v]
						}
					}
				}
			}
		}
	}
}

// FluxDifferencing is the split-form volume integral built from pairwise
// two-point volume fluxes through the Ds operator. With the central volume
// flux it is algebraically identical to the weak form; other symmetric
// fluxes trade that for conservation or entropy properties. For systems
// with non-conservative terms the pairwise coupling term rides along with
// half weight, which is what balances the interface half on constant
// states.
type FluxDifferencing struct {
	// VolumeFlux is the symmetric two-point flux. Nil selects the central
	// flux of the configured system.
	VolumeFlux equations.SurfaceFlux

	volFlux equations.SurfaceFlux
}

func (fd *FluxDifferencing) validate(s *Solver) error {
	fd.volFlux = fd.VolumeFlux
	if fd.volFlux == nil {
		fd.volFlux = equations.CentralFlux(s.Reg.System)
	}
	return nil
}

func (fd *FluxDifferencing) compute(s *Solver, dU, U []float64) {
	var (
		ds  = s.El.Ops.Ds
		np1 = s.Np1
		ui  = make([]float64, s.NVar)
		um  = make([]float64, s.NVar)
		f   = make([]float64, s.NVar)
		fnc = make([]float64, s.NVar)
	)
	pair := func(k, node, other, dir int) (di []float64) {
		for v := 0; v < s.NVar; v++ {
			ui[v] = U[s.Idx(k, v, node)]
			um[v] = U[s.Idx(k, v, other)]
		}
		fd.volFlux(f, ui, um, dir)
		if s.Reg.HasNoncons {
			s.Reg.Noncons.NonconservativeFlux(fnc, ui, um, dir)
			for v := 0; v < s.NVar; v++ {
				f[v] += 0.5 * fnc[v]
			}
		}
		return f
	}

	for k := 0; k < s.Mesh.K; k++ {
		base := k * s.NVar * s.Npe
		for i := base; i < base+s.NVar*s.Npe; i++ {
			dU[i] = 0
		}
		if s.Mesh.Dims == 1 {
			for i := 0; i < np1; i++ {
				for m := 0; m < np1; m++ {
					d := ds.At(i, m)
					fv := pair(k, i, m, 0)
					for v := 0; v < s.NVar; v++ {
						dU[s.Idx(k, v, i)] += d * fv[v]
					}
				}
			}
			continue
		}
		for j := 0; j < np1; j++ {
			for i := 0; i < np1; i++ {
				node := j*np1 + i
				for m := 0; m < np1; m++ {
					fv := pair(k, node, j*np1+m, 0)
					d := ds.At(i, m)
					for v := 0; v < s.NVar; v++ {
						dU[s.Idx(k, v, node)] += d * fv[v]
					}
					fv = pair(k, node, m*np1+i, 1)
					d = ds.At(j, m)
					for v := 0; v < s.NVar; v++ {
						dU[s.Idx(k, v, node)] += d * fv[v]
					}
				}
			}
		}
	}
}

// Blended combines the weak-form DG volume integral with a first-order
// finite-volume scheme on the LGL subcells, weighted per element by a
// modal smoothness indicator. The two share the element-boundary fluxes,
// so only the volume part is blended. 1D, conservative systems only.
type Blended struct {
	AlphaMax float64 // cap on the FV weight, 0 means 0.5
	AlphaMin float64 // weights below this snap to pure DG, 0 means 0.001
	Variable int     // indicator variable index

	// LastAlpha holds the per-element blending weights of the most recent
	// evaluation, for inspection and output.
	LastAlpha []float64
}

func (b *Blended) validate(s *Solver) error {
	if s.Mesh.Dims != 1 {
		return fmt.Errorf("blended volume scheme supports 1D meshes only")
	}
	if s.Reg.HasNoncons {
		return fmt.Errorf("blended volume scheme requires a conservative system, %s has non-conservative terms",
			s.Reg.System.Name())
	}
	if b.Variable < 0 || b.Variable >= s.NVar {
		return fmt.Errorf("indicator variable %d out of range for %d variables", b.Variable, s.NVar)
	}
	if s.El.Props.Order < 2 {
		return fmt.Errorf("blended volume scheme needs order at least 2 for a modal indicator, got %d",
			s.El.Props.Order)
	}
	return nil
}

func (b *Blended) compute(s *Solver, dU, U []float64) {
	if cap(b.LastAlpha) < s.Mesh.K {
		b.LastAlpha = make([]float64, s.Mesh.K)
	}
	b.LastAlpha = b.LastAlpha[:s.Mesh.K]

	WeakForm{}.compute(s, dU, U)

	var (
		np1  = s.Np1
		w    = s.El.W
		uL   = make([]float64, s.NVar)
		uR   = make([]float64, s.NVar)
		fsub = make([]float64, (np1+1)*s.NVar) // subcell boundary fluxes, element ends zero
	)
	for k := 0; k < s.Mesh.K; k++ {
		alpha := b.indicator(s, U, k)
		b.LastAlpha[k] = alpha
		if alpha == 0 {
			continue
		}
		for i := 1; i < np1; i++ {
			for v := 0; v < s.NVar; v++ {
				uL[v] = U[s.Idx(k, v, i-1)]
				uR[v] = U[s.Idx(k, v, i)]
			}
			s.Reg.Surface(fsub[i*s.NVar:(i+1)*s.NVar], uL, uR, 0)
		}
		// element-end subcell fluxes enter through the shared surface
		// integral, not here
		for v := 0; v < s.NVar; v++ {
			fsub[v] = 0
			fsub[np1*s.NVar+v] = 0
		}
		for i := 0; i < np1; i++ {
			for v := 0; v < s.NVar; v++ {
				fv := (fsub[(i+1)*s.NVar+v] - fsub[i*s.NVar+v]) / w[i]
				idx := s.Idx(k, v, i)
				dU[idx] = (1-alpha)*dU[idx] + alpha*fv
			}
		}
	}
}

// indicator measures the relative energy of the two highest modes of the
// indicator variable and maps it through a sharp logistic onto [0, alphaMax].
func (b *Blended) indicator(s *Solver, U []float64, k int) float64 {
	var (
		np1      = s.Np1
		vinv     = s.El.Ops.Vinv
		alphaMax = b.AlphaMax
		alphaMin = b.AlphaMin
	)
	if alphaMax == 0 {
		alphaMax = 0.5
	}
	if alphaMin == 0 {
		alphaMin = 0.001
	}

	modes := make([]float64, np1)
	for m := 0; m < np1; m++ {
		var acc float64
		for n := 0; n < np1; n++ {
			acc += vinv.At(m, n) * U[s.Idx(k, b.Variable, n)]
		}
		modes[m] = acc
	}
	var total, totalButLast float64
	for m := 0; m < np1; m++ {
		e := modes[m] * modes[m]
		total += e
		if m < np1-1 {
			totalButLast += e
		}
	}
	if total < 1e-300 {
		return 0
	}
	energy := modes[np1-1] * modes[np1-1] / total
	if totalButLast > 1e-300 {
		e2 := modes[np1-2] * modes[np1-2] / totalButLast
		if e2 > energy {
			energy = e2
		}
	}

	threshold := 0.5 * math.Pow(10, -1.8*math.Pow(float64(np1), 0.25))
	sharp := math.Log(1/0.0001 - 1)
	alpha := 1 / (1 + math.Exp(-sharp/threshold*(energy-threshold)))
	if alpha < alphaMin {
		return 0
	}
	if alpha > alphaMax {
		return alphaMax
	}
	return alpha
}
