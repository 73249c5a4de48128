// Package solver implements the sequential reference residual pipeline:
// the ordered stages that turn a per-node solution array into a per-node
// residual array on the host. The device package implements the same
// semantics on an accelerator; the two must agree within floating
// tolerance under the padding-aware comparison rule.
package solver

import (
	"fmt"
	"math"

	"github.com/czha/dgtree/element"
	"github.com/czha/dgtree/equations"
	"github.com/czha/dgtree/mesh"
)

// Config freezes one residual-pipeline configuration. All referenced
// collaborators are immutable for the lifetime of the Solver.
type Config struct {
	Mesh     *mesh.Mesh
	Order    int
	Registry *equations.FluxRegistry
	Boundary map[string]equations.BoundaryCondition
	Source   equations.SourceTerm // nil means no sources
	Volume   VolumeScheme         // nil means pure weak-form DG
}

// Solver evaluates dU = residual(U, t) sequentially. It owns dU and all
// trace/flux buffers for the duration of one evaluation; at most one
// evaluation may be in flight per Solver.
type Solver struct {
	Mesh *mesh.Mesh
	El   *element.LineLGL
	Reg  *equations.FluxRegistry
	BCs  map[string]equations.BoundaryCondition
	Src  equations.SourceTerm
	Vol  VolumeScheme

	NVar   int
	Np1    int // nodes per direction
	Npe    int // nodes per element
	NFp    int // nodes per face
	NFaces int

	C     *Containers
	fmask [][]int // [local face][face node] -> volume node
}

// New validates the configuration and builds a Solver. Shape mismatches,
// unmatched boundary tags and a missing non-conservative flux are fatal:
// the pipeline refuses to run rather than truncate or pad incorrectly.
func New(cfg Config) (*Solver, error) {
	if cfg.Mesh == nil {
		return nil, fmt.Errorf("mesh is required")
	}
	if err := cfg.Mesh.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mesh: %w", err)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("flux registry is required")
	}
	sys := cfg.Registry.System
	if sys.NumDims() != cfg.Mesh.Dims {
		return nil, fmt.Errorf("equation %s is %dD but mesh is %dD",
			sys.Name(), sys.NumDims(), cfg.Mesh.Dims)
	}
	if cfg.Order < 1 {
		return nil, fmt.Errorf("polynomial order must be at least 1, got %d", cfg.Order)
	}
	for _, b := range cfg.Mesh.Boundaries {
		if _, ok := cfg.Boundary[b.Tag]; !ok {
			return nil, fmt.Errorf("no boundary condition bound to tag %q", b.Tag)
		}
	}

	el := element.NewLineLGL(cfg.Order)
	var (
		np1 = el.Props.Np
		npe = np1
		nfp = 1
	)
	if cfg.Mesh.Dims == 2 {
		npe = np1 * np1
		nfp = np1
	}

	s := &Solver{
		Mesh:   cfg.Mesh,
		El:     el,
		Reg:    cfg.Registry,
		BCs:    cfg.Boundary,
		Src:    cfg.Source,
		Vol:    cfg.Volume,
		NVar:   sys.NumVars(),
		Np1:    np1,
		Npe:    npe,
		NFp:    nfp,
		NFaces: cfg.Mesh.NumFaces(),
	}
	if s.Vol == nil {
		s.Vol = &FluxDifferencing{}
	}
	if err := s.Vol.validate(s); err != nil {
		return nil, err
	}
	s.C = NewContainers(cfg.Mesh, s.NVar, s.NFp)
	s.fmask = buildFmask(cfg.Mesh.Dims, np1)
	return s, nil
}

func buildFmask(dims, np1 int) [][]int {
	if dims == 1 {
		return [][]int{{0}, {np1 - 1}}
	}
	west := make([]int, np1)
	east := make([]int, np1)
	south := make([]int, np1)
	north := make([]int, np1)
	for l := 0; l < np1; l++ {
		west[l] = l * np1
		east[l] = l*np1 + np1 - 1
		south[l] = l
		north[l] = (np1-1)*np1 + l
	}
	return [][]int{west, east, south, north}
}

// FieldSize is the length of U and dU: K * NumVars * nodes-per-element.
func (s *Solver) FieldSize() int { return s.Mesh.K * s.NVar * s.Npe }

// Idx addresses a field at (element, variable, node).
func (s *Solver) Idx(k, v, node int) int { return (k*s.NVar+v)*s.Npe + node }

// NodeCoords returns the physical coordinates of a volume node.
func (s *Solver) NodeCoords(k, node int) [2]float64 {
	var (
		c = s.Mesh.Centers[k]
		h = s.Mesh.Lengths[k] / 2
	)
	if s.Mesh.Dims == 1 {
		return [2]float64{c[0] + h*s.El.R[node], 0}
	}
	i, j := node%s.Np1, node/s.Np1
	return [2]float64{c[0] + h*s.El.R[i], c[1] + h*s.El.R[j]}
}

// SetInitial fills U by evaluating fn at every physical node.
func (s *Solver) SetInitial(U []float64, fn func(x [2]float64) []float64) {
	for k := 0; k < s.Mesh.K; k++ {
		for node := 0; node < s.Npe; node++ {
			vals := fn(s.NodeCoords(k, node))
			for v := 0; v < s.NVar; v++ {
				U[s.Idx(k, v, node)] = vals[v]
			}
		}
	}
}

// Residual computes dU = residual(U, t). dU is overwritten: the volume
// stage performs the reset as its first act. Stage order is fixed:
// volume, then the three face stages (disjoint write targets), then
// surface integral, Jacobian scaling, and sources in physical space.
func (s *Solver) Residual(dU, U []float64, t float64) error {
	if len(U) != s.FieldSize() || len(dU) != s.FieldSize() {
		return fmt.Errorf("field length %d/%d does not match configuration size %d",
			len(U), len(dU), s.FieldSize())
	}
	s.VolumeStage(dU, U)
	s.InterfaceStage(U)
	if err := s.BoundaryStage(U, t); err != nil {
		return err
	}
	s.MortarStage(U)
	s.SurfaceStage(dU)
	s.JacobianStage(dU)
	s.SourceStage(dU, U, t)
	return s.CheckFinite(dU)
}

// VolumeStage computes each element's internal contribution from U alone,
// overwriting dU.
func (s *Solver) VolumeStage(dU, U []float64) {
	s.Vol.compute(s, dU, U)
}

// InterfaceStage gathers the two-sided traces at conforming faces and
// resolves the numerical flux into both neighboring elements' flux slices.
func (s *Solver) InterfaceStage(U []float64) {
	var (
		c   = s.C
		reg = s.Reg
		uL  = make([]float64, s.NVar)
		uR  = make([]float64, s.NVar)
		f   = make([]float64, s.NVar)
		fnc = make([]float64, s.NVar)
	)
	for i, iface := range s.Mesh.Interfaces {
		var (
			faceL = mesh.LocalFace(iface.Orientation, +1)
			faceR = mesh.LocalFace(iface.Orientation, -1)
		)
		// gather: pure copy of the boundary-node values, no arithmetic
		for v := 0; v < s.NVar; v++ {
			for fp := 0; fp < s.NFp; fp++ {
				c.IfaceU[c.IfaceIdx(i, 0, v, fp)] = U[s.Idx(iface.Left, v, s.fmask[faceL][fp])]
				c.IfaceU[c.IfaceIdx(i, 1, v, fp)] = U[s.Idx(iface.Right, v, s.fmask[faceR][fp])]
			}
		}
		for fp := 0; fp < s.NFp; fp++ {
			for v := 0; v < s.NVar; v++ {
				uL[v] = c.IfaceU[c.IfaceIdx(i, 0, v, fp)]
				uR[v] = c.IfaceU[c.IfaceIdx(i, 1, v, fp)]
			}
			reg.Surface(f, uL, uR, iface.Orientation)
			for v := 0; v < s.NVar; v++ {
				c.SurfFlux[c.SurfIdx(iface.Left, faceL, v, fp)] = f[v]
				c.SurfFlux[c.SurfIdx(iface.Right, faceR, v, fp)] = f[v]
			}
			if reg.HasNoncons {
				// each side receives its own half of the non-conservative
				// coupling; the two values differ by design
				reg.Noncons.NonconservativeFlux(fnc, uL, uR, iface.Orientation)
				for v := 0; v < s.NVar; v++ {
					c.SurfFlux[c.SurfIdx(iface.Left, faceL, v, fp)] += 0.5 * fnc[v]
				}
				reg.Noncons.NonconservativeFlux(fnc, uR, uL, iface.Orientation)
				for v := 0; v < s.NVar; v++ {
					c.SurfFlux[c.SurfIdx(iface.Right, faceR, v, fp)] += 0.5 * fnc[v]
				}
			}
		}
	}
}

// BoundaryStage gathers the interior trace at each boundary face and calls
// the condition bound to the face's tag.
func (s *Solver) BoundaryStage(U []float64, t float64) error {
	var (
		c   = s.C
		u   = make([]float64, s.NVar)
		f   = make([]float64, s.NVar)
		fnc = make([]float64, s.NVar)
		xv  [2]float64
	)
	for b, bf := range s.Mesh.Boundaries {
		bc := s.BCs[bf.Tag]
		if bc == nil {
			return fmt.Errorf("no boundary condition bound to tag %q", bf.Tag)
		}
		face := mesh.LocalFace(bf.Orientation, bf.NormalSign)
		for fp := 0; fp < s.NFp; fp++ {
			node := s.fmask[face][fp]
			for v := 0; v < s.NVar; v++ {
				u[v] = U[s.Idx(bf.Element, v, node)]
				c.BdryU[c.BdryIdx(b, v, fp)] = u[v]
			}
			xv = s.NodeCoords(bf.Element, node)
			bc.Flux(f, u, bf.Orientation, bf.NormalSign, xv[:], t)
			if s.Reg.HasNoncons {
				// self-coupling closes the split-form volume term at the
				// domain boundary
				s.Reg.Noncons.NonconservativeFlux(fnc, u, u, bf.Orientation)
				for v := 0; v < s.NVar; v++ {
					f[v] += 0.5 * fnc[v]
				}
			}
			for v := 0; v < s.NVar; v++ {
				c.SurfFlux[c.SurfIdx(bf.Element, face, v, fp)] = f[v]
			}
		}
	}
	return nil
}

// MortarStage resolves non-conforming faces: small-side traces are
// gathered at fine resolution, the large-side trace is interpolated up,
// fluxes are computed per valid slot, and the results are restricted back
// onto the large face. Invalid slots are excluded throughout.
func (s *Solver) MortarStage(U []float64) {
	var (
		c   = s.C
		reg = s.Reg
		mo  = s.El.Mortar
		uL  = make([]float64, s.NVar)
		uR  = make([]float64, s.NVar)
		f   = make([]float64, s.NVar)
		fnc = make([]float64, s.NVar)
	)
	for mi, mt := range s.Mesh.Mortars {
		var (
			largeSign = +1
			faceLarge = mesh.LocalFace(mt.Orientation, +1)
			faceSmall = mesh.LocalFace(mt.Orientation, -1)
		)
		if mt.LargeSide == 1 {
			largeSign = -1
			faceLarge, faceSmall = faceSmall, faceLarge
		}

		// (a) small sides are already at fine resolution: direct gather
		for slot := 0; slot < mesh.MortarArity; slot++ {
			if !mt.Valid[slot] {
				continue
			}
			for v := 0; v < s.NVar; v++ {
				for fp := 0; fp < s.NFp; fp++ {
					c.MortarUSmall[c.MortarIdx(mi, slot, v, fp)] =
						U[s.Idx(mt.Small[slot], v, s.fmask[faceSmall][fp])]
				}
			}
		}

		// (b) interpolate the large-side trace to each valid slot
		for slot := 0; slot < mesh.MortarArity; slot++ {
			if !mt.Valid[slot] {
				continue
			}
			fwd := mo.ForwardLower
			if slot == 1 {
				fwd = mo.ForwardUpper
			}
			for v := 0; v < s.NVar; v++ {
				for fp := 0; fp < s.NFp; fp++ {
					var acc float64
					if mt.EqualResolution {
						acc = U[s.Idx(mt.Large, v, s.fmask[faceLarge][fp])]
					} else {
						for m := 0; m < s.NFp; m++ {
							acc += fwd.At(fp, m) * U[s.Idx(mt.Large, v, s.fmask[faceLarge][m])]
						}
					}
					c.MortarULarge[c.MortarIdx(mi, slot, v, fp)] = acc
				}
			}
		}

		// (c) fluxes at fine resolution, written to the small elements'
		// slices and staged for restriction
		for slot := 0; slot < mesh.MortarArity; slot++ {
			if !mt.Valid[slot] {
				continue
			}
			for fp := 0; fp < s.NFp; fp++ {
				for v := 0; v < s.NVar; v++ {
					if largeSign > 0 {
						uL[v] = c.MortarULarge[c.MortarIdx(mi, slot, v, fp)]
						uR[v] = c.MortarUSmall[c.MortarIdx(mi, slot, v, fp)]
					} else {
						uL[v] = c.MortarUSmall[c.MortarIdx(mi, slot, v, fp)]
						uR[v] = c.MortarULarge[c.MortarIdx(mi, slot, v, fp)]
					}
				}
				reg.Surface(f, uL, uR, mt.Orientation)
				for v := 0; v < s.NVar; v++ {
					c.SurfFlux[c.SurfIdx(mt.Small[slot], faceSmall, v, fp)] = f[v]
					c.MortarFstar[c.MortarIdx(mi, slot, v, fp)] = f[v]
				}
				if reg.HasNoncons {
					uMe, uOther := uL, uR
					if largeSign < 0 {
						uMe, uOther = uR, uL
					}
					// small side's half
					reg.Noncons.NonconservativeFlux(fnc, uOther, uMe, mt.Orientation)
					for v := 0; v < s.NVar; v++ {
						c.SurfFlux[c.SurfIdx(mt.Small[slot], faceSmall, v, fp)] += 0.5 * fnc[v]
					}
					// large side's half, restricted with the flux below
					reg.Noncons.NonconservativeFlux(fnc, uMe, uOther, mt.Orientation)
					for v := 0; v < s.NVar; v++ {
						c.MortarFstar[c.MortarIdx(mi, slot, v, fp)] += 0.5 * fnc[v]
					}
				}
			}
		}

		// (d) restrict the fine fluxes onto the large face
		for v := 0; v < s.NVar; v++ {
			for m := 0; m < s.NFp; m++ {
				var acc float64
				if mt.EqualResolution {
					acc = c.MortarFstar[c.MortarIdx(mi, 0, v, m)]
				} else {
					for slot := 0; slot < mesh.MortarArity; slot++ {
						if !mt.Valid[slot] {
							continue
						}
						rev := mo.ReverseLower
						if slot == 1 {
							rev = mo.ReverseUpper
						}
						for fp := 0; fp < s.NFp; fp++ {
							acc += rev.At(m, fp) * c.MortarFstar[c.MortarIdx(mi, slot, v, fp)]
						}
					}
				}
				c.SurfFlux[c.SurfIdx(mt.Large, faceLarge, v, m)] = acc
			}
		}
	}
}

// SurfaceStage lifts every element's surface-flux slices into dU with the
// boundary interpolation factors. Purely linear in the flux values.
func (s *Solver) SurfaceStage(dU []float64) {
	var (
		c         = s.C
		lhatLeft  = s.El.LhatLeft()
		lhatRight = s.El.LhatRight()
	)
	for k := 0; k < s.Mesh.K; k++ {
		for v := 0; v < s.NVar; v++ {
			for fp := 0; fp < s.NFp; fp++ {
				dU[s.Idx(k, v, s.fmask[mesh.West][fp])] -=
					c.SurfFlux[c.SurfIdx(k, mesh.West, v, fp)] * lhatLeft
				dU[s.Idx(k, v, s.fmask[mesh.East][fp])] +=
					c.SurfFlux[c.SurfIdx(k, mesh.East, v, fp)] * lhatRight
				if s.Mesh.Dims == 2 {
					dU[s.Idx(k, v, s.fmask[mesh.South][fp])] -=
						c.SurfFlux[c.SurfIdx(k, mesh.South, v, fp)] * lhatLeft
					dU[s.Idx(k, v, s.fmask[mesh.North][fp])] +=
						c.SurfFlux[c.SurfIdx(k, mesh.North, v, fp)] * lhatRight
				}
			}
		}
	}
}

// JacobianStage maps the reference-space residual to physical space:
// dU *= -invJacobian per element.
func (s *Solver) JacobianStage(dU []float64) {
	for k := 0; k < s.Mesh.K; k++ {
		scale := -s.Mesh.InvJacobian[k]
		base := k * s.NVar * s.Npe
		for i := 0; i < s.NVar*s.Npe; i++ {
			dU[base+i] *= scale
		}
	}
}

// SourceStage adds pointwise sources in physical space, after Jacobian
// scaling. A nil source term leaves dU untouched.
func (s *Solver) SourceStage(dU, U []float64, t float64) {
	if s.Src == nil {
		return
	}
	var (
		u  = make([]float64, s.NVar)
		sv = make([]float64, s.NVar)
	)
	for k := 0; k < s.Mesh.K; k++ {
		for node := 0; node < s.Npe; node++ {
			for v := 0; v < s.NVar; v++ {
				u[v] = U[s.Idx(k, v, node)]
			}
			x := s.NodeCoords(k, node)
			s.Src.Eval(sv, u, x[:], t)
			for v := 0; v < s.NVar; v++ {
				dU[s.Idx(k, v, node)] += sv[v]
			}
		}
	}
}

// CheckFinite surfaces NaN or Inf in the residual as an error. Only the
// designated padding slots of the trace buffers may hold the sentinel;
// dU has no padding, so any non-finite entry is a stability failure.
func (s *Solver) CheckFinite(dU []float64) error {
	for i, v := range dU {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			k := i / (s.NVar * s.Npe)
			return fmt.Errorf("non-finite residual %v at element %d (index %d)", v, k, i)
		}
	}
	return nil
}

// Fmask exposes the face-node to volume-node mapping for the device layer.
func (s *Solver) Fmask() [][]int { return s.fmask }
