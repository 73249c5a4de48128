package solver

import (
	"math"

	"github.com/czha/dgtree/mesh"
)

// Containers hold the per-evaluation working buffers of the host pipeline:
// trace storage for each face kind and the surface flux-value storage the
// surface integral consumes. All buffers are dense with a fixed slot per
// topological entity; mortar slots without a real neighbor are padding and
// hold NaN on the host side (the device side zero-fills the same slots; the
// validity mask on the mesh, not the numeric value, is authoritative).
type Containers struct {
	nVar, nFaces, nFp int

	// SurfFlux is indexed (element, local face, variable, face node).
	// Each (element, local face) pair owns its slice exclusively: the two
	// writers of a logically shared interface flux target two distinct
	// slices, never one shared location.
	SurfFlux []float64

	// IfaceU is the two-sided conforming trace, (interface, side, variable,
	// face node) with side 0 = left (negative side of the axis).
	IfaceU []float64

	// BdryU is the one-sided boundary trace, (boundary, variable, face node).
	BdryU []float64

	// Mortar buffers, (mortar, slot, variable, face node):
	// MortarUSmall holds the small-side traces (already at fine resolution),
	// MortarULarge the large-side trace interpolated to each slot,
	// MortarFstar the fine-resolution fluxes as seen from the large side.
	MortarUSmall []float64
	MortarULarge []float64
	MortarFstar  []float64
}

// NewContainers allocates the working buffers for a mesh, equation size and
// face node count, and seeds every invalid mortar slot with the host-side
// NaN sentinel. Valid slots are fully rewritten on every evaluation;
// invalid slots are never written again.
func NewContainers(m *mesh.Mesh, nVar, nFp int) *Containers {
	nFaces := m.NumFaces()
	c := &Containers{
		nVar:         nVar,
		nFaces:       nFaces,
		nFp:          nFp,
		SurfFlux:     make([]float64, m.K*nFaces*nVar*nFp),
		IfaceU:       make([]float64, len(m.Interfaces)*2*nVar*nFp),
		BdryU:        make([]float64, len(m.Boundaries)*nVar*nFp),
		MortarUSmall: make([]float64, len(m.Mortars)*mesh.MortarArity*nVar*nFp),
		MortarULarge: make([]float64, len(m.Mortars)*mesh.MortarArity*nVar*nFp),
		MortarFstar:  make([]float64, len(m.Mortars)*mesh.MortarArity*nVar*nFp),
	}
	nan := math.NaN()
	for mi, mt := range m.Mortars {
		for slot := 0; slot < mesh.MortarArity; slot++ {
			if mt.Valid[slot] {
				continue
			}
			for v := 0; v < nVar; v++ {
				for fp := 0; fp < nFp; fp++ {
					c.MortarUSmall[c.MortarIdx(mi, slot, v, fp)] = nan
					c.MortarULarge[c.MortarIdx(mi, slot, v, fp)] = nan
					c.MortarFstar[c.MortarIdx(mi, slot, v, fp)] = nan
				}
			}
		}
	}
	return c
}

// SurfIdx addresses SurfFlux at (element, local face, variable, face node).
func (c *Containers) SurfIdx(k, face, v, fp int) int {
	return ((k*c.nFaces+face)*c.nVar+v)*c.nFp + fp
}

// IfaceIdx addresses IfaceU at (interface, side, variable, face node).
func (c *Containers) IfaceIdx(i, side, v, fp int) int {
	return ((i*2+side)*c.nVar+v)*c.nFp + fp
}

// BdryIdx addresses BdryU at (boundary, variable, face node).
func (c *Containers) BdryIdx(b, v, fp int) int {
	return (b*c.nVar+v)*c.nFp + fp
}

// MortarIdx addresses the mortar buffers at (mortar, slot, variable, face node).
func (c *Containers) MortarIdx(m, slot, v, fp int) int {
	return ((m*mesh.MortarArity+slot)*c.nVar+v)*c.nFp + fp
}

// Clone returns a value-semantic deep copy. The copy shares no storage
// with the original, so reference and device-bound datasets derived from
// the same configuration stay independent by contract.
func (c *Containers) Clone() *Containers {
	return &Containers{
		nVar:         c.nVar,
		nFaces:       c.nFaces,
		nFp:          c.nFp,
		SurfFlux:     append([]float64{}, c.SurfFlux...),
		IfaceU:       append([]float64{}, c.IfaceU...),
		BdryU:        append([]float64{}, c.BdryU...),
		MortarUSmall: append([]float64{}, c.MortarUSmall...),
		MortarULarge: append([]float64{}, c.MortarULarge...),
		MortarFstar:  append([]float64{}, c.MortarFstar...),
	}
}
