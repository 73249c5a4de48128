// Package mesh builds the immutable topology descriptor the residual
// pipeline consumes: element geometry, face connectivity classified into
// conforming interfaces, physical boundaries and mortars, and per-element
// Jacobians. Meshes are tree-structured Cartesian: every element is a line
// segment (1D) or square (2D) at some refinement level, with at most one
// level of refinement difference across any face.
package mesh

import (
	"fmt"
	"math"
)

// FaceKind classifies a face of an element. Every face belongs to exactly
// one kind for the lifetime of the mesh.
type FaceKind uint8

const (
	FaceInterface   FaceKind = iota // conforming, same refinement level
	FaceBoundary                    // physical boundary
	FaceMortarLarge                 // coarse side of a non-conforming face
	FaceMortarSmall                 // fine side of a non-conforming face
)

// Local face numbering: 1D uses {West, East}; 2D adds {South, North}.
const (
	West  = 0
	East  = 1
	South = 2
	North = 3
)

// Interface is a conforming face between two same-level elements.
// Left is the element on the negative side of the orientation axis
// (its East/North face), Right on the positive side.
type Interface struct {
	Left, Right int
	Orientation int // 0 = x, 1 = y
}

// BoundaryFace is a physical boundary face of one element.
type BoundaryFace struct {
	Element     int
	Orientation int
	NormalSign  int    // +1: outward normal along +axis, -1: along -axis
	Tag         string // selects the boundary-condition callable
}

// MortarArity is the maximum number of small-side slots (2 in 2D).
const MortarArity = 2

// Mortar is a non-conforming face: one large element bordering up to
// MortarArity half-size elements. Small[0] covers the lower half of the
// large face (in the transverse coordinate), Small[1] the upper half.
// Valid is the authoritative mask: a false entry marks a padding slot with
// no real neighbor, excluded from interpolation, flux and restriction.
type Mortar struct {
	Large       int
	Small       [MortarArity]int
	Valid       [MortarArity]bool
	Orientation int
	LargeSide   int // 0: large is on the negative side, 1: on the positive side

	// EqualResolution marks the degenerate mortar used to verify the
	// conforming limit: slot 0 spans the whole large face at the same
	// level and interpolation/restriction are the identity.
	EqualResolution bool
}

// Mesh is the immutable topology descriptor.
type Mesh struct {
	Dims int
	K    int // number of elements

	// Per-element geometry. Elements are squares (2D) or segments (1D);
	// Length is the side length, halved per refinement level.
	Centers [][2]float64
	Lengths []float64
	Levels  []int

	// InvJacobian[k] = 2/Lengths[k], the reference-to-physical scaling
	// shared by both directions of an isotropic Cartesian element.
	InvJacobian []float64

	Interfaces []Interface
	Boundaries []BoundaryFace
	Mortars    []Mortar
}

// NumFaces returns the number of local faces per element.
func (m *Mesh) NumFaces() int { return 2 * m.Dims }

// Validate checks structural invariants of the descriptor: index bounds,
// face-kind consistency and Jacobian positivity. Construction-time errors
// are fatal for the pipeline, which refuses to run on an invalid mesh.
func (m *Mesh) Validate() error {
	if m.Dims != 1 && m.Dims != 2 {
		return fmt.Errorf("unsupported dimension %d", m.Dims)
	}
	if m.K <= 0 {
		return fmt.Errorf("mesh has no elements")
	}
	if len(m.Centers) != m.K || len(m.Lengths) != m.K ||
		len(m.Levels) != m.K || len(m.InvJacobian) != m.K {
		return fmt.Errorf("per-element arrays disagree with K=%d", m.K)
	}
	for k := 0; k < m.K; k++ {
		if !(m.Lengths[k] > 0) || math.IsNaN(m.Lengths[k]) {
			return fmt.Errorf("element %d has non-positive length %v", k, m.Lengths[k])
		}
		if math.Abs(m.InvJacobian[k]*m.Lengths[k]-2.) > 1e-12 {
			return fmt.Errorf("element %d Jacobian inconsistent with length", k)
		}
	}
	inRange := func(e int) bool { return e >= 0 && e < m.K }
	for i, iface := range m.Interfaces {
		if !inRange(iface.Left) || !inRange(iface.Right) {
			return fmt.Errorf("interface %d references element out of range", i)
		}
		if iface.Orientation < 0 || iface.Orientation >= m.Dims {
			return fmt.Errorf("interface %d has orientation %d in %dD", i, iface.Orientation, m.Dims)
		}
	}
	for i, b := range m.Boundaries {
		if !inRange(b.Element) {
			return fmt.Errorf("boundary %d references element out of range", i)
		}
		if b.NormalSign != 1 && b.NormalSign != -1 {
			return fmt.Errorf("boundary %d has normal sign %d", i, b.NormalSign)
		}
		if b.Tag == "" {
			return fmt.Errorf("boundary %d has no tag", i)
		}
	}
	for i, mt := range m.Mortars {
		if !inRange(mt.Large) {
			return fmt.Errorf("mortar %d large element out of range", i)
		}
		anyValid := false
		for s := 0; s < MortarArity; s++ {
			if mt.Valid[s] {
				anyValid = true
				if !inRange(mt.Small[s]) {
					return fmt.Errorf("mortar %d small slot %d out of range", i, s)
				}
				if !mt.EqualResolution && m.Levels[mt.Small[s]] != m.Levels[mt.Large]+1 {
					return fmt.Errorf("mortar %d slot %d is not one level finer than the large side", i, s)
				}
			}
		}
		if !anyValid {
			return fmt.Errorf("mortar %d has no valid slot", i)
		}
		if mt.EqualResolution && mt.Valid[1] {
			return fmt.Errorf("mortar %d: equal-resolution mortars use slot 0 only", i)
		}
	}
	return nil
}

// LocalFace returns the local face index of the element on the given side
// of an axis-aligned face.
func LocalFace(orientation, normalSign int) int {
	if orientation == 0 {
		if normalSign > 0 {
			return East
		}
		return West
	}
	if normalSign > 0 {
		return North
	}
	return South
}

// ConvertInterfaceToMortar rewrites conforming interface idx as an
// equal-resolution mortar with a single valid slot. The rewritten mesh must
// produce the same residual as the original, which is the authoritative
// check that mortar interpolation followed by restriction reduces to the
// plain interface computation.
func (m *Mesh) ConvertInterfaceToMortar(idx int) (*Mesh, error) {
	if idx < 0 || idx >= len(m.Interfaces) {
		return nil, fmt.Errorf("interface %d out of range", idx)
	}
	out := m.Clone()
	iface := out.Interfaces[idx]
	out.Interfaces = append(out.Interfaces[:idx], out.Interfaces[idx+1:]...)
	out.Mortars = append(out.Mortars, Mortar{
		Large:           iface.Left,
		Small:           [MortarArity]int{iface.Right, -1},
		Valid:           [MortarArity]bool{true, false},
		Orientation:     iface.Orientation,
		LargeSide:       0,
		EqualResolution: true,
	})
	return out, nil
}

// Clone returns a value-semantic deep copy; mutations of the copy never
// alias the original. Tests rely on this to build independent host and
// device configurations.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Dims:        m.Dims,
		K:           m.K,
		Centers:     append([][2]float64{}, m.Centers...),
		Lengths:     append([]float64{}, m.Lengths...),
		Levels:      append([]int{}, m.Levels...),
		InvJacobian: append([]float64{}, m.InvJacobian...),
		Interfaces:  append([]Interface{}, m.Interfaces...),
		Boundaries:  append([]BoundaryFace{}, m.Boundaries...),
		Mortars:     append([]Mortar{}, m.Mortars...),
	}
	return out
}
