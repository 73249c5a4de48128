package mesh

import (
	"fmt"
	"math"
	"sort"
)

// faceRec is a face of one element in half-cell integer units, used while
// assembling connectivity for locally refined meshes.
type faceRec struct {
	elem        int
	orientation int
	normalSign  int
	plane       int // coordinate along the orientation axis
	lo, hi      int // transverse span
}

// NewRefined2D builds a Kx×Ky mesh of square cells where each base cell
// listed in refine is split once into four children (lower-left,
// lower-right, upper-left, upper-right). Faces between two refined cells
// become conforming child interfaces; faces between a refined and an
// unrefined cell become mortars with the unrefined element on the large
// side. Only one refinement level is supported, which keeps every
// non-conforming face at the mandatory 2:1 ratio.
func NewRefined2D(xmin, xmax, ymin, ymax float64, Kx, Ky int, refine []int,
	periodicX, periodicY bool, tags BoundaryTags) (*Mesh, error) {
	if Kx < 1 || Ky < 1 {
		return nil, fmt.Errorf("need at least one element per direction, got %dx%d", Kx, Ky)
	}
	var (
		dx = (xmax - xmin) / float64(Kx)
		dy = (ymax - ymin) / float64(Ky)
	)
	if math.Abs(dx-dy) > 1e-12*math.Abs(dx) {
		return nil, fmt.Errorf("cells must be square: dx=%v dy=%v", dx, dy)
	}

	refined := make(map[int]bool, len(refine))
	for _, c := range refine {
		if c < 0 || c >= Kx*Ky {
			return nil, fmt.Errorf("refine target %d out of range", c)
		}
		refined[c] = true
	}

	var (
		m     = &Mesh{Dims: 2}
		h     = dx / 2 // half-cell: the integer unit of face coordinates
		faces []faceRec
	)

	addElem := func(cx, cy, length float64, level int) int {
		k := m.K
		m.K++
		m.Centers = append(m.Centers, [2]float64{cx, cy})
		m.Lengths = append(m.Lengths, length)
		m.Levels = append(m.Levels, level)
		m.InvJacobian = append(m.InvJacobian, 2./length)
		return k
	}

	// Integer face coordinates, wrapped on periodic directions.
	var (
		unitsX = 2 * Kx
		unitsY = 2 * Ky
	)
	wrap := func(v, units int, periodic bool) int {
		if periodic {
			return ((v % units) + units) % units
		}
		return v
	}

	addFaces := func(k, x0, y0, span int) {
		// span is the element size in half-cells (2 = base, 1 = child)
		faces = append(faces,
			faceRec{k, 0, -1, wrap(x0, unitsX, periodicX), y0, y0 + span},
			faceRec{k, 0, +1, wrap(x0+span, unitsX, periodicX), y0, y0 + span},
			faceRec{k, 1, -1, wrap(y0, unitsY, periodicY), x0, x0 + span},
			faceRec{k, 1, +1, wrap(y0+span, unitsY, periodicY), x0, x0 + span},
		)
	}

	for j := 0; j < Ky; j++ {
		for i := 0; i < Kx; i++ {
			base := j*Kx + i
			x0, y0 := 2*i, 2*j
			if !refined[base] {
				k := addElem(xmin+(float64(i)+0.5)*dx, ymin+(float64(j)+0.5)*dy, dx, 0)
				addFaces(k, x0, y0, 2)
				continue
			}
			for cj := 0; cj < 2; cj++ {
				for ci := 0; ci < 2; ci++ {
					cx := xmin + float64(i)*dx + (float64(ci)+0.5)*h
					cy := ymin + float64(j)*dy + (float64(cj)+0.5)*h
					k := addElem(cx, cy, h, 1)
					addFaces(k, x0+ci, y0+cj, 1)
				}
			}
		}
	}

	// Index faces by (orientation, plane, span) for exact and mortar lookup.
	type key struct{ orientation, plane, lo, hi int }
	byKey := make(map[key][]int)
	for idx, f := range faces {
		byKey[key{f.orientation, f.plane, f.lo, f.hi}] = append(
			byKey[key{f.orientation, f.plane, f.lo, f.hi}], idx)
	}

	consumed := make([]bool, len(faces))

	// Pass 1: conforming interfaces (exact span matches, opposite normals).
	// Faces are visited in element order so the interface list is
	// deterministic for a given input.
	for idx, f := range faces {
		if consumed[idx] {
			continue
		}
		idxs := byKey[key{f.orientation, f.plane, f.lo, f.hi}]
		if len(idxs) != 2 {
			continue
		}
		a, b := faces[idxs[0]], faces[idxs[1]]
		if a.normalSign == b.normalSign {
			return nil, fmt.Errorf("degenerate face match at orientation %d plane %d", f.orientation, f.plane)
		}
		left, right := a.elem, b.elem
		if a.normalSign < 0 {
			left, right = b.elem, a.elem
		}
		m.Interfaces = append(m.Interfaces, Interface{Left: left, Right: right, Orientation: a.orientation})
		consumed[idxs[0]], consumed[idxs[1]] = true, true
	}

	// Pass 2: mortars. A remaining span-2 face looks up the two half-span
	// faces covering it from the other side.
	for idx, f := range faces {
		if consumed[idx] || f.hi-f.lo != 2 {
			continue
		}
		mid := f.lo + 1
		lowerIdx := findOpposite(byKey[key{f.orientation, f.plane, f.lo, mid}], faces, f.normalSign)
		upperIdx := findOpposite(byKey[key{f.orientation, f.plane, mid, f.hi}], faces, f.normalSign)
		if lowerIdx < 0 || upperIdx < 0 {
			continue // physical boundary
		}
		largeSide := 0
		if f.normalSign < 0 {
			largeSide = 1
		}
		m.Mortars = append(m.Mortars, Mortar{
			Large:       f.elem,
			Small:       [MortarArity]int{faces[lowerIdx].elem, faces[upperIdx].elem},
			Valid:       [MortarArity]bool{true, true},
			Orientation: f.orientation,
			LargeSide:   largeSide,
		})
		consumed[idx], consumed[lowerIdx], consumed[upperIdx] = true, true, true
	}

	// Pass 3: everything left is a physical boundary.
	remaining := make([]int, 0)
	for idx := range faces {
		if !consumed[idx] {
			remaining = append(remaining, idx)
		}
	}
	sort.Ints(remaining)
	for _, idx := range remaining {
		f := faces[idx]
		b := BoundaryFace{Element: f.elem, Orientation: f.orientation, NormalSign: f.normalSign}
		switch {
		case f.orientation == 0 && f.normalSign < 0:
			b.Tag = tags.XMin
		case f.orientation == 0:
			b.Tag = tags.XMax
		case f.normalSign < 0:
			b.Tag = tags.YMin
		default:
			b.Tag = tags.YMax
		}
		m.Boundaries = append(m.Boundaries, b)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func findOpposite(idxs []int, faces []faceRec, normalSign int) int {
	for _, idx := range idxs {
		if faces[idx].normalSign == -normalSign {
			return idx
		}
	}
	return -1
}
