package mesh

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
)

// BoundaryTags names the boundary-condition groups of the domain sides.
// Tags on periodic sides are ignored.
type BoundaryTags struct {
	XMin, XMax string
	YMin, YMax string
}

// DefaultTags tags every side "wall".
func DefaultTags() BoundaryTags {
	return BoundaryTags{XMin: "wall", XMax: "wall", YMin: "wall", YMax: "wall"}
}

// NewUniform1D builds a uniform 1D mesh of K elements on [xmin, xmax].
// Conforming faces are matched through the face-to-vertex incidence
// product: two faces sharing a vertex are the two sides of one interface.
func NewUniform1D(xmin, xmax float64, K int, periodic bool, tags BoundaryTags) (*Mesh, error) {
	if K < 1 {
		return nil, fmt.Errorf("need at least one element, got %d", K)
	}
	if periodic && K < 2 {
		return nil, fmt.Errorf("periodic mesh needs at least two elements")
	}
	var (
		dx         = (xmax - xmin) / float64(K)
		totalFaces = 2 * K
		Nv         = K + 1
	)
	if periodic {
		Nv = K
	}

	m := &Mesh{Dims: 1, K: K}
	for k := 0; k < K; k++ {
		m.Centers = append(m.Centers, [2]float64{xmin + (float64(k)+0.5)*dx, 0})
		m.Lengths = append(m.Lengths, dx)
		m.Levels = append(m.Levels, 0)
		m.InvJacobian = append(m.InvJacobian, 2./dx)
	}

	// Face f = 2k+side sits at vertex k (West) or k+1 (East), modulo wrap.
	fToV := sparse.NewDOK(totalFaces, Nv)
	for k := 0; k < K; k++ {
		fToV.Set(2*k+West, k%Nv, 1)
		fToV.Set(2*k+East, (k+1)%Nv, 1)
	}
	spFToV := fToV.ToCSR()
	spFToF := sparse.NewCSR(totalFaces, totalFaces, nil, nil, nil)
	spFToF.Mul(spFToV, spFToV.T())

	matched := make([]bool, totalFaces)
	spFToF.DoNonZero(func(f1, f2 int, v float64) {
		if f1 >= f2 || v < 1 {
			return
		}
		k1, side1 := f1/2, f1%2
		k2, _ := f2/2, f2%2
		matched[f1], matched[f2] = true, true
		left, right := k1, k2
		if side1 == West {
			left, right = k2, k1
		}
		m.Interfaces = append(m.Interfaces, Interface{Left: left, Right: right, Orientation: 0})
	})

	for f := 0; f < totalFaces; f++ {
		if matched[f] {
			continue
		}
		k, side := f/2, f%2
		b := BoundaryFace{Element: k, Orientation: 0}
		if side == West {
			b.NormalSign = -1
			b.Tag = tags.XMin
		} else {
			b.NormalSign = +1
			b.Tag = tags.XMax
		}
		m.Boundaries = append(m.Boundaries, b)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewUniform2D builds a uniform mesh of Kx×Ky square elements on
// [xmin,xmax]×[ymin,ymax]. Cells must be square since tree elements carry a
// single isotropic Jacobian. Face matching uses the same incidence-product
// construction as 1D: two faces sharing both vertices are one interface.
func NewUniform2D(xmin, xmax, ymin, ymax float64, Kx, Ky int,
	periodicX, periodicY bool, tags BoundaryTags) (*Mesh, error) {
	if Kx < 1 || Ky < 1 {
		return nil, fmt.Errorf("need at least one element per direction, got %dx%d", Kx, Ky)
	}
	if (periodicX && Kx < 2) || (periodicY && Ky < 2) {
		return nil, fmt.Errorf("periodic directions need at least two elements")
	}
	var (
		dx = (xmax - xmin) / float64(Kx)
		dy = (ymax - ymin) / float64(Ky)
	)
	if math.Abs(dx-dy) > 1e-12*math.Abs(dx) {
		return nil, fmt.Errorf("cells must be square: dx=%v dy=%v", dx, dy)
	}

	var (
		K          = Kx * Ky
		nvx        = Kx + 1
		nvy        = Ky + 1
		totalFaces = 4 * K
	)
	if periodicX {
		nvx = Kx
	}
	if periodicY {
		nvy = Ky
	}
	vid := func(i, j int) int { return (j % nvy) * nvx + (i % nvx) }

	m := &Mesh{Dims: 2, K: K}
	for j := 0; j < Ky; j++ {
		for i := 0; i < Kx; i++ {
			m.Centers = append(m.Centers, [2]float64{
				xmin + (float64(i)+0.5)*dx,
				ymin + (float64(j)+0.5)*dy,
			})
			m.Lengths = append(m.Lengths, dx)
			m.Levels = append(m.Levels, 0)
			m.InvJacobian = append(m.InvJacobian, 2./dx)
		}
	}

	// Two vertices per face; a shared pair marks a conforming interface.
	fToV := sparse.NewDOK(totalFaces, nvx*nvy)
	for j := 0; j < Ky; j++ {
		for i := 0; i < Kx; i++ {
			k := j*Kx + i
			fToV.Set(4*k+West, vid(i, j), 1)
			fToV.Set(4*k+West, vid(i, j+1), 1)
			fToV.Set(4*k+East, vid(i+1, j), 1)
			fToV.Set(4*k+East, vid(i+1, j+1), 1)
			fToV.Set(4*k+South, vid(i, j), 1)
			fToV.Set(4*k+South, vid(i+1, j), 1)
			fToV.Set(4*k+North, vid(i, j+1), 1)
			fToV.Set(4*k+North, vid(i+1, j+1), 1)
		}
	}
	spFToV := fToV.ToCSR()
	spFToF := sparse.NewCSR(totalFaces, totalFaces, nil, nil, nil)
	spFToF.Mul(spFToV, spFToV.T())

	matched := make([]bool, totalFaces)
	spFToF.DoNonZero(func(f1, f2 int, v float64) {
		if f1 >= f2 || v < 2 {
			return
		}
		k1, side1 := f1/4, f1%4
		k2, _ := f2/4, f2%4
		matched[f1], matched[f2] = true, true
		orientation := 0
		if side1 == South || side1 == North {
			orientation = 1
		}
		left, right := k1, k2
		if side1 == West || side1 == South {
			left, right = k2, k1
		}
		m.Interfaces = append(m.Interfaces, Interface{Left: left, Right: right, Orientation: orientation})
	})

	for f := 0; f < totalFaces; f++ {
		if matched[f] {
			continue
		}
		k, side := f/4, f%4
		b := BoundaryFace{Element: k}
		switch side {
		case West:
			b.Orientation, b.NormalSign, b.Tag = 0, -1, tags.XMin
		case East:
			b.Orientation, b.NormalSign, b.Tag = 0, +1, tags.XMax
		case South:
			b.Orientation, b.NormalSign, b.Tag = 1, -1, tags.YMin
		case North:
			b.Orientation, b.NormalSign, b.Tag = 1, +1, tags.YMax
		}
		m.Boundaries = append(m.Boundaries, b)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
