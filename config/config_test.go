package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caseAdvection = `
Title: "Periodic advection"
Equation: advection1d
PolynomialOrder: 3
CFL: 0.4
FinalTime: 1.0
XMin: 0
XMax: 2
Kx: 8
PeriodicX: true
SpeedX: 1.5
InitType: sine
InitState: [1.0]
`

const caseShallowWater = `
Title: "Dam break between walls"
Equation: shallowwater1d
PolynomialOrder: 4
FinalTime: 0.5
XMin: 0
XMax: 10
Kx: 20
InitType: dambreak
InitState: [2.0, 0.0, 0.0]
BCs:
  xmin: wall
  xmax: wall
`

const caseRefined2D = `
Title: "Refined advection"
Equation: advection2d
PolynomialOrder: 2
FinalTime: 0.1
XMin: 0
XMax: 2
YMin: 0
YMax: 2
Kx: 2
Ky: 2
RefineCells: [0]
SpeedX: 1
SpeedY: 1
InitState: [0.5]
BCs:
  xmin: dirichlet
  xmax: dirichlet
  ymin: dirichlet
  ymax: dirichlet
DirichletState: [0.5]
`

func TestParseAndBuildAdvection(t *testing.T) {
	p := &Parameters{}
	require.NoError(t, p.Parse([]byte(caseAdvection)))
	assert.Equal(t, "advection1d", p.Equation)
	assert.Equal(t, 8, p.Kx)
	assert.True(t, p.PeriodicX)

	s, U, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, 8, s.Mesh.K)
	assert.Len(t, U, s.FieldSize())

	dU := make([]float64, s.FieldSize())
	require.NoError(t, s.Residual(dU, U, 0))
}

func TestParseAndBuildShallowWaterWalls(t *testing.T) {
	p := &Parameters{}
	require.NoError(t, p.Parse([]byte(caseShallowWater)))

	s, U, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, 9.81, p.Gravity, "gravity defaulted")
	assert.Equal(t, 3, s.NVar)

	// dam break: depth halves past the midpoint
	assert.InDelta(t, 2.0, U[s.Idx(0, 0, 0)], 1e-14)
	lastK := s.Mesh.K - 1
	assert.InDelta(t, 1.0, U[s.Idx(lastK, 0, s.Npe-1)], 1e-14)
}

func TestParseAndBuildRefined2D(t *testing.T) {
	p := &Parameters{}
	require.NoError(t, p.Parse([]byte(caseRefined2D)))

	s, U, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, 7, s.Mesh.K, "3 coarse + 4 children")
	assert.NotEmpty(t, s.Mesh.Mortars)

	// constant initial state over a refined mesh is steady
	dU := make([]float64, s.FieldSize())
	require.NoError(t, s.Residual(dU, U, 0))
	for i, v := range dU {
		assert.InDelta(t, 0, v, 1e-12, "index %d", i)
	}
}

func TestValidation(t *testing.T) {
	base := func() *Parameters {
		p := &Parameters{}
		require.NoError(t, p.Parse([]byte(caseAdvection)))
		return p
	}

	p := base()
	p.Equation = "mhd3d"
	_, _, err := p.Build()
	assert.Error(t, err)

	p = base()
	p.PolynomialOrder = 0
	_, _, err = p.Build()
	assert.Error(t, err)

	p = base()
	p.XMax = p.XMin
	_, _, err = p.Build()
	assert.Error(t, err)

	p = base()
	p.RefineCell = []int{0}
	_, _, err = p.Build()
	assert.Error(t, err, "refinement is 2D only")

	p = base()
	p.PeriodicX = false
	_, _, err = p.Build()
	assert.Error(t, err, "non-periodic sides need configured BCs")

	p = base()
	p.InitState = []float64{1, 2}
	_, _, err = p.Build()
	assert.Error(t, err, "state width must match the equation")

	p = base()
	p.Limiter = "flattener"
	_, _, err = p.Build()
	assert.Error(t, err)

	p = base()
	p.Limiter = "blended"
	_, _, err = p.Build()
	assert.NoError(t, err)
}
