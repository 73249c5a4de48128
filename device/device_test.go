package device

import (
	"math"
	"sync"
	"testing"

	"github.com/notargets/gocca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czha/dgtree/equations"
	"github.com/czha/dgtree/mesh"
	"github.com/czha/dgtree/solver"
)

var (
	devOnce sync.Once
	testDev *gocca.OCCADevice
	devErr  error
)

func requireDevice(t *testing.T) *gocca.OCCADevice {
	t.Helper()
	devOnce.Do(func() {
		testDev, devErr = NewDevice("")
	})
	if devErr != nil {
		t.Skipf("no OCCA backend available: %v", devErr)
	}
	return testDev
}

func advectionSolver2D(t *testing.T, m *mesh.Mesh, withSource bool) *solver.Solver {
	t.Helper()
	sys := equations.NewLinearAdvection2D(1.1, -0.6)
	reg, err := equations.NewFluxRegistry(sys, equations.LaxFriedrichsFlux(sys))
	require.NoError(t, err)
	reg.WithDeviceSurface(equations.LaxFriedrichsDeviceSource())

	cfg := solver.Config{
		Mesh:     m,
		Order:    3,
		Registry: reg,
		Boundary: map[string]equations.BoundaryCondition{
			"wall": equations.NewDirichletBC("wall", []float64{0.5}, reg.Surface),
		},
	}
	if withSource {
		cfg.Source = &equations.ConstantSource{S: []float64{0.25}}
	}
	s, err := solver.New(cfg)
	require.NoError(t, err)
	return s
}

func shallowWaterSolver1D(t *testing.T) *solver.Solver {
	t.Helper()
	m, err := mesh.NewUniform1D(0, 2, 4, true, mesh.DefaultTags())
	require.NoError(t, err)
	sys := equations.NewShallowWater1D(9.81)
	reg, err := equations.NewFluxRegistry(sys, equations.ShallowWaterFlux(sys))
	require.NoError(t, err)
	reg.WithDeviceSurface(equations.ShallowWaterFluxDeviceSource())
	s, err := solver.New(solver.Config{Mesh: m, Order: 4, Registry: reg})
	require.NoError(t, err)
	return s
}

func TestTransferRoundTripBitIdentical(t *testing.T) {
	dev := requireDevice(t)
	m, err := mesh.NewUniform1D(0, 1, 2, true, mesh.DefaultTags())
	require.NoError(t, err)
	sys := equations.NewLinearAdvection1D(1)
	reg, err := equations.NewFluxRegistry(sys, equations.LaxFriedrichsFlux(sys))
	require.NoError(t, err)
	reg.WithDeviceSurface(equations.LaxFriedrichsDeviceSource())
	s, err := solver.New(solver.Config{Mesh: m, Order: 3, Registry: reg})
	require.NoError(t, err)

	p, err := NewPipeline(dev, s)
	require.NoError(t, err)
	defer p.Free()

	// awkward bit patterns must survive untouched when no kernel runs
	U := make([]float64, s.FieldSize())
	patterns := []float64{
		0, math.Copysign(0, -1), 1, -1, math.Pi,
		math.SmallestNonzeroFloat64, math.MaxFloat64,
		math.Inf(1), math.Inf(-1), math.NaN(),
	}
	for i := range U {
		U[i] = patterns[i%len(patterns)]
	}

	back := make([]float64, len(U))
	require.NoError(t, p.UploadSolution(U))
	require.NoError(t, p.DownloadSolution(back))
	for i := range U {
		assert.Equal(t, math.Float64bits(U[i]), math.Float64bits(back[i]),
			"bit pattern at index %d", i)
	}
}

func TestResidualParityShallowWater(t *testing.T) {
	dev := requireDevice(t)
	s := shallowWaterSolver1D(t)
	p, err := NewPipeline(dev, s)
	require.NoError(t, err)
	defer p.Free()

	// topography step across element boundaries exercises the
	// non-conservative halves on both pipelines
	U := make([]float64, s.FieldSize())
	s.SetInitial(U, func(x [2]float64) []float64 {
		b := 0.0
		if x[0] > 1 {
			b = 0.4
		}
		return []float64{2.0 + 0.1*math.Sin(math.Pi*x[0]), 0.3, b}
	})

	dUHost := make([]float64, s.FieldSize())
	dUDev := make([]float64, s.FieldSize())
	require.NoError(t, s.Residual(dUHost, U, 0))
	require.NoError(t, p.Residual(dUDev, U, 0))
	require.NoError(t, ComparePadded(dUHost, dUDev, nil, 1e-12))
}

func TestResidualParityRefinedMeshWithMortars(t *testing.T) {
	dev := requireDevice(t)
	m, err := mesh.NewRefined2D(0, 2, 0, 2, 2, 2, []int{0}, false, false, mesh.DefaultTags())
	require.NoError(t, err)
	require.NotEmpty(t, m.Mortars)

	s := advectionSolver2D(t, m, true)
	p, err := NewPipeline(dev, s)
	require.NoError(t, err)
	defer p.Free()

	U := make([]float64, s.FieldSize())
	s.SetInitial(U, func(x [2]float64) []float64 {
		return []float64{math.Sin(2*x[0]) * math.Cos(x[1])}
	})

	dUHost := make([]float64, s.FieldSize())
	dUDev := make([]float64, s.FieldSize())
	require.NoError(t, s.Residual(dUHost, U, 0.5))
	require.NoError(t, p.Residual(dUDev, U, 0.5))
	require.NoError(t, ComparePadded(dUHost, dUDev, nil, 1e-12))
}

func TestStageEquivalence(t *testing.T) {
	dev := requireDevice(t)
	base, err := mesh.NewUniform2D(0, 2, 0, 2, 2, 2, false, false, mesh.DefaultTags())
	require.NoError(t, err)
	// recast one interface as an equal-resolution mortar so the mortar
	// buffers carry a padding slot
	m, err := base.ConvertInterfaceToMortar(0)
	require.NoError(t, err)

	s := advectionSolver2D(t, m, false)
	p, err := NewPipeline(dev, s)
	require.NoError(t, err)
	defer p.Free()

	U := make([]float64, s.FieldSize())
	s.SetInitial(U, func(x [2]float64) []float64 {
		return []float64{math.Exp(-x[0]) + 0.5*x[1]*x[1]}
	})
	require.NoError(t, p.UploadSolution(U))

	var (
		nvar = s.NVar
		nfp  = s.NFp
	)
	mortarInvalid := func(i int) bool {
		slot := (i / (nvar * nfp)) % mesh.MortarArity
		mi := i / (mesh.MortarArity * nvar * nfp)
		return !m.Mortars[mi].Valid[slot]
	}
	download := func(name string, n int) []float64 {
		buf := make([]float64, n)
		require.NoError(t, p.DownloadBuffer(name, buf))
		return buf
	}

	dUHost := make([]float64, s.FieldSize())
	dUDev := make([]float64, s.FieldSize())

	s.VolumeStage(dUHost, U)
	require.NoError(t, p.RunStage("volumeStage", 0))
	require.NoError(t, p.DownloadResidual(dUDev))
	require.NoError(t, ComparePadded(dUHost, dUDev, nil, 1e-12), "volume stage")

	s.InterfaceStage(U)
	require.NoError(t, p.RunStage("interfaceStage", 0))
	require.NoError(t, ComparePadded(s.C.IfaceU, download("ifaceU", len(s.C.IfaceU)), nil, 1e-13), "interface traces")

	require.NoError(t, s.BoundaryStage(U, 0))
	require.NoError(t, p.RunStage("boundaryStage", 0))
	require.NoError(t, ComparePadded(s.C.BdryU, download("bdryU", len(s.C.BdryU)), nil, 1e-13), "boundary traces")

	s.MortarStage(U)
	require.NoError(t, p.RunStage("mortarFluxStage", 0))
	require.NoError(t, p.RunStage("mortarRestrictStage", 0))
	require.NoError(t, ComparePadded(s.C.MortarUSmall, download("mortarUSmall", len(s.C.MortarUSmall)), mortarInvalid, 1e-13), "small traces")
	require.NoError(t, ComparePadded(s.C.MortarULarge, download("mortarULarge", len(s.C.MortarULarge)), mortarInvalid, 1e-13), "interpolated traces")
	require.NoError(t, ComparePadded(s.C.MortarFstar, download("mortarFstar", len(s.C.MortarFstar)), mortarInvalid, 1e-12), "mortar fluxes")
	require.NoError(t, ComparePadded(s.C.SurfFlux, download("surfFlux", len(s.C.SurfFlux)), nil, 1e-12), "surface flux slices")

	s.SurfaceStage(dUHost)
	require.NoError(t, p.RunStage("surfaceStage", 0))
	require.NoError(t, p.DownloadResidual(dUDev))
	require.NoError(t, ComparePadded(dUHost, dUDev, nil, 1e-12), "surface integral")

	s.JacobianStage(dUHost)
	require.NoError(t, p.RunStage("jacobianStage", 0))
	require.NoError(t, p.DownloadResidual(dUDev))
	require.NoError(t, ComparePadded(dUHost, dUDev, nil, 1e-12), "jacobian scaling")
}

func TestHostOnlyProvidersRejected(t *testing.T) {
	dev := requireDevice(t)
	m, err := mesh.NewUniform1D(0, 1, 2, false, mesh.BoundaryTags{XMin: "w", XMax: "w"})
	require.NoError(t, err)
	sys := equations.NewLinearAdvection1D(1)

	newReg := func() *equations.FluxRegistry {
		reg, err := equations.NewFluxRegistry(sys, equations.LaxFriedrichsFlux(sys))
		require.NoError(t, err)
		return reg
	}
	dirichlet := func(reg *equations.FluxRegistry) equations.BoundaryCondition {
		return equations.NewDirichletBC("w", []float64{0}, reg.Surface)
	}

	t.Run("missing device surface flux", func(t *testing.T) {
		reg := newReg()
		s, err := solver.New(solver.Config{Mesh: m, Order: 2, Registry: reg,
			Boundary: map[string]equations.BoundaryCondition{"w": dirichlet(reg)}})
		require.NoError(t, err)
		_, err = NewPipeline(dev, s)
		assert.Error(t, err)
	})

	t.Run("host-only boundary condition", func(t *testing.T) {
		reg := newReg().WithDeviceSurface(equations.LaxFriedrichsDeviceSource())
		hostBC := &equations.FuncBC{Label: "w",
			Fn: func(f, uInner []float64, orientation, normalSign int, x []float64, tt float64) {
				f[0] = 0
			}}
		s, err := solver.New(solver.Config{Mesh: m, Order: 2, Registry: reg,
			Boundary: map[string]equations.BoundaryCondition{"w": hostBC}})
		require.NoError(t, err)
		_, err = NewPipeline(dev, s)
		assert.Error(t, err)
	})

	t.Run("host-only source term", func(t *testing.T) {
		reg := newReg().WithDeviceSurface(equations.LaxFriedrichsDeviceSource())
		s, err := solver.New(solver.Config{Mesh: m, Order: 2, Registry: reg,
			Boundary: map[string]equations.BoundaryCondition{"w": dirichlet(reg)},
			Source: &equations.FuncSource{Fn: func(sv, u, x []float64, tt float64) {
				sv[0] = 1
			}}})
		require.NoError(t, err)
		_, err = NewPipeline(dev, s)
		assert.Error(t, err)
	})

	t.Run("host-only volume scheme", func(t *testing.T) {
		mp, err := mesh.NewUniform1D(0, 1, 4, true, mesh.DefaultTags())
		require.NoError(t, err)
		reg := newReg().WithDeviceSurface(equations.LaxFriedrichsDeviceSource())
		s, err := solver.New(solver.Config{Mesh: mp, Order: 3, Registry: reg, Volume: &solver.Blended{}})
		require.NoError(t, err)
		_, err = NewPipeline(dev, s)
		assert.Error(t, err)
	})
}

func TestIntegratorRunsOnDevicePipeline(t *testing.T) {
	dev := requireDevice(t)
	m, err := mesh.NewUniform1D(0, 1, 2, true, mesh.DefaultTags())
	require.NoError(t, err)
	sys := equations.NewLinearAdvection1D(2)
	reg, err := equations.NewFluxRegistry(sys, equations.LaxFriedrichsFlux(sys))
	require.NoError(t, err)
	reg.WithDeviceSurface(equations.LaxFriedrichsDeviceSource())
	s, err := solver.New(solver.Config{Mesh: m, Order: 3, Registry: reg})
	require.NoError(t, err)

	p, err := NewPipeline(dev, s)
	require.NoError(t, err)
	defer p.Free()

	U := make([]float64, s.FieldSize())
	s.SetInitial(U, func(x [2]float64) []float64 { return []float64{1.25} })

	it := solver.NewIntegrator(p)
	require.NoError(t, it.Run(U, 0.1, 0.02, nil))
	for i, v := range U {
		assert.InDelta(t, 1.25, v, 1e-12, "constant state stays constant, index %d", i)
	}
}

func TestComparePaddedRule(t *testing.T) {
	nan := math.NaN()
	invalidAt1 := func(i int) bool { return i == 1 }

	assert.NoError(t, ComparePadded([]float64{1, nan, 3}, []float64{1, 0, 3}, invalidAt1, 1e-14))
	assert.Error(t, ComparePadded([]float64{1, nan, 3}, []float64{1, 0.5, 3}, invalidAt1, 1e-14),
		"nonzero device value in a padding slot")
	assert.Error(t, ComparePadded([]float64{nan, nan, 3}, []float64{0, 0, 3}, invalidAt1, 1e-14),
		"NaN outside padding slots")
	assert.Error(t, ComparePadded([]float64{1, nan, 3}, []float64{1.1, 0, 3}, invalidAt1, 1e-14))
	assert.Error(t, ComparePadded([]float64{1, 2}, []float64{1}, nil, 1e-14))
	assert.NoError(t, ComparePadded([]float64{1e16}, []float64{1e16 + 1}, nil, 1e-12),
		"relative tolerance on large magnitudes")
}
