// Package config parses the YAML case files the command line consumes and
// turns them into runnable solver configurations.
package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/ghodss/yaml"

	"github.com/czha/dgtree/equations"
	"github.com/czha/dgtree/mesh"
	"github.com/czha/dgtree/solver"
)

// Parameters obtained from the YAML input file.
type Parameters struct {
	Title           string  `yaml:"Title"`
	Equation        string  `yaml:"Equation"` // advection1d, advection2d, shallowwater1d, euler1d
	PolynomialOrder int     `yaml:"PolynomialOrder"`
	CFL             float64 `yaml:"CFL"`
	FinalTime       float64 `yaml:"FinalTime"`

	XMin       float64 `yaml:"XMin"`
	XMax       float64 `yaml:"XMax"`
	YMin       float64 `yaml:"YMin"`
	YMax       float64 `yaml:"YMax"`
	Kx         int     `yaml:"Kx"`
	Ky         int     `yaml:"Ky"`
	PeriodicX  bool    `yaml:"PeriodicX"`
	PeriodicY  bool    `yaml:"PeriodicY"`
	RefineCell []int   `yaml:"RefineCells"` // base cells split once into four children

	SpeedX  float64 `yaml:"SpeedX"`
	SpeedY  float64 `yaml:"SpeedY"`
	Gravity float64 `yaml:"Gravity"`
	Gamma   float64 `yaml:"Gamma"`

	InitType     string            `yaml:"InitType"` // constant, sine, dambreak
	InitState    []float64         `yaml:"InitState"`
	Limiter      string            `yaml:"Limiter"` // empty or "blended"
	FluxType     string            `yaml:"FluxType"`
	BCs          map[string]string `yaml:"BCs"` // side tag -> wall | dirichlet
	DirichletVal []float64         `yaml:"DirichletState"`
}

// Parse fills the parameters from YAML case-file bytes.
func (p *Parameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parsing case file: %w", err)
	}
	return nil
}

// Print echoes the effective configuration, gocfd-report style.
func (p *Parameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", p.Title)
	fmt.Printf("[%s]\t\t= Equation\n", p.Equation)
	fmt.Printf("[%d]\t\t\t= Polynomial Order\n", p.PolynomialOrder)
	fmt.Printf("%8.5f\t\t= CFL\n", p.CFL)
	fmt.Printf("%8.5f\t\t= FinalTime\n", p.FinalTime)
	keys := make([]string, 0, len(p.BCs))
	for k := range p.BCs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %v\n", key, p.BCs[key])
	}
}

func (p *Parameters) dims() int {
	switch p.Equation {
	case "advection2d":
		return 2
	default:
		return 1
	}
}

// Validate applies defaults and rejects inconsistent parameter sets before
// any allocation happens.
func (p *Parameters) Validate() error {
	if p.PolynomialOrder < 1 {
		return fmt.Errorf("PolynomialOrder must be at least 1, got %d", p.PolynomialOrder)
	}
	if p.Kx < 1 {
		return fmt.Errorf("Kx must be at least 1, got %d", p.Kx)
	}
	if p.dims() == 2 && p.Ky < 1 {
		return fmt.Errorf("Ky must be at least 1 for a 2D run, got %d", p.Ky)
	}
	if p.XMax <= p.XMin {
		return fmt.Errorf("XMax must exceed XMin")
	}
	if p.CFL == 0 {
		p.CFL = 0.5
	}
	switch p.Equation {
	case "advection1d", "advection2d":
	case "shallowwater1d":
		if p.Gravity == 0 {
			p.Gravity = 9.81
		}
	case "euler1d":
		if p.Gamma == 0 {
			p.Gamma = 1.4
		}
	default:
		return fmt.Errorf("unknown equation %q", p.Equation)
	}
	if len(p.RefineCell) > 0 && p.dims() != 2 {
		return fmt.Errorf("RefineCells requires a 2D run")
	}
	return nil
}

func (p *Parameters) registry() (*equations.FluxRegistry, error) {
	var (
		sys     equations.System
		surface equations.SurfaceFlux
		devSrc  string
	)
	switch p.Equation {
	case "advection1d":
		sys = equations.NewLinearAdvection1D(p.SpeedX)
	case "advection2d":
		sys = equations.NewLinearAdvection2D(p.SpeedX, p.SpeedY)
	case "shallowwater1d":
		sw := equations.NewShallowWater1D(p.Gravity)
		reg, err := equations.NewFluxRegistry(sw, equations.ShallowWaterFlux(sw))
		if err != nil {
			return nil, err
		}
		return reg.WithDeviceSurface(equations.ShallowWaterFluxDeviceSource()), nil
	case "euler1d":
		sys = equations.NewCompressibleEuler1D(p.Gamma)
	default:
		return nil, fmt.Errorf("unknown equation %q", p.Equation)
	}
	switch p.FluxType {
	case "", "lax":
		surface = equations.LaxFriedrichsFlux(sys)
		devSrc = equations.LaxFriedrichsDeviceSource()
	case "central":
		surface = equations.CentralFlux(sys)
	default:
		return nil, fmt.Errorf("unknown flux type %q", p.FluxType)
	}
	reg, err := equations.NewFluxRegistry(sys, surface)
	if err != nil {
		return nil, err
	}
	return reg.WithDeviceSurface(devSrc), nil
}

func (p *Parameters) buildMesh() (*mesh.Mesh, error) {
	if p.dims() == 1 {
		tags := mesh.BoundaryTags{XMin: "xmin", XMax: "xmax"}
		return mesh.NewUniform1D(p.XMin, p.XMax, p.Kx, p.PeriodicX, tags)
	}
	tags := mesh.BoundaryTags{XMin: "xmin", XMax: "xmax", YMin: "ymin", YMax: "ymax"}
	if len(p.RefineCell) > 0 {
		return mesh.NewRefined2D(p.XMin, p.XMax, p.YMin, p.YMax, p.Kx, p.Ky,
			p.RefineCell, p.PeriodicX, p.PeriodicY, tags)
	}
	return mesh.NewUniform2D(p.XMin, p.XMax, p.YMin, p.YMax, p.Kx, p.Ky,
		p.PeriodicX, p.PeriodicY, tags)
}

func (p *Parameters) boundaries(m *mesh.Mesh, reg *equations.FluxRegistry) (map[string]equations.BoundaryCondition, error) {
	seen := map[string]bool{}
	for _, b := range m.Boundaries {
		seen[b.Tag] = true
	}
	bcs := make(map[string]equations.BoundaryCondition, len(seen))
	for tag := range seen {
		kind, ok := p.BCs[tag]
		if !ok {
			return nil, fmt.Errorf("no boundary condition configured for side %q", tag)
		}
		switch kind {
		case "wall":
			bcs[tag] = equations.NewReflectiveWallBC(tag, reg.System, reg.Surface)
		case "dirichlet":
			if len(p.DirichletVal) != reg.NumVars {
				return nil, fmt.Errorf("DirichletState needs %d values, got %d", reg.NumVars, len(p.DirichletVal))
			}
			bcs[tag] = equations.NewDirichletBC(tag, p.DirichletVal, reg.Surface)
		default:
			return nil, fmt.Errorf("unknown boundary condition %q for side %q", kind, tag)
		}
	}
	return bcs, nil
}

func (p *Parameters) initial(nvar int) (func(x [2]float64) []float64, error) {
	state := p.InitState
	if len(state) == 0 {
		state = make([]float64, nvar)
		for v := range state {
			state[v] = 1
		}
	}
	if len(state) != nvar {
		return nil, fmt.Errorf("InitState needs %d values, got %d", nvar, len(state))
	}
	base := append([]float64{}, state...)
	switch p.InitType {
	case "", "constant":
		return func(x [2]float64) []float64 { return base }, nil
	case "sine":
		// sinusoidal perturbation of the first variable across the domain
		span := p.XMax - p.XMin
		return func(x [2]float64) []float64 {
			u := append([]float64{}, base...)
			u[0] += 0.1 * math.Sin(2*math.Pi*(x[0]-p.XMin)/span)
			return u
		}, nil
	case "dambreak":
		mid := 0.5 * (p.XMin + p.XMax)
		return func(x [2]float64) []float64 {
			u := append([]float64{}, base...)
			if x[0] > mid {
				u[0] *= 0.5
			}
			return u
		}, nil
	default:
		return nil, fmt.Errorf("unknown init type %q", p.InitType)
	}
}

// Build assembles the solver and initial solution described by the
// parameters. Validate is applied first, so zero-value defaults are in
// effect.
func (p *Parameters) Build() (*solver.Solver, []float64, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	reg, err := p.registry()
	if err != nil {
		return nil, nil, err
	}
	m, err := p.buildMesh()
	if err != nil {
		return nil, nil, err
	}
	bcs, err := p.boundaries(m, reg)
	if err != nil {
		return nil, nil, err
	}

	cfg := solver.Config{Mesh: m, Order: p.PolynomialOrder, Registry: reg, Boundary: bcs}
	if p.Limiter == "blended" {
		cfg.Volume = &solver.Blended{}
	} else if p.Limiter != "" {
		return nil, nil, fmt.Errorf("unknown limiter %q", p.Limiter)
	}
	s, err := solver.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	init, err := p.initial(reg.NumVars)
	if err != nil {
		return nil, nil, err
	}
	U := make([]float64, s.FieldSize())
	s.SetInitial(U, init)
	return s, U, nil
}
