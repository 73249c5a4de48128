// Package device runs the residual pipeline on an OCCA-backed accelerator.
// Kernels are generated from the same configuration the sequential solver
// was built from, so the two pipelines share layouts and must agree within
// floating tolerance under the padding-aware comparison rule: host-side NaN
// sentinels in invalid mortar slots correspond to device-side zero fill.
package device

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/notargets/gocca"

	"github.com/czha/dgtree/mesh"
	"github.com/czha/dgtree/solver"
)

// Pipeline is the device-resident residual evaluator. It implements the
// same Residual contract as the sequential solver and is built from one:
// the host solver supplies the mesh, operators and flux configuration.
type Pipeline struct {
	dev  *gocca.OCCADevice
	host *solver.Solver

	mem     map[string]*gocca.OCCAMemory
	kernels map[string]*gocca.OCCAKernel
	bcID    map[string]int32

	fieldBytes int64
}

// NewPipeline validates that every provider of the host configuration has a
// device counterpart, generates and compiles the stage kernels, and uploads
// the immutable topology. Host-only boundary conditions, source terms and
// volume schemes are configuration errors here, not silent fallbacks.
func NewPipeline(dev *gocca.OCCADevice, host *solver.Solver) (*Pipeline, error) {
	if dev == nil {
		return nil, fmt.Errorf("device is required")
	}
	if host == nil {
		return nil, fmt.Errorf("host solver configuration is required")
	}
	if host.Reg.SurfaceDevice == "" {
		return nil, fmt.Errorf("surface flux for %s has no device source", host.Reg.System.Name())
	}
	switch vol := host.Vol.(type) {
	case solver.WeakForm:
		// identical to flux differencing with the central volume flux
	case *solver.FluxDifferencing:
		if vol.VolumeFlux != nil {
			return nil, fmt.Errorf("custom volume fluxes have no device counterpart")
		}
	default:
		return nil, fmt.Errorf("volume scheme %T is host-only", host.Vol)
	}

	p := &Pipeline{
		dev:        dev,
		host:       host,
		mem:        make(map[string]*gocca.OCCAMemory),
		kernels:    make(map[string]*gocca.OCCAKernel),
		fieldBytes: int64(host.FieldSize() * 8),
	}

	preamble, err := p.generatePreamble()
	if err != nil {
		return nil, err
	}
	if err := p.allocate(); err != nil {
		p.Free()
		return nil, err
	}
	if err := p.buildKernels(preamble); err != nil {
		p.Free()
		return nil, err
	}
	return p, nil
}

// Free releases all device resources. The pipeline is unusable afterwards.
func (p *Pipeline) Free() {
	for _, k := range p.kernels {
		k.Free()
	}
	for _, m := range p.mem {
		m.Free()
	}
	p.kernels = map[string]*gocca.OCCAKernel{}
	p.mem = map[string]*gocca.OCCAMemory{}
}

func (p *Pipeline) allocReal(name string, n int) *gocca.OCCAMemory {
	// Malloc from a zeroed host buffer: padding slots that no kernel
	// writes stay zero, which is the device half of the padding contract.
	zeros := make([]float64, maxInt(n, 1))
	m := p.dev.Malloc(int64(len(zeros)*8), unsafe.Pointer(&zeros[0]), nil)
	p.mem[name] = m
	return m
}

func (p *Pipeline) allocInt(name string, data []int32) *gocca.OCCAMemory {
	if len(data) == 0 {
		data = []int32{0}
	}
	m := p.dev.Malloc(int64(len(data)*4), unsafe.Pointer(&data[0]), nil)
	p.mem[name] = m
	return m
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (p *Pipeline) allocate() error {
	var (
		s    = p.host
		m    = s.Mesh
		nfp  = s.NFp
		nvar = s.NVar
	)

	p.allocReal("U", s.FieldSize())
	p.allocReal("dU", s.FieldSize())
	p.allocReal("surfFlux", m.K*s.NFaces*nvar*nfp)
	p.allocReal("ifaceU", len(m.Interfaces)*2*nvar*nfp)
	p.allocReal("bdryU", len(m.Boundaries)*nvar*nfp)
	p.allocReal("mortarUSmall", len(m.Mortars)*mesh.MortarArity*nvar*nfp)
	p.allocReal("mortarULarge", len(m.Mortars)*mesh.MortarArity*nvar*nfp)
	p.allocReal("mortarFstar", len(m.Mortars)*mesh.MortarArity*nvar*nfp)

	invJac := make([]float64, m.K)
	copy(invJac, m.InvJacobian)
	p.mem["invJac"] = p.dev.Malloc(int64(len(invJac)*8), unsafe.Pointer(&invJac[0]), nil)

	coordsX := make([]float64, m.K*s.Npe)
	coordsY := make([]float64, m.K*s.Npe)
	for k := 0; k < m.K; k++ {
		for node := 0; node < s.Npe; node++ {
			x := s.NodeCoords(k, node)
			coordsX[k*s.Npe+node] = x[0]
			coordsY[k*s.Npe+node] = x[1]
		}
	}
	p.mem["coordsX"] = p.dev.Malloc(int64(len(coordsX)*8), unsafe.Pointer(&coordsX[0]), nil)
	p.mem["coordsY"] = p.dev.Malloc(int64(len(coordsY)*8), unsafe.Pointer(&coordsY[0]), nil)

	ifLeft := make([]int32, 0, len(m.Interfaces))
	ifRight := make([]int32, 0, len(m.Interfaces))
	ifOrient := make([]int32, 0, len(m.Interfaces))
	for _, iface := range m.Interfaces {
		ifLeft = append(ifLeft, int32(iface.Left))
		ifRight = append(ifRight, int32(iface.Right))
		ifOrient = append(ifOrient, int32(iface.Orientation))
	}
	p.allocInt("ifLeft", ifLeft)
	p.allocInt("ifRight", ifRight)
	p.allocInt("ifOrient", ifOrient)

	bdElem := make([]int32, 0, len(m.Boundaries))
	bdOrient := make([]int32, 0, len(m.Boundaries))
	bdSign := make([]int32, 0, len(m.Boundaries))
	bdBC := make([]int32, 0, len(m.Boundaries))
	for _, bf := range m.Boundaries {
		id, ok := p.bcID[bf.Tag]
		if !ok {
			return fmt.Errorf("no device boundary function for tag %q", bf.Tag)
		}
		bdElem = append(bdElem, int32(bf.Element))
		bdOrient = append(bdOrient, int32(bf.Orientation))
		bdSign = append(bdSign, int32(bf.NormalSign))
		bdBC = append(bdBC, id)
	}
	p.allocInt("bdElem", bdElem)
	p.allocInt("bdOrient", bdOrient)
	p.allocInt("bdSign", bdSign)
	p.allocInt("bdBC", bdBC)

	moLarge := make([]int32, 0, len(m.Mortars))
	moSmall := make([]int32, 0, 2*len(m.Mortars))
	moValid := make([]int32, 0, 2*len(m.Mortars))
	moOrient := make([]int32, 0, len(m.Mortars))
	moLargeSide := make([]int32, 0, len(m.Mortars))
	moEqualRes := make([]int32, 0, len(m.Mortars))
	for _, mt := range m.Mortars {
		moLarge = append(moLarge, int32(mt.Large))
		moOrient = append(moOrient, int32(mt.Orientation))
		moLargeSide = append(moLargeSide, int32(mt.LargeSide))
		eq := int32(0)
		if mt.EqualResolution {
			eq = 1
		}
		moEqualRes = append(moEqualRes, eq)
		for slot := 0; slot < mesh.MortarArity; slot++ {
			moSmall = append(moSmall, int32(mt.Small[slot]))
			valid := int32(0)
			if mt.Valid[slot] {
				valid = 1
			}
			moValid = append(moValid, valid)
		}
	}
	p.allocInt("moLarge", moLarge)
	p.allocInt("moSmall", moSmall)
	p.allocInt("moValid", moValid)
	p.allocInt("moOrient", moOrient)
	p.allocInt("moLargeSide", moLargeSide)
	p.allocInt("moEqualRes", moEqualRes)
	return nil
}

func (p *Pipeline) buildKernels(preamble string) error {
	sources := map[string]string{
		"volumeStage":   p.volumeKernelSource(),
		"surfaceStage":  p.surfaceKernelSource(),
		"jacobianStage": p.jacobianKernelSource(),
	}
	if len(p.host.Mesh.Interfaces) > 0 {
		sources["interfaceStage"] = p.interfaceKernelSource()
	}
	if len(p.host.Mesh.Boundaries) > 0 {
		sources["boundaryStage"] = p.boundaryKernelSource()
	}
	if len(p.host.Mesh.Mortars) > 0 {
		sources["mortarFluxStage"] = p.mortarFluxKernelSource()
		sources["mortarRestrictStage"] = p.mortarRestrictKernelSource()
	}
	if p.host.Src != nil {
		sources["sourceStage"] = p.sourceKernelSource()
	}

	for name, src := range sources {
		kernel, err := p.buildKernel(preamble+"\n"+src, name)
		if err != nil {
			return err
		}
		p.kernels[name] = kernel
	}
	return nil
}

func (p *Pipeline) buildKernel(source, name string) (*gocca.OCCAKernel, error) {
	var (
		kernel *gocca.OCCAKernel
		err    error
	)
	if p.dev.Mode() == "OpenMP" {
		// OCCA does not apply a default optimization flag for OpenMP
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = p.dev.BuildKernelFromString(source, name, props)
	} else {
		kernel, err = p.dev.BuildKernelFromString(source, name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", name, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", name)
	}
	return kernel, nil
}

// UploadSolution copies U to the device. The transfer is synchronous: the
// buffer is safe to reuse on return.
func (p *Pipeline) UploadSolution(U []float64) error {
	if len(U) != p.host.FieldSize() {
		return fmt.Errorf("field length %d does not match configuration size %d", len(U), p.host.FieldSize())
	}
	p.mem["U"].CopyFrom(unsafe.Pointer(&U[0]), p.fieldBytes)
	return nil
}

// DownloadResidual copies the device residual into dU.
func (p *Pipeline) DownloadResidual(dU []float64) error {
	if len(dU) != p.host.FieldSize() {
		return fmt.Errorf("field length %d does not match configuration size %d", len(dU), p.host.FieldSize())
	}
	p.mem["dU"].CopyTo(unsafe.Pointer(&dU[0]), p.fieldBytes)
	return nil
}

// DownloadSolution copies the device solution buffer back, for transfer
// round-trip verification.
func (p *Pipeline) DownloadSolution(U []float64) error {
	if len(U) != p.host.FieldSize() {
		return fmt.Errorf("field length %d does not match configuration size %d", len(U), p.host.FieldSize())
	}
	p.mem["U"].CopyTo(unsafe.Pointer(&U[0]), p.fieldBytes)
	return nil
}

// DownloadBuffer copies a named working buffer (surfFlux, ifaceU, bdryU,
// mortarUSmall, mortarULarge, mortarFstar) into out, for stage-equivalence
// checks against the sequential pipeline.
func (p *Pipeline) DownloadBuffer(name string, out []float64) error {
	m, ok := p.mem[name]
	if !ok {
		return fmt.Errorf("no device buffer named %q", name)
	}
	if len(out) == 0 {
		return nil
	}
	m.CopyTo(unsafe.Pointer(&out[0]), int64(len(out)*8))
	return nil
}

// RunStage executes one named stage kernel against the resident buffers and
// waits for completion. Stages must be invoked in pipeline order; this is
// exposed for stage-equivalence testing, Residual is the production path.
func (p *Pipeline) RunStage(name string, t float64) error {
	kernel, ok := p.kernels[name]
	if !ok {
		return fmt.Errorf("no kernel for stage %q", name)
	}
	var err error
	switch name {
	case "volumeStage":
		err = kernel.RunWithArgs(p.mem["U"], p.mem["dU"])
	case "interfaceStage":
		err = kernel.RunWithArgs(p.mem["U"], p.mem["surfFlux"], p.mem["ifaceU"],
			p.mem["ifLeft"], p.mem["ifRight"], p.mem["ifOrient"])
	case "boundaryStage":
		err = kernel.RunWithArgs(p.mem["U"], p.mem["surfFlux"], p.mem["bdryU"],
			p.mem["bdElem"], p.mem["bdOrient"], p.mem["bdSign"], p.mem["bdBC"],
			p.mem["coordsX"], p.mem["coordsY"], t)
	case "mortarFluxStage":
		err = kernel.RunWithArgs(p.mem["U"], p.mem["surfFlux"],
			p.mem["mortarUSmall"], p.mem["mortarULarge"], p.mem["mortarFstar"],
			p.mem["moLarge"], p.mem["moSmall"], p.mem["moValid"],
			p.mem["moOrient"], p.mem["moLargeSide"], p.mem["moEqualRes"])
	case "mortarRestrictStage":
		err = kernel.RunWithArgs(p.mem["surfFlux"], p.mem["mortarFstar"],
			p.mem["moLarge"], p.mem["moValid"], p.mem["moOrient"],
			p.mem["moLargeSide"], p.mem["moEqualRes"])
	case "surfaceStage":
		err = kernel.RunWithArgs(p.mem["dU"], p.mem["surfFlux"])
	case "jacobianStage":
		err = kernel.RunWithArgs(p.mem["dU"], p.mem["invJac"])
	case "sourceStage":
		err = kernel.RunWithArgs(p.mem["dU"], p.mem["U"],
			p.mem["coordsX"], p.mem["coordsY"], t)
	default:
		return fmt.Errorf("unknown stage %q", name)
	}
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	// full barrier between stages: later stages read everything earlier
	// stages wrote
	p.dev.Finish()
	return nil
}

func (p *Pipeline) stageOrder() []string {
	order := []string{"volumeStage"}
	if len(p.host.Mesh.Interfaces) > 0 {
		order = append(order, "interfaceStage")
	}
	if len(p.host.Mesh.Boundaries) > 0 {
		order = append(order, "boundaryStage")
	}
	if len(p.host.Mesh.Mortars) > 0 {
		order = append(order, "mortarFluxStage", "mortarRestrictStage")
	}
	order = append(order, "surfaceStage", "jacobianStage")
	if p.host.Src != nil {
		order = append(order, "sourceStage")
	}
	return order
}

// Residual evaluates dU = residual(U, t) on the device: upload, ordered
// stage kernels with a full barrier between them, download. Non-finite
// values in the downloaded residual are surfaced as errors; dU has no
// padding slots, so any NaN or Inf is a stability failure.
func (p *Pipeline) Residual(dU, U []float64, t float64) error {
	if err := p.UploadSolution(U); err != nil {
		return err
	}
	for _, name := range p.stageOrder() {
		if err := p.RunStage(name, t); err != nil {
			return err
		}
	}
	if err := p.DownloadResidual(dU); err != nil {
		return err
	}
	for i, v := range dU {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite residual %v at index %d", v, i)
		}
	}
	return nil
}

// FieldSize reports the solution/residual length, matching the host solver.
func (p *Pipeline) FieldSize() int { return p.host.FieldSize() }

var _ solver.Residualer = (*Pipeline)(nil)
