package device

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/czha/dgtree/solver"
)

// generatePreamble emits the shared header every kernel is compiled with:
// type definitions, problem-size constants, the reference-element operators
// as static const arrays, the face-node map, and the equation-supplied flux
// functions.
func (p *Pipeline) generatePreamble() (string, error) {
	var (
		sb = strings.Builder{}
		s  = p.host
	)

	sb.WriteString("typedef double real_t;\n")
	sb.WriteString("typedef int int_t;\n\n")

	sb.WriteString(fmt.Sprintf("#define NVAR %d\n", s.NVar))
	sb.WriteString(fmt.Sprintf("#define NP1 %d\n", s.Np1))
	sb.WriteString(fmt.Sprintf("#define NPE %d\n", s.Npe))
	sb.WriteString(fmt.Sprintf("#define NFP %d\n", s.NFp))
	sb.WriteString(fmt.Sprintf("#define NFACES %d\n", s.NFaces))
	sb.WriteString(fmt.Sprintf("#define DIMS %d\n", s.Mesh.Dims))
	sb.WriteString(fmt.Sprintf("#define K_ELEM %d\n", s.Mesh.K))
	sb.WriteString(fmt.Sprintf("#define N_IFACE %d\n", len(s.Mesh.Interfaces)))
	sb.WriteString(fmt.Sprintf("#define N_BDRY %d\n", len(s.Mesh.Boundaries)))
	sb.WriteString(fmt.Sprintf("#define N_MORTAR %d\n", len(s.Mesh.Mortars)))
	sb.WriteString(fmt.Sprintf("#define LHAT_L %.15e\n", s.El.LhatLeft()))
	sb.WriteString(fmt.Sprintf("#define LHAT_R %.15e\n", s.El.LhatRight()))
	sb.WriteString("\n")

	sb.WriteString(formatStaticMatrix("DS", s.El.Ops.Ds))
	sb.WriteString(formatStaticMatrix("FORWARD_LOWER", s.El.Mortar.ForwardLower))
	sb.WriteString(formatStaticMatrix("FORWARD_UPPER", s.El.Mortar.ForwardUpper))
	sb.WriteString(formatStaticMatrix("REVERSE_LOWER", s.El.Mortar.ReverseLower))
	sb.WriteString(formatStaticMatrix("REVERSE_UPPER", s.El.Mortar.ReverseUpper))
	sb.WriteString(formatFmask(s.Fmask()))

	sb.WriteString(s.Reg.DeviceDefs)
	sb.WriteString("\n")
	sb.WriteString(s.Reg.SurfaceDevice)
	sb.WriteString("\n")

	// central two-point volume flux, the device counterpart of the default
	// flux-differencing configuration
	sb.WriteString(`
void volume_flux(const real_t* uA, const real_t* uB, const int orient, real_t* f) {
	real_t fA[NVAR];
	real_t fB[NVAR];
	phys_flux(uA, orient, fA);
	phys_flux(uB, orient, fB);
	for (int v = 0; v < NVAR; ++v) {
		f[v] = 0.5 * (fA[v] + fB[v]);
	}
}
`)

	if s.Src != nil {
		src := s.Src.DeviceSource()
		if src == "" {
			return "", fmt.Errorf("source term has no device counterpart")
		}
		sb.WriteString(src)
		sb.WriteString("\n")
	}

	bcSrc, err := p.generateBoundaryFunctions()
	if err != nil {
		return "", err
	}
	sb.WriteString(bcSrc)

	return sb.String(), nil
}

// generateBoundaryFunctions emits one flux function per boundary tag plus
// the dispatcher the boundary kernel calls. Tag ids are assigned in sorted
// tag order so the numbering is deterministic.
func (p *Pipeline) generateBoundaryFunctions() (string, error) {
	tags := make([]string, 0, len(p.host.BCs))
	for tag := range p.host.BCs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var sb strings.Builder
	p.bcID = make(map[string]int32, len(tags))
	for id, tag := range tags {
		bc := p.host.BCs[tag]
		fn := fmt.Sprintf("boundary_flux_%d", id)
		src := bc.DeviceSource(fn)
		if src == "" {
			return "", fmt.Errorf("boundary condition %q (tag %q) has no device counterpart", bc.Name(), tag)
		}
		sb.WriteString(src)
		p.bcID[tag] = int32(id)
	}

	sb.WriteString(`
void boundary_flux(const int id, const real_t* u_inner, const int orient,
                   const int normal_sign, const real_t* x, const real_t t, real_t* f) {
`)
	for id := range tags {
		sb.WriteString(fmt.Sprintf("\tif (id == %d) { boundary_flux_%d(u_inner, orient, normal_sign, x, t, f); return; }\n", id, id))
	}
	sb.WriteString("}\n")
	return sb.String(), nil
}

func formatStaticMatrix(name string, m mat.Matrix) string {
	rows, cols := m.Dims()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("const double %s[%d][%d] = {\n", name, rows, cols))
	for i := 0; i < rows; i++ {
		sb.WriteString("    {")
		for j := 0; j < cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%.15e", m.At(i, j)))
		}
		sb.WriteString("}")
		if i < rows-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n\n")
	return sb.String()
}

func formatFmask(fmask [][]int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("const int FMASK[%d][%d] = {\n", len(fmask), len(fmask[0])))
	for f, nodes := range fmask {
		sb.WriteString("    {")
		for i, n := range nodes {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%d", n))
		}
		sb.WriteString("}")
		if f < len(fmask)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n\n")
	return sb.String()
}

// field index helper expressions shared by the kernel templates
const idxHelpers = `
#define U_IDX(k, v, node) (((k) * NVAR + (v)) * NPE + (node))
#define SURF_IDX(k, face, v, fp) ((((k) * NFACES + (face)) * NVAR + (v)) * NFP + (fp))
#define MORTAR_IDX(m, slot, v, fp) ((((m) * 2 + (slot)) * NVAR + (v)) * NFP + (fp))
#define LOCAL_FACE(orient, sign) (2 * (orient) + ((sign) > 0 ? 1 : 0))
`

func (p *Pipeline) volumeKernelSource() string {
	noncons := ""
	if p.host.Reg.HasNoncons {
		noncons = `
				noncons_flux(ui, um, 0, fnc);
				for (int v = 0; v < NVAR; ++v) {
					f[v] += 0.5 * fnc[v];
				}`
	}
	nonconsY := ""
	if p.host.Reg.HasNoncons {
		nonconsY = `
				noncons_flux(ui, um, 1, fnc);
				for (int v = 0; v < NVAR; ++v) {
					f[v] += 0.5 * fnc[v];
				}`
	}
	dirY := ""
	if p.host.Mesh.Dims == 2 {
		dirY = fmt.Sprintf(`
				{
					const int other = m * NP1 + i;
					for (int v = 0; v < NVAR; ++v) {
						um[v] = U[U_IDX(k, v, other)];
					}
					volume_flux(ui, um, 1, f);%s
					for (int v = 0; v < NVAR; ++v) {
						acc[v] += DS[j][m] * f[v];
					}
				}`, nonconsY)
	}
	return idxHelpers + fmt.Sprintf(`
@kernel void volumeStage(const real_t* U, real_t* dU) {
	for (int k = 0; k < K_ELEM; ++k; @outer) {
		for (int node = 0; node < NPE; ++node; @inner) {
			real_t acc[NVAR];
			real_t ui[NVAR];
			real_t um[NVAR];
			real_t f[NVAR];
			real_t fnc[NVAR];
			for (int v = 0; v < NVAR; ++v) {
				acc[v] = 0.0;
				fnc[v] = 0.0;
				ui[v] = U[U_IDX(k, v, node)];
			}
			const int i = node %% NP1;
			const int j = node / NP1;
			for (int m = 0; m < NP1; ++m) {
				{
					const int other = j * NP1 + m;
					for (int v = 0; v < NVAR; ++v) {
						um[v] = U[U_IDX(k, v, other)];
					}
					volume_flux(ui, um, 0, f);%s
					for (int v = 0; v < NVAR; ++v) {
						acc[v] += DS[i][m] * f[v];
					}
				}%s
			}
			for (int v = 0; v < NVAR; ++v) {
				dU[U_IDX(k, v, node)] = acc[v];
			}
		}
	}
}
`, noncons, dirY)
}

func (p *Pipeline) interfaceKernelSource() string {
	noncons := ""
	if p.host.Reg.HasNoncons {
		noncons = `
			noncons_flux(uL, uR, orient, fnc);
			for (int v = 0; v < NVAR; ++v) {
				surfFlux[SURF_IDX(left, faceL, v, fp)] += 0.5 * fnc[v];
			}
			noncons_flux(uR, uL, orient, fnc);
			for (int v = 0; v < NVAR; ++v) {
				surfFlux[SURF_IDX(right, faceR, v, fp)] += 0.5 * fnc[v];
			}`
	}
	return idxHelpers + fmt.Sprintf(`
@kernel void interfaceStage(const real_t* U, real_t* surfFlux, real_t* ifaceU,
                            const int_t* ifLeft, const int_t* ifRight, const int_t* ifOrient) {
	for (int i = 0; i < N_IFACE; ++i; @outer) {
		for (int fp = 0; fp < NFP; ++fp; @inner) {
			const int left = ifLeft[i];
			const int right = ifRight[i];
			const int orient = ifOrient[i];
			const int faceL = LOCAL_FACE(orient, 1);
			const int faceR = LOCAL_FACE(orient, -1);
			real_t uL[NVAR];
			real_t uR[NVAR];
			real_t f[NVAR];
			real_t fnc[NVAR];
			for (int v = 0; v < NVAR; ++v) {
				uL[v] = U[U_IDX(left, v, FMASK[faceL][fp])];
				uR[v] = U[U_IDX(right, v, FMASK[faceR][fp])];
				ifaceU[((i * 2 + 0) * NVAR + v) * NFP + fp] = uL[v];
				ifaceU[((i * 2 + 1) * NVAR + v) * NFP + fp] = uR[v];
				fnc[v] = 0.0;
			}
			surface_flux(uL, uR, orient, f);
			for (int v = 0; v < NVAR; ++v) {
				surfFlux[SURF_IDX(left, faceL, v, fp)] = f[v];
				surfFlux[SURF_IDX(right, faceR, v, fp)] = f[v];
			}%s
		}
	}
}
`, noncons)
}

func (p *Pipeline) boundaryKernelSource() string {
	noncons := ""
	if p.host.Reg.HasNoncons {
		noncons = `
			noncons_flux(u, u, orient, fnc);
			for (int v = 0; v < NVAR; ++v) {
				f[v] += 0.5 * fnc[v];
			}`
	}
	return idxHelpers + fmt.Sprintf(`
@kernel void boundaryStage(const real_t* U, real_t* surfFlux, real_t* bdryU,
                           const int_t* bdElem, const int_t* bdOrient,
                           const int_t* bdSign, const int_t* bdBC,
                           const real_t* coordsX, const real_t* coordsY,
                           const real_t t) {
	for (int b = 0; b < N_BDRY; ++b; @outer) {
		for (int fp = 0; fp < NFP; ++fp; @inner) {
			const int k = bdElem[b];
			const int orient = bdOrient[b];
			const int sign = bdSign[b];
			const int face = LOCAL_FACE(orient, sign);
			const int node = FMASK[face][fp];
			real_t u[NVAR];
			real_t f[NVAR];
			real_t fnc[NVAR];
			real_t x[2];
			for (int v = 0; v < NVAR; ++v) {
				u[v] = U[U_IDX(k, v, node)];
				bdryU[(b * NVAR + v) * NFP + fp] = u[v];
				fnc[v] = 0.0;
			}
			x[0] = coordsX[k * NPE + node];
			x[1] = coordsY[k * NPE + node];
			boundary_flux(bdBC[b], u, orient, sign, x, t, f);%s
			for (int v = 0; v < NVAR; ++v) {
				surfFlux[SURF_IDX(k, face, v, fp)] = f[v];
			}
		}
	}
}
`, noncons)
}

func (p *Pipeline) mortarFluxKernelSource() string {
	noncons := ""
	if p.host.Reg.HasNoncons {
		noncons = `
				{
					const real_t* uMe = (largeSide == 0) ? uR : uL;
					const real_t* uOther = (largeSide == 0) ? uL : uR;
					noncons_flux(uMe, uOther, orient, fnc);
					for (int v = 0; v < NVAR; ++v) {
						surfFlux[SURF_IDX(small, faceSmall, v, fp)] += 0.5 * fnc[v];
					}
					noncons_flux(uOther, uMe, orient, fnc);
					for (int v = 0; v < NVAR; ++v) {
						mortarFstar[MORTAR_IDX(mi, slot, v, fp)] += 0.5 * fnc[v];
					}
				}`
	}
	return idxHelpers + fmt.Sprintf(`
@kernel void mortarFluxStage(const real_t* U, real_t* surfFlux,
                             real_t* mortarUSmall, real_t* mortarULarge, real_t* mortarFstar,
                             const int_t* moLarge, const int_t* moSmall,
                             const int_t* moValid, const int_t* moOrient,
                             const int_t* moLargeSide, const int_t* moEqualRes) {
	for (int mi = 0; mi < N_MORTAR; ++mi; @outer) {
		for (int fp = 0; fp < NFP; ++fp; @inner) {
			const int large = moLarge[mi];
			const int orient = moOrient[mi];
			const int largeSide = moLargeSide[mi];
			const int equalRes = moEqualRes[mi];
			const int faceLarge = (largeSide == 0) ? LOCAL_FACE(orient, 1) : LOCAL_FACE(orient, -1);
			const int faceSmall = (largeSide == 0) ? LOCAL_FACE(orient, -1) : LOCAL_FACE(orient, 1);
			for (int slot = 0; slot < 2; ++slot) {
				if (!moValid[mi * 2 + slot]) {
					continue;
				}
				const int small = moSmall[mi * 2 + slot];
				real_t uSmall[NVAR];
				real_t uLarge[NVAR];
				real_t f[NVAR];
				real_t fnc[NVAR];
				for (int v = 0; v < NVAR; ++v) {
					uSmall[v] = U[U_IDX(small, v, FMASK[faceSmall][fp])];
					mortarUSmall[MORTAR_IDX(mi, slot, v, fp)] = uSmall[v];
					fnc[v] = 0.0;
				}
				for (int v = 0; v < NVAR; ++v) {
					real_t acc = 0.0;
					if (equalRes) {
						acc = U[U_IDX(large, v, FMASK[faceLarge][fp])];
					} else if (slot == 0) {
						for (int m = 0; m < NFP; ++m) {
							acc += FORWARD_LOWER[fp][m] * U[U_IDX(large, v, FMASK[faceLarge][m])];
						}
					} else {
						for (int m = 0; m < NFP; ++m) {
							acc += FORWARD_UPPER[fp][m] * U[U_IDX(large, v, FMASK[faceLarge][m])];
						}
					}
					uLarge[v] = acc;
					mortarULarge[MORTAR_IDX(mi, slot, v, fp)] = acc;
				}
				const real_t* uL = (largeSide == 0) ? uLarge : uSmall;
				const real_t* uR = (largeSide == 0) ? uSmall : uLarge;
				surface_flux(uL, uR, orient, f);
				for (int v = 0; v < NVAR; ++v) {
					surfFlux[SURF_IDX(small, faceSmall, v, fp)] = f[v];
					mortarFstar[MORTAR_IDX(mi, slot, v, fp)] = f[v];
				}%s
			}
		}
	}
}
`, noncons)
}

func (p *Pipeline) mortarRestrictKernelSource() string {
	return idxHelpers + `
@kernel void mortarRestrictStage(real_t* surfFlux, const real_t* mortarFstar,
                                 const int_t* moLarge, const int_t* moValid,
                                 const int_t* moOrient, const int_t* moLargeSide,
                                 const int_t* moEqualRes) {
	for (int mi = 0; mi < N_MORTAR; ++mi; @outer) {
		for (int m = 0; m < NFP; ++m; @inner) {
			const int large = moLarge[mi];
			const int orient = moOrient[mi];
			const int largeSide = moLargeSide[mi];
			const int faceLarge = (largeSide == 0) ? LOCAL_FACE(orient, 1) : LOCAL_FACE(orient, -1);
			for (int v = 0; v < NVAR; ++v) {
				real_t acc = 0.0;
				if (moEqualRes[mi]) {
					acc = mortarFstar[MORTAR_IDX(mi, 0, v, m)];
				} else {
					if (moValid[mi * 2 + 0]) {
						for (int fp = 0; fp < NFP; ++fp) {
							acc += REVERSE_LOWER[m][fp] * mortarFstar[MORTAR_IDX(mi, 0, v, fp)];
						}
					}
					if (moValid[mi * 2 + 1]) {
						for (int fp = 0; fp < NFP; ++fp) {
							acc += REVERSE_UPPER[m][fp] * mortarFstar[MORTAR_IDX(mi, 1, v, fp)];
						}
					}
				}
				surfFlux[SURF_IDX(large, faceLarge, v, m)] = acc;
			}
		}
	}
}
`
}

func (p *Pipeline) surfaceKernelSource() string {
	dirY := ""
	if p.host.Mesh.Dims == 2 {
		dirY = `
				if (j == 0) {
					acc -= surfFlux[SURF_IDX(k, 2, v, i)] * LHAT_L;
				}
				if (j == NP1 - 1) {
					acc += surfFlux[SURF_IDX(k, 3, v, i)] * LHAT_R;
				}`
	}
	return idxHelpers + fmt.Sprintf(`
@kernel void surfaceStage(real_t* dU, const real_t* surfFlux) {
	for (int k = 0; k < K_ELEM; ++k; @outer) {
		for (int node = 0; node < NPE; ++node; @inner) {
			const int i = node %% NP1;
			const int j = node / NP1;
			for (int v = 0; v < NVAR; ++v) {
				real_t acc = 0.0;
				if (i == 0) {
					acc -= surfFlux[SURF_IDX(k, 0, v, j)] * LHAT_L;
				}
				if (i == NP1 - 1) {
					acc += surfFlux[SURF_IDX(k, 1, v, j)] * LHAT_R;
				}%s
				dU[U_IDX(k, v, node)] += acc;
			}
		}
	}
}
`, dirY)
}

func (p *Pipeline) jacobianKernelSource() string {
	return idxHelpers + `
@kernel void jacobianStage(real_t* dU, const real_t* invJac) {
	for (int k = 0; k < K_ELEM; ++k; @outer) {
		for (int node = 0; node < NPE; ++node; @inner) {
			const real_t scale = -invJac[k];
			for (int v = 0; v < NVAR; ++v) {
				dU[U_IDX(k, v, node)] *= scale;
			}
		}
	}
}
`
}

func (p *Pipeline) sourceKernelSource() string {
	return idxHelpers + `
@kernel void sourceStage(real_t* dU, const real_t* U,
                         const real_t* coordsX, const real_t* coordsY, const real_t t) {
	for (int k = 0; k < K_ELEM; ++k; @outer) {
		for (int node = 0; node < NPE; ++node; @inner) {
			real_t u[NVAR];
			real_t s[NVAR];
			real_t x[2];
			for (int v = 0; v < NVAR; ++v) {
				u[v] = U[U_IDX(k, v, node)];
				s[v] = 0.0;
			}
			x[0] = coordsX[k * NPE + node];
			x[1] = coordsY[k * NPE + node];
			source_term(u, x, t, s);
			for (int v = 0; v < NVAR; ++v) {
				dU[U_IDX(k, v, node)] += s[v];
			}
		}
	}
}
`
}
