package equations

import (
	"fmt"
	"strings"
)

// SourceTerm evaluates pointwise source terms in physical space. A nil
// SourceTerm means "no sources" and the pipeline skips the stage entirely.
type SourceTerm interface {
	// Eval writes the per-variable source at position x and time t into s.
	Eval(s, u, x []float64, t float64)

	// DeviceSource returns OKL C source defining
	//   void source_term(const real_t* u, const real_t* x, const real_t t,
	//                    real_t* s)
	// or the empty string when the term is host-only.
	DeviceSource() string
}

// ConstantSource adds a fixed per-variable forcing.
type ConstantSource struct {
	S []float64
}

func (src *ConstantSource) Eval(s, u, x []float64, t float64) {
	copy(s, src.S)
}

func (src *ConstantSource) DeviceSource() string {
	vals := make([]string, len(src.S))
	for v, val := range src.S {
		vals[v] = fmt.Sprintf("s[%d] = %.15e;", v, val)
	}
	return fmt.Sprintf(`
void source_term(const real_t* u, const real_t* x, const real_t t, real_t* s) {
	%s
}
`, strings.Join(vals, "\n\t"))
}

// FuncSource wraps an arbitrary Go callable. Host pipeline only.
type FuncSource struct {
	Fn func(s, u, x []float64, t float64)
}

func (src *FuncSource) Eval(s, u, x []float64, t float64) {
	src.Fn(s, u, x, t)
}

func (src *FuncSource) DeviceSource() string { return "" }
