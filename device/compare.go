package device

import (
	"fmt"
	"math"
)

// ComparePadded checks a device buffer against the sequential reference
// under the padding rule: at positions reported invalid, a reference NaN
// sentinel paired with a device zero compares equal. Any other NaN is a
// failure, and all remaining positions use relative-plus-absolute
// tolerance. invalid may be nil for buffers without padding.
func ComparePadded(ref, dev []float64, invalid func(i int) bool, tol float64) error {
	if len(ref) != len(dev) {
		return fmt.Errorf("length mismatch: reference %d, device %d", len(ref), len(dev))
	}
	for i := range ref {
		r, d := ref[i], dev[i]
		if invalid != nil && invalid(i) {
			if math.IsNaN(r) && d == 0 {
				continue
			}
			return fmt.Errorf("padding slot %d: reference %v, device %v (want NaN/0)", i, r, d)
		}
		if math.IsNaN(r) || math.IsNaN(d) {
			return fmt.Errorf("unexpected NaN at %d: reference %v, device %v", i, r, d)
		}
		scale := math.Max(math.Abs(r), math.Abs(d))
		if math.Abs(r-d) > tol*(1+scale) {
			return fmt.Errorf("mismatch at %d: reference %v, device %v", i, r, d)
		}
	}
	return nil
}
