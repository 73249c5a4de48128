package device

import (
	"fmt"

	"github.com/notargets/gocca"
)

// NewDevice creates an OCCA device, preferring parallel backends and
// falling back to Serial. props, if non-empty, pins one backend instead.
func NewDevice(props string) (*gocca.OCCADevice, error) {
	if props != "" {
		return gocca.NewDevice(props)
	}
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}
	var lastErr error
	for _, b := range backends {
		dev, err := gocca.NewDevice(b)
		if err == nil {
			return dev, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable OCCA backend: %w", lastErr)
}
