package device

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrTargetNotFound = errors.New("target not found")

// Device is a peripheral seen during one scan cycle.
type Device struct {
	Name string
	// Addr is whatever the platform uses to dial the peripheral back (a MAC
	// on Linux, a UUID on macOS). Treat it as opaque.
	Addr        string
	RSSI        int
	Connectable bool
}

func (d Device) String() string {
	return fmt.Sprintf("device[name=%q, addr=%v]", d.Name, d.Addr)
}

// Select returns the first device whose name is exactly target.
func Select(devices []Device, target string) (Device, bool) {
	for _, d := range devices {
		if d.Name == target {
			return d, true
		}
	}

	return Device{}, false
}

// SelectSpec is like Select but also requires the address to match when the
// spec carries one. Addresses compare case-insensitively.
func SelectSpec(devices []Device, spec DeviceSpec) (Device, bool) {
	addr := spec.Addr()

	for _, d := range devices {
		if spec.Name() != "" && d.Name != spec.Name() {
			continue
		}

		if addr != "" && !strings.EqualFold(d.Addr, addr) {
			continue
		}

		return d, true
	}

	return Device{}, false
}

// Choose applies SelectSpec to a non-empty scan result and reports
// ErrTargetNotFound instead of falling back to an arbitrary device.
func Choose(devices []Device, spec DeviceSpec) (Device, error) {
	if spec.Name() == "" && spec.Addr() == "" {
		return Device{}, errors.Wrap(ErrTargetNotFound, "no target name or address given")
	}

	if d, ok := SelectSpec(devices, spec); ok {
		return d, nil
	}

	return Device{}, errors.Wrapf(ErrTargetNotFound, "%v not among %d device(s)", spec, len(devices))
}
