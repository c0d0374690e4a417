package device

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// DeviceSpec identifies the target peripheral. A bare string is a name;
// `key=value,key=value` form allows the address to be pinned as well.
type DeviceSpec map[string]string

const (
	DeviceSpecFieldName    = "name"
	DeviceSpecFieldAddress = "addr"
)

func NewDeviceSpec(s string) DeviceSpec {
	spec := DeviceSpec{}

	if !strings.Contains(s, "=") {
		if name := strings.TrimSpace(s); name != "" {
			spec[DeviceSpecFieldName] = name
		}

		return spec
	}

	for _, entry := range strings.Split(s, ",") {
		parts := strings.SplitN(entry, "=", 2)

		if len(parts) != 2 {
			log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
			continue
		}

		key := strings.ToLower(strings.TrimSpace(parts[0]))

		if key != DeviceSpecFieldName && key != DeviceSpecFieldAddress {
			log.Warn().Str("Field", key).Msg("Ignoring unknown device spec field")
			continue
		}

		spec[key] = strings.TrimSpace(parts[1])
	}

	return spec
}

// NameSpec is a spec matching on name only.
func NameSpec(name string) DeviceSpec {
	return DeviceSpec{DeviceSpecFieldName: name}
}

func (ds DeviceSpec) Name() string {
	return ds[DeviceSpecFieldName]
}

func (ds DeviceSpec) Addr() string {
	return ds[DeviceSpecFieldAddress]
}

func (ds DeviceSpec) String() string {
	if ds.Addr() == "" {
		return fmt.Sprintf("%q", ds.Name())
	}

	return fmt.Sprintf("%q@%v", ds.Name(), ds.Addr())
}
