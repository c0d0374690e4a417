package ble

import (
	"slices"

	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/pkg/errors"
)

// ConnParams selects a preset of LE connection parameters. It implements
// flag.Value and yaml.Unmarshaler.
type ConnParams string

const (
	ConnParamsDefault ConnParams = "default"
	// Slow link, for peripherals that only push a few values per second.
	ConnParamsPowerSaving ConnParams = "power-saving"
	// Shortest interval the link layer allows; for high rate orientation streams.
	ConnParamsLowLatency ConnParams = "low-latency"
)

var allConnParams = []ConnParams{ConnParamsDefault, ConnParamsPowerSaving, ConnParamsLowLatency}

func (c ConnParams) String() string {
	return string(c)
}

func (c *ConnParams) Set(v string) error {
	if v == "" {
		*c = ConnParamsDefault
		return nil
	}

	p := ConnParams(v)

	if !slices.Contains(allConnParams, p) {
		return errors.Errorf("unknown connection params %q (must be one of %v)", v, allConnParams)
	}

	*c = p
	return nil
}

func (c *ConnParams) UnmarshalYAML(unmarshal func(any) error) error {
	var s string

	if err := unmarshal(&s); err != nil {
		return err
	}

	return c.Set(s)
}

// AdapterOptions turns the preset into the HCI create-connection command.
func (c ConnParams) AdapterOptions() cmd.LECreateConnection {
	p := cmd.LECreateConnection{
		LEScanInterval:        0x0004, // N * 0.625 msec
		LEScanWindow:          0x0004, // N * 0.625 msec
		InitiatorFilterPolicy: 0x00,   // allow list not used
		PeerAddressType:       0x00,   // public
		OwnAddressType:        0x00,   // public
		ConnIntervalMin:       0x0018, // N * 1.25 msec
		ConnIntervalMax:       0x0028, // N * 1.25 msec
		ConnLatency:           0x0000,
		SupervisionTimeout:    0x01f4, // N * 10 msec
	}

	switch c {
	case ConnParamsDefault, "":
	case ConnParamsLowLatency:
		// 7.5ms is the floor for the connection interval.
		p.ConnIntervalMin = 0x0006
		p.ConnIntervalMax = 0x0006
		p.SupervisionTimeout = 0x0048 // 720ms
	case ConnParamsPowerSaving:
		// interval max * (latency + 1) must stay below half the supervision
		// timeout, see the link layer section of the core spec.
		p.ConnIntervalMin = 0x00f0    // 300ms
		p.ConnIntervalMax = 0x00f0    // 300ms
		p.ConnLatency = 0x0004        // 4
		p.SupervisionTimeout = 0x0708 // 18s
	default:
		panic("unknown Bluetooth connection params: " + string(c))
	}

	return p
}
