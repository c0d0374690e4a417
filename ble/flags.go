package ble

import "strings"

// Flags tune how the HCI device scans.
type Flags int

const (
	// Ask peripherals for scan responses. FlexTrack gloves only put their local
	// name there.
	FlagScanTypeActive Flags = 1 << iota
	// Only report peripherals added with Handle.SetAllowListedAddresses.
	FlagEnableDeviceAllowList
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagScanTypeActive, "active scan"},
	{FlagEnableDeviceAllowList, "device allow-list"},
}

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

func (f Flags) String() string {
	var names []string

	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, ", ")
}

// HCI_LE_Set_Scan_Parameters values.
const (
	leScanPassive uint8 = 0x00
	leScanActive  uint8 = 0x01

	leFilterAcceptAll   uint8 = 0x00
	leFilterAllowListed uint8 = 0x01
)

// scanParameters maps the flags onto the LE scan type and filter policy.
func (f Flags) scanParameters() (scanType, filterPolicy uint8) {
	scanType, filterPolicy = leScanPassive, leFilterAcceptAll

	if f.Has(FlagScanTypeActive) {
		scanType = leScanActive
	}

	if f.Has(FlagEnableDeviceAllowList) {
		filterPolicy = leFilterAllowListed
	}

	return scanType, filterPolicy
}
