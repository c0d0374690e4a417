package ble

import (
	"net"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robertof/go-flextrack/utils"
	"github.com/rs/zerolog/log"
)

const DefaultScanWindow = 5 * time.Second

type Advertisement = ble.Advertisement

// Handle owns one HCI device. It implements session.Platform.
type Handle struct {
	dev *linux.Device

	// ScanWindow is how long a single scan listens for advertisements.
	ScanWindow time.Duration
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		scansCounter,
		successfulConnectionsCounter,
		failedConnectionsCounter,
		disconnectsCounter,
		notificationsCounter,
	)
}

func Init(deviceId int, flags Flags) (*Handle, error) {
	return InitWithConnParams(deviceId, ConnParamsDefault, flags)
}

func InitWithConnParams(deviceId int, connParams ConnParams, flags Flags) (*Handle, error) {
	scanType, filterPolicy := flags.scanParameters()

	log.Debug().
		Bool("ActiveScan", scanType == leScanActive).
		Bool("AllowListOnly", filterPolicy == leFilterAllowListed).
		Stringer("ConnParams", connParams).
		Stringer("Flags", flags).
		Int("DeviceID", deviceId).
		Msg("Initializing Bluetooth device")

	dev, err := linux.NewDevice(
		ble.OptDeviceID(deviceId),
		ble.OptScanParams(cmd.LESetScanParameters{
			LEScanType:           scanType,
			LEScanInterval:       0x0010, // N * 0.625msec
			LEScanWindow:         0x0010, // N * 0.625msec
			OwnAddressType:       0x00,   // public
			ScanningFilterPolicy: filterPolicy,
		}),
		ble.OptConnParams(connParams.AdapterOptions()),
	)

	if err != nil {
		return nil, errors.Wrap(err, "failed to init bluetooth device")
	}

	return &Handle{
		dev:        dev,
		ScanWindow: DefaultScanWindow,
	}, nil
}

// SetAllowListedAddresses restricts scans to the given peripherals. Only
// effective when the handle was created with FlagEnableDeviceAllowList.
func (h *Handle) SetAllowListedAddresses(a []net.HardwareAddr) error {
	log.Debug().
		Array("DeviceAddresses", utils.ToZeroLogArray(a)).
		Msg("Allow-listing the requested Bluetooth devices")

	var res cmd.LEClearWhiteListRP

	if err := h.dev.HCI.Send(&cmd.LEClearWhiteList{}, &res); err != nil {
		return errors.Wrap(err, "failed to clear allow-list")
	}

	if res.Status != 0 {
		return errors.Errorf("failed to clear allow-list: got status: %v", res.Status)
	}

	for _, addr := range a {
		if len(addr) != 6 {
			return errors.Errorf("refusing to allow-list %q: not a 6 byte MAC address", addr.String())
		}

		var res cmd.LEAddDeviceToWhiteListRP

		// the controller wants the address little-endian.
		err := h.dev.HCI.Send(&cmd.LEAddDeviceToWhiteList{
			AddressType: 0x00, // public
			Address:     [6]byte(ble.Reverse(addr)),
		}, &res)

		if err != nil {
			return errors.Wrapf(err, "failed to allow-list device %q", addr.String())
		}

		if res.Status != 0 {
			return errors.Errorf("failed to allow-list device %q: got status: %v", addr.String(), res.Status)
		}
	}

	return nil
}

func (h *Handle) Stop() error {
	return h.dev.Stop()
}
