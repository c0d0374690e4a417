package ble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/robertof/go-flextrack/device"
	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
	return ble.WithSigHandler(ctx, cancel)
}

// ScanAll runs a scan until ctx is done and passes every advertisement on.
func (h *Handle) ScanAll(ctx context.Context, onAdvertisement func(Advertisement)) error {
	err := h.dev.Scan(ctx, true, onAdvertisement)

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, "failed to initiate scan")
	}

	return nil
}

// deviceTable accumulates what a scan window saw, in order of first sighting.
type deviceTable struct {
	mu      sync.Mutex
	devices *orderedmap.OrderedMap[string, device.Device]
}

func newDeviceTable() *deviceTable {
	return &deviceTable{
		devices: orderedmap.New[string, device.Device](),
	}
}

func (t *deviceTable) add(d device.Device) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := strings.ToLower(d.Addr)

	if prev, ok := t.devices.Get(key); ok {
		d = mergeSightings(prev, d)
	}

	t.devices.Set(key, d)
}

func (t *deviceTable) list() []device.Device {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]device.Device, 0, t.devices.Len())

	for pair := t.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}

	return out
}

// mergeSightings folds a newer advertisement into what is known already. Scan
// responses often carry the name while the plain advertisement does not.
func mergeSightings(prev, next device.Device) device.Device {
	if next.Name == "" {
		next.Name = prev.Name
	}

	next.Connectable = next.Connectable || prev.Connectable

	return next
}

func toDevice(a Advertisement) device.Device {
	return device.Device{
		Name:        a.LocalName(),
		Addr:        a.Addr().String(),
		RSSI:        a.RSSI(),
		Connectable: a.Connectable(),
	}
}

// ScanDevices listens for window and returns every peripheral seen, in order
// of first sighting. Cancelling ctx aborts the scan with ctx's error.
func (h *Handle) ScanDevices(ctx context.Context, window time.Duration) ([]device.Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	table := newDeviceTable()

	log.Trace().Dur("Window", window).Msg("ble: scan started")

	err := h.dev.Scan(scanCtx, true, func(a Advertisement) {
		// the BLE lib could send an advertisement even after `Scan()` returns.
		if scanCtx.Err() != nil {
			return
		}

		table.add(toDevice(a))
	})

	scansCounter.Inc()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// the window elapsing is how a scan normally ends.
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, errors.Wrap(err, "scan failed")
	}

	devices := table.list()

	log.Trace().Int("Found", len(devices)).Msg("ble: scan finished")

	return devices, nil
}
