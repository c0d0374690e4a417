package main

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/robertof/go-flextrack/ble"
	"github.com/robertof/go-flextrack/plan"
)

const discoveryWindow = 5 * time.Second

type discoveredDevice struct {
	name        string
	connectable bool
	rssi        int
	services    map[string]bool
}

// merge folds an advertisement into what is known about its sender.
func (d *discoveredDevice) merge(a ble.Advertisement) {
	if d.name == "" {
		d.name = a.LocalName()
	}

	d.connectable = d.connectable || a.Connectable()
	d.rssi = a.RSSI()

	for _, uuid := range a.Services() {
		d.services[uuid.String()] = true
	}
}

// advertises reports whether the device announced service in any form.
func (d *discoveredDevice) advertises(service plan.UUID) bool {
	for raw := range d.services {
		if u, err := plan.ParseUUID(raw); err == nil && u == service {
			return true
		}
	}

	return false
}

func doDeviceDiscovery(cfg config) {
	log.Info().
		Dur("Window", discoveryWindow).
		Msg("Starting in device discovery mode - collecting devices...")

	handle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, ble.FlagScanTypeActive)

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
	}

	defer handle.Stop()

	p, err := cfg.Plan()

	if err != nil {
		log.Fatal().Err(err).Msg("Invalid subscription plan")
	}

	ctx := ble.WrapContextWithSigHandler(
		context.WithTimeout(context.Background(), discoveryWindow),
	)

	devices := make(map[string]*discoveredDevice)

	err = handle.ScanAll(ctx, func(a ble.Advertisement) {
		addr := a.Addr().String()

		d, ok := devices[addr]
		if !ok {
			d = &discoveredDevice{services: make(map[string]bool)}
			devices[addr] = d
		}

		d.merge(a)

		log.Debug().
			Str("Addr", addr).
			Str("Name", a.LocalName()).
			Int("RSSI", a.RSSI()).
			Bool("Connectable", a.Connectable()).
			Strs("Services", maps.Keys(d.services)).
			Hex("ManufacturerData", a.ManufacturerData()).
			Msg("Received device advertisement")
	})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initiate scan")
	}

	log.Info().Int("Found", len(devices)).Msg("Finished device discovery")

	addrs := maps.Keys(devices)
	slices.Sort(addrs)

	target := cfg.TargetSpec()

	for _, addr := range addrs {
		d := devices[addr]
		services := maps.Keys(d.services)
		slices.Sort(services)

		log.Info().
			Str("Addr", addr).
			Str("Name", d.name).
			Int("RSSI", d.rssi).
			Bool("Connectable", d.connectable).
			Strs("Services", services).
			Bool("AdvertisesService", d.advertises(p.Service())).
			Bool("MatchesTarget", target.Name() != "" && d.name == target.Name()).
			Msg("Found device")
	}
}
