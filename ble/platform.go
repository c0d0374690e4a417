package ble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/plan"
	"github.com/robertof/go-flextrack/session"
	"github.com/robertof/go-flextrack/utils"
	"github.com/rs/zerolog/log"
)

var _ session.Platform = (*Handle)(nil)

// Scan runs one scan window in the background and reports its outcome.
func (h *Handle) Scan(ctx context.Context, id session.SessionID, report session.Report) {
	go func() {
		devices, err := h.ScanDevices(ctx, h.ScanWindow)

		if ctx.Err() != nil {
			log.Trace().Uint64("Session", uint64(id)).Msg("ble: scan cancelled")
			return
		}

		report(session.ScanEnded{Session: id, Devices: devices, Err: err})
	}()
}

// Connect dials target and matches its GATT profile against p in the
// background. The link is torn down again if ctx is cancelled before the
// connection could be handed over.
func (h *Handle) Connect(ctx context.Context, id session.SessionID, target device.Device, p *plan.Plan, report session.Report) {
	go func() {
		conn, err := h.connect(ctx, target, p)

		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}

			return
		}

		switch {
		case err == nil:
			report(session.Connected{Session: id, Conn: conn})
			conn.watch(id, report)
		case utils.ErrorIsAnyOf(err, session.ErrServiceNotFound):
			log.Debug().Err(err).Stringer("Device", target).Msg("ble: service not found")
			report(session.ServiceNotFound{Session: id, Service: p.Service()})
		default:
			log.Debug().Err(err).Stringer("Device", target).Msg("ble: connection failed")
			report(session.ConnectionFailed{Session: id, Err: err})
		}
	}()
}

func (h *Handle) connect(ctx context.Context, target device.Device, p *plan.Plan) (*connection, error) {
	client, err := h.dial(ctx, target.Addr)

	if err != nil {
		return nil, err
	}

	layout, err := discover(client, p)

	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			log.Warn().Err(cancelErr).Msg("ble: failed to cancel connection after discovery failure")
		}

		disconnectsCounter.Inc()

		return nil, err
	}

	log.Debug().
		Stringer("Device", target).
		Int("Characteristics", len(layout.notify)).
		Bool("Writable", layout.write != nil).
		Msg("ble: profile matches plan")

	return newConnection(client, layout), nil
}

func discover(client ble.Client, p *plan.Plan) (*gattLayout, error) {
	profile, err := client.DiscoverProfile(true)

	if err != nil {
		return nil, errors.Wrap(err, "failed to discover profile")
	}

	return matchProfile(profile, p)
}
