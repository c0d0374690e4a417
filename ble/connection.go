package ble

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/plan"
	"github.com/robertof/go-flextrack/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	scansCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_ble_scans_total",
	})
	successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_ble_successful_connections_total",
	})
	failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_ble_failed_connections_total",
	})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_ble_disconnections_total",
	})
	notificationsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flextrack_ble_notifications_total",
	})
)

func (h *Handle) dial(ctx context.Context, addr string) (ble.Client, error) {
	c, err := h.dev.Dial(ctx, ble.NewAddr(addr))

	if err != nil {
		failedConnectionsCounter.Inc()
		return nil, errors.Wrapf(session.ErrConnectionFailed, "dial %v: %v", addr, err)
	}

	successfulConnectionsCounter.Inc()
	log.Debug().Str("Addr", addr).Msg("ble: successfully opened new connection to device")

	return c, nil
}

// gattLayout is a discovered profile matched against a plan.
type gattLayout struct {
	notify []*ble.Characteristic
	uuids  []plan.UUID
	write  *ble.Characteristic
}

func toPlanUUID(u ble.UUID) (plan.UUID, error) {
	// go-ble prints UUIDs as plain big-endian hex, either 4 or 32 digits.
	return plan.ParseUUID(u.String())
}

// matchProfile finds the plan's service and characteristics in profile. A
// missing service is reported as session.ErrServiceNotFound and a missing
// subscribed characteristic as session.ErrCharacteristicNotFound. A missing
// write characteristic is tolerated: writes fail later instead.
func matchProfile(profile *ble.Profile, p *plan.Plan) (*gattLayout, error) {
	var service *ble.Service

	for _, s := range profile.Services {
		if u, err := toPlanUUID(s.UUID); err == nil && u == p.Service() {
			service = s
			break
		}
	}

	if service == nil {
		return nil, errors.Wrapf(session.ErrServiceNotFound, "%v", p.Service())
	}

	byUUID := make(map[plan.UUID]*ble.Characteristic, len(service.Characteristics))

	for _, c := range service.Characteristics {
		u, err := toPlanUUID(c.UUID)

		if err != nil {
			log.Trace().Err(err).Stringer("UUID", c.UUID).Msg("ble: ignoring characteristic with unparsable uuid")
			continue
		}

		byUUID[u] = c
	}

	layout := &gattLayout{
		write: byUUID[p.WriteCharacteristic()],
	}

	for _, e := range p.Entries() {
		c, ok := byUUID[e.UUID]

		if !ok {
			return nil, errors.Wrapf(session.ErrCharacteristicNotFound, "%v (channel %v)", e.UUID, e.Channel)
		}

		layout.notify = append(layout.notify, c)
		layout.uuids = append(layout.uuids, e.UUID)
	}

	return layout, nil
}

var _ session.Connection = (*connection)(nil)

// connection is a live link to the peripheral.
type connection struct {
	client ble.Client
	layout *gattLayout

	closeOnce sync.Once
	closing   atomic.Bool
	closed    chan struct{}
}

func newConnection(client ble.Client, layout *gattLayout) *connection {
	return &connection{
		client: client,
		layout: layout,
		closed: make(chan struct{}),
	}
}

func (c *connection) Listen(ctx context.Context, onNotify func(channel.RawNotification)) error {
	eg, ctx := errgroup.WithContext(ctx)

	for i, char := range c.layout.notify {
		char, u := char, c.layout.uuids[i]

		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := c.client.Subscribe(char, false, func(payload []byte) {
				notificationsCounter.Inc()

				data := make([]byte, len(payload))
				copy(data, payload)

				onNotify(channel.RawNotification{
					Characteristic: u,
					Payload:        data,
					ReceivedAt:     time.Now(),
				})
			})

			if err != nil {
				return errors.Wrapf(err, "failed to subscribe to %v", u)
			}

			log.Trace().Stringer("Characteristic", u).Msg("ble: subscribed")

			return nil
		})
	}

	return eg.Wait()
}

func (c *connection) Write(data []byte) error {
	if c.layout.write == nil {
		return errors.Wrap(session.ErrCharacteristicNotFound, "no write characteristic on peripheral")
	}

	if c.closing.Load() {
		return session.ErrNotConnected
	}

	// write with response when the peripheral supports it.
	noRsp := c.layout.write.Property&ble.CharWrite == 0

	return c.client.WriteCharacteristic(c.layout.write, data, noRsp)
}

func (c *connection) Close() (err error) {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.closed)

		err = c.client.CancelConnection()
		disconnectsCounter.Inc()

		log.Debug().Err(err).Msg("ble: connection closed")
	})

	return err
}

// watch reports LinkLost when the peer drops the link before Close.
func (c *connection) watch(id session.SessionID, report session.Report) {
	select {
	case <-c.client.Disconnected():
		if c.closing.Load() {
			return
		}

		disconnectsCounter.Inc()
		log.Debug().Msg("ble: connection with device closed by peer")

		report(session.LinkLost{Session: id, Err: errors.New("peer disconnected")})
	case <-c.closed:
	}
}
