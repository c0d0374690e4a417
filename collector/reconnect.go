package collector

import (
	"context"
	"time"

	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/session"
	"github.com/rs/zerolog/log"
)

const DefaultReconnectInterval = 10 * time.Second

// Connector is the part of client.Client the reconnect loop drives.
type Connector interface {
	ConnectSpec(spec device.DeviceSpec)
	OnState(f func(s session.State)) (unsubscribe func())
}

// KeepConnected connects to target and connects again, interval after the
// session settles in Disconnected or Failed, until ctx is done. The delay
// doubles on every consecutive failure, capped at 8 * interval, and resets
// once the session reaches Listening.
func KeepConnected(ctx context.Context, c Connector, target device.DeviceSpec, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}

	states := make(chan session.State, 16)

	unsubscribe := c.OnState(func(s session.State) {
		// observers must not block: drop intermediate states when behind.
		select {
		case states <- s:
		default:
		}
	})
	defer unsubscribe()

	log.Info().
		Stringer("Target", target).
		Dur("Interval", interval).
		Msg("Starting reconnect loop")

	c.ConnectSpec(target)

	attempt := 0

	for {
		var s session.State

		select {
		case <-ctx.Done():
			log.Debug().Msg("collector: reconnect loop stopped")
			return
		case s = <-states:
		}

		switch s.Kind {
		case session.StateListening:
			attempt = 0
			continue
		case session.StateDisconnected, session.StateFailed:
		default:
			continue
		}

		delay := interval << uint(min(attempt, 3))
		attempt += 1

		log.Warn().
			Stringer("State", s).
			Dur("RetryIn", delay).
			Int("Attempt", attempt).
			Msg("Session lost, reconnecting")

		select {
		case <-ctx.Done():
			log.Debug().Msg("collector: reconnect loop stopped")
			return
		case <-time.After(delay):
		}

		drain(states)
		c.ConnectSpec(target)
	}
}

func drain(states chan session.State) {
	for {
		select {
		case <-states:
		default:
			return
		}
	}
}
