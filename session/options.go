package session

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Options tune retry and timeout behaviour. Zero values are replaced with the
// defaults below; use a negative value to disable a feature.
type Options struct {
	// Rescans allowed in a row while scans come back empty. Negative: none.
	MaxRescans int `default:"5"`

	// Delay before rescan n is Backoff << n, capped at MaxBackoff.
	Backoff    time.Duration `default:"500ms"`
	MaxBackoff time.Duration `default:"30s"`

	// Bound on the whole Scanning phase, rescans included. Negative: unbounded.
	ScanTimeout time.Duration `default:"-1s"`

	// Bound on Connecting and Connected (dial, discovery, subscription).
	ConnectTimeout time.Duration `default:"15s"`

	// Inbox size of the state machine goroutine.
	QueueSize int `default:"256"`
}

func DefaultOptions() Options {
	var opts Options
	defaults.SetDefaults(&opts)

	return opts
}

func (o *Options) rescansAllowed() int {
	if o.MaxRescans < 0 {
		return 0
	}

	return o.MaxRescans
}

// backoffDelay returns the delay before rescan attempt (0-based).
func backoffDelay(factor time.Duration, attempt int, max time.Duration) time.Duration {
	if factor <= 0 {
		return 0
	}

	if attempt > 30 {
		attempt = 30
	}

	d := factor << uint(attempt)

	if d <= 0 || (max > 0 && d > max) {
		return max
	}

	return d
}
