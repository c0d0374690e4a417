package session

import (
	"context"

	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/plan"
)

// SessionID tags every scan or connect attempt. Events carrying an id other
// than the current one are stale and dropped.
type SessionID uint64

// Report hands an asynchronous platform event back to the state machine. It
// may be called from any goroutine.
type Report func(Event)

// Platform is the BLE stack the state machine drives. Calls are made from the
// state machine goroutine and must return promptly: outcomes are delivered
// later through report. Cancelling ctx aborts the operation.
type Platform interface {
	// Scan reports exactly one ScanEnded for id unless ctx is cancelled first.
	Scan(ctx context.Context, id SessionID, report Report)

	// Connect reports Connected, ConnectionFailed or ServiceNotFound for id.
	// After Connected it may report LinkLost when the peer goes away.
	Connect(ctx context.Context, id SessionID, target device.Device, p *plan.Plan, report Report)
}

// Connection is a live platform connection handle. The state machine calls
// Close exactly once per handle it receives.
type Connection interface {
	// Listen subscribes to every characteristic of the plan passed to Connect
	// and returns once subscriptions are in place.
	Listen(ctx context.Context, onNotify func(channel.RawNotification)) error
	Write(data []byte) error
	Close() error
}
