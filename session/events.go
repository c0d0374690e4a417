package session

import (
	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/plan"
)

// Event is something the platform reports asynchronously.
type Event interface {
	sessionID() SessionID
}

type ScanEnded struct {
	Session SessionID
	Devices []device.Device
	Err     error
}

type Connected struct {
	Session SessionID
	Conn    Connection
}

type ConnectionFailed struct {
	Session SessionID
	Err     error
}

type ServiceNotFound struct {
	Session SessionID
	Service plan.UUID
}

type Notification struct {
	Session SessionID
	Raw     channel.RawNotification
}

// LinkLost is reported when an established connection drops on its own.
type LinkLost struct {
	Session SessionID
	Err     error
}

func (e ScanEnded) sessionID() SessionID        { return e.Session }
func (e Connected) sessionID() SessionID        { return e.Session }
func (e ConnectionFailed) sessionID() SessionID { return e.Session }
func (e ServiceNotFound) sessionID() SessionID  { return e.Session }
func (e Notification) sessionID() SessionID     { return e.Session }
func (e LinkLost) sessionID() SessionID         { return e.Session }

// internal messages, only ever produced by the machine itself or its API.
type (
	cmdScan struct{}

	cmdConnect struct {
		target device.DeviceSpec
	}

	cmdDisconnect struct {
		done chan struct{}
	}

	cmdSend struct {
		reply chan Connection
	}

	rescanDue struct {
		session SessionID
	}

	timeoutDue struct {
		session SessionID
		phase   StateKind
	}

	listenDone struct {
		session SessionID
		err     error
	}
)
