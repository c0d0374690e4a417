package session

import (
	"strconv"
)

type StateKind uint8

const (
	StateIdle StateKind = iota
	StateScanning
	StateConnecting
	StateConnected
	StateListening
	StateDisconnected
	StateFailed
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "Idle"
	case StateScanning:
		return "Scanning"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateListening:
		return "Listening"
	case StateDisconnected:
		return "Disconnected"
	case StateFailed:
		return "Failed"
	default:
		panic("unknown StateKind value: " + strconv.Itoa(int(k)))
	}
}

// Reasons carried by StateFailed.
const (
	ReasonConnectionFailed = "connection failed"
	ReasonServiceNotFound  = "service not found"
	ReasonSubscribeFailed  = "subscribe failed"
	ReasonTargetNotFound   = "target not found"
	ReasonNoDevices        = "no devices found"
	ReasonTimeout          = "timeout"
)

type State struct {
	Kind   StateKind
	Reason string
}

func (s State) String() string {
	if s.Kind == StateFailed {
		return "Failed(" + s.Reason + ")"
	}

	return s.Kind.String()
}

// busy reports whether scan() and connect() must be ignored.
func (s State) busy() bool {
	switch s.Kind {
	case StateScanning, StateConnecting, StateConnected, StateListening:
		return true
	}

	return false
}

// linked reports whether a platform connection handle may be held.
func (s State) linked() bool {
	return s.Kind == StateConnected || s.Kind == StateListening
}
