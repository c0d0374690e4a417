package channel

import (
	"fmt"
	"time"

	"github.com/robertof/go-flextrack/plan"
)

// Value is a single decoded sample of a channel.
type Value struct {
	Channel plan.Channel
	Value   float32
	At      time.Time
}

func (v Value) String() string {
	return fmt.Sprintf("Value[%v=%.3f]", v.Channel, v.Value)
}

// RawNotification is a characteristic value pushed by the peripheral.
type RawNotification struct {
	Characteristic plan.UUID
	Payload        []byte
	ReceivedAt     time.Time
}

func (r RawNotification) String() string {
	return fmt.Sprintf("notification[char=%v, payload=%x]", r.Characteristic, r.Payload)
}
