package channel

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/robertof/go-flextrack/plan"
)

// PayloadSize is the size of a channel sample: one little-endian float32.
const PayloadSize = 4

var (
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
	ErrMalformedPayload      = errors.New("malformed payload")
)

// Decode maps a notification to the channel it feeds in p. It holds no state
// and never panics on short or long payloads.
func Decode(raw RawNotification, p *plan.Plan) (v Value, err error) {
	ch, ok := p.Lookup(raw.Characteristic)

	if !ok {
		return v, errors.Wrapf(ErrUnknownCharacteristic, "%v is not part of %v", raw.Characteristic, p)
	}

	if len(raw.Payload) != PayloadSize {
		return v, errors.Wrapf(ErrMalformedPayload,
			"unexpected payload length (%d) for channel %v, want %d", len(raw.Payload), ch, PayloadSize)
	}

	v.Channel = ch
	v.Value = math.Float32frombits(binary.LittleEndian.Uint32(raw.Payload))
	v.At = raw.ReceivedAt

	return v, nil
}

// Encode is the inverse of Decode for a single sample.
func Encode(f float32) []byte {
	out := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint32(out, math.Float32bits(f))

	return out
}
