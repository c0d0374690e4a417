package channel_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownPayload(t *testing.T) {
	// 12.5 as little-endian IEEE-754 single precision
	payload := []byte{0x00, 0x00, 0x48, 0x41}
	at := time.Now()

	got, err := channel.Decode(channel.RawNotification{
		Characteristic: plan.UUIDFromShort(plan.DefaultCharX),
		Payload:        payload,
		ReceivedAt:     at,
	}, plan.Default())
	require.NoError(t, err)

	want := channel.Value{Channel: plan.ChannelX, Value: 12.5, At: at}
	assert.Equal(t, want, got)
}

func TestDecode_RoundTrip(t *testing.T) {
	p := plan.Default()
	values := []float32{
		0, -0.0, 1, -1, 12.5, -179.99, 359.5,
		math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(1)),
	}

	for _, e := range p.Entries() {
		for _, f := range values {
			got, err := channel.Decode(channel.RawNotification{
				Characteristic: e.UUID,
				Payload:        channel.Encode(f),
			}, p)

			require.NoError(t, err)
			assert.Equal(t, e.Channel, got.Channel)
			assert.Equal(t, math.Float32bits(f), math.Float32bits(got.Value), "value %v", f)
		}
	}
}

func TestDecode_NaN(t *testing.T) {
	got, err := channel.Decode(channel.RawNotification{
		Characteristic: plan.UUIDFromShort(plan.DefaultCharZ),
		Payload:        channel.Encode(float32(math.NaN())),
	}, plan.Default())

	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(got.Value)))
}

func TestDecode_MalformedPayload(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 5, 8, 20} {
		_, err := channel.Decode(channel.RawNotification{
			Characteristic: plan.UUIDFromShort(plan.DefaultCharY),
			Payload:        make([]byte, n),
		}, plan.Default())

		assert.True(t, errors.Is(err, channel.ErrMalformedPayload), "length %d: got %v", n, err)
	}

	_, err := channel.Decode(channel.RawNotification{
		Characteristic: plan.UUIDFromShort(plan.DefaultCharY),
	}, plan.Default())
	assert.True(t, errors.Is(err, channel.ErrMalformedPayload), "nil payload: got %v", err)
}

func TestDecode_UnknownCharacteristic(t *testing.T) {
	for _, u := range []plan.UUID{
		plan.UUIDFromShort(plan.DefaultService),
		plan.UUIDFromShort(0x2a37),
		"6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		"",
	} {
		_, err := channel.Decode(channel.RawNotification{
			Characteristic: u,
			Payload:        channel.Encode(1),
		}, plan.Default())

		assert.True(t, errors.Is(err, channel.ErrUnknownCharacteristic), "uuid %q: got %v", u, err)
	}
}
