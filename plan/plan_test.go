package plan_test

import (
	"errors"
	"testing"

	"github.com/robertof/go-flextrack/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDFromShort(t *testing.T) {
	tests := []struct {
		short uint16
		want  plan.UUID
	}{
		{0x1101, "00001101-0000-1000-8000-00805f9b34fb"},
		{0x2a37, "00002a37-0000-1000-8000-00805f9b34fb"},
		{0x0000, "00000000-0000-1000-8000-00805f9b34fb"},
		{0xffff, "0000ffff-0000-1000-8000-00805f9b34fb"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, plan.UUIDFromShort(tt.short))
	}

	assert.Equal(t, plan.UUID(plan.BaseUUID), plan.UUIDFromShort(0))
}

func TestParseUUID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  plan.UUID
	}{
		{"short", "1102", "00001102-0000-1000-8000-00805f9b34fb"},
		{"short with prefix", "0x1102", "00001102-0000-1000-8000-00805f9b34fb"},
		{"short uppercase", "2A37", "00002a37-0000-1000-8000-00805f9b34fb"},
		{"full dashed", "00001102-0000-1000-8000-00805F9B34FB", "00001102-0000-1000-8000-00805f9b34fb"},
		{"full compact", "0000110200001000800000805f9b34fb", "00001102-0000-1000-8000-00805f9b34fb"},
		{"custom", "6e400001-b5a3-f393-e0a9-e50e24dcca9e", "6e400001-b5a3-f393-e0a9-e50e24dcca9e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := plan.ParseUUID(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUUID_Invalid(t *testing.T) {
	for _, input := range []string{"", "11", "zzzz", "6e400001-b5a3-f393-e0a9-e50e24dccaXX", "110"} {
		_, err := plan.ParseUUID(input)
		assert.True(t, errors.Is(err, plan.ErrInvalidUUID), "ParseUUID(%q) got %v", input, err)
	}
}

func TestUUIDShort(t *testing.T) {
	short, ok := plan.UUIDFromShort(0x1103).Short()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1103), short)

	_, ok = plan.MustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e").Short()
	assert.False(t, ok)

	assert.Equal(t, "1103", plan.UUIDFromShort(0x1103).String())
}

func TestBuild(t *testing.T) {
	p, err := plan.Build(plan.UUIDFromShort(0x1101), []plan.Entry{
		{UUID: plan.UUIDFromShort(0x1102), Channel: plan.ChannelX},
		{UUID: plan.UUIDFromShort(0x1103), Channel: plan.ChannelY},
	})
	require.NoError(t, err)

	assert.Equal(t, plan.UUIDFromShort(0x1101), p.Service())
	assert.Equal(t, plan.UUIDFromShort(0x1102), p.WriteCharacteristic())
	assert.Equal(t, 2, p.Len())

	ch, ok := p.Lookup(plan.UUIDFromShort(0x1103))
	assert.True(t, ok)
	assert.Equal(t, plan.ChannelY, ch)

	_, ok = p.Lookup(plan.UUIDFromShort(0x1104))
	assert.False(t, ok)
}

func TestBuild_DuplicateCharacteristic(t *testing.T) {
	_, err := plan.Build(plan.UUIDFromShort(0x1101), []plan.Entry{
		{UUID: plan.UUIDFromShort(0x1102), Channel: plan.ChannelX},
		{UUID: plan.UUIDFromShort(0x1102), Channel: plan.ChannelY},
	})

	assert.True(t, errors.Is(err, plan.ErrDuplicateCharacteristic), "got %v", err)
}

func TestBuild_Invalid(t *testing.T) {
	_, err := plan.Build("", []plan.Entry{{UUID: plan.UUIDFromShort(1), Channel: plan.ChannelX}})
	assert.True(t, errors.Is(err, plan.ErrInvalidUUID))

	_, err = plan.Build(plan.UUIDFromShort(0x1101), nil)
	assert.True(t, errors.Is(err, plan.ErrEmptyPlan))

	_, err = plan.Build(plan.UUIDFromShort(0x1101), []plan.Entry{{UUID: plan.UUIDFromShort(1)}})
	assert.True(t, errors.Is(err, plan.ErrInvalidEntry))
}

func TestBuild_WriteCharacteristic(t *testing.T) {
	write := plan.UUIDFromShort(0x1105)

	p, err := plan.Build(
		plan.UUIDFromShort(0x1101),
		[]plan.Entry{{UUID: plan.UUIDFromShort(0x1102), Channel: plan.ChannelX}},
		plan.WithWriteCharacteristic(write),
	)
	require.NoError(t, err)

	assert.Equal(t, write, p.WriteCharacteristic())
}

func TestEntriesKeepOrder(t *testing.T) {
	p := plan.Default()

	assert.Equal(t, []plan.Entry{
		{UUID: "00001102-0000-1000-8000-00805f9b34fb", Channel: plan.ChannelX},
		{UUID: "00001103-0000-1000-8000-00805f9b34fb", Channel: plan.ChannelY},
		{UUID: "00001104-0000-1000-8000-00805f9b34fb", Channel: plan.ChannelZ},
	}, p.Entries())
	assert.Equal(t, plan.UUID("00001101-0000-1000-8000-00805f9b34fb"), p.Service())
}

func TestParseEntries(t *testing.T) {
	entries, err := plan.ParseEntries("x=1102, y=0x1103,roll=6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	require.NoError(t, err)

	assert.Equal(t, []plan.Entry{
		{UUID: plan.UUIDFromShort(0x1102), Channel: plan.ChannelX},
		{UUID: plan.UUIDFromShort(0x1103), Channel: plan.ChannelY},
		{UUID: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", Channel: "ROLL"},
	}, entries)

	_, err = plan.ParseEntries("x")
	assert.True(t, errors.Is(err, plan.ErrInvalidEntry))

	_, err = plan.ParseEntries("x=nope")
	assert.True(t, errors.Is(err, plan.ErrInvalidUUID))
}

func TestChannels(t *testing.T) {
	p, err := plan.Build(plan.UUIDFromShort(0x1101), []plan.Entry{
		{UUID: plan.UUIDFromShort(0x1104), Channel: plan.ChannelZ},
		{UUID: plan.UUIDFromShort(0x1102), Channel: plan.ChannelX},
		{UUID: plan.UUIDFromShort(0x1105), Channel: plan.ChannelX},
	})
	require.NoError(t, err)

	assert.Equal(t, []plan.Channel{plan.ChannelX, plan.ChannelZ}, p.Channels())
}
