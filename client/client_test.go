package client_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/client"
	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/plan"
	"github.com/robertof/go-flextrack/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// stubPlatform answers every scan with devices and every connect with conn.
type stubPlatform struct {
	devices []device.Device
	conn    *stubConn

	scans atomic.Int32
}

func (p *stubPlatform) Scan(_ context.Context, id session.SessionID, report session.Report) {
	p.scans.Add(1)
	devices := p.devices

	go report(session.ScanEnded{Session: id, Devices: devices})
}

func (p *stubPlatform) Connect(_ context.Context, id session.SessionID, _ device.Device, _ *plan.Plan, report session.Report) {
	go report(session.Connected{Session: id, Conn: p.conn})
}

type stubConn struct {
	mu       sync.Mutex
	onNotify func(channel.RawNotification)
	writes   []string

	closes atomic.Int32
}

func (c *stubConn) Listen(_ context.Context, onNotify func(channel.RawNotification)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onNotify = onNotify
	return nil
}

func (c *stubConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writes = append(c.writes, string(data))
	return nil
}

func (c *stubConn) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *stubConn) notify(raw channel.RawNotification) {
	c.mu.Lock()
	f := c.onNotify
	c.mu.Unlock()

	f(raw)
}

func (c *stubConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.writes...)
}

func startClient(t *testing.T, platform session.Platform, opts client.Options) *client.Client {
	t.Helper()

	c := client.New(platform, plan.Default(), opts)
	go c.Run(context.Background())
	t.Cleanup(c.Close)

	return c
}

func waitState(t *testing.T, c *client.Client, kind session.StateKind) {
	t.Helper()

	require.Eventually(t, func() bool {
		return c.State().Kind == kind
	}, waitFor, tick, "never reached %v, stuck in %v", kind, c.State())
}

func TestConnectReceiveSend(t *testing.T) {
	conn := &stubConn{}
	platform := &stubPlatform{
		devices: []device.Device{{Name: "Other", Addr: "11"}, {Name: "FlexTrackIoT", Addr: "22"}},
		conn:    conn,
	}

	c := startClient(t, platform, client.Options{})

	var mu sync.Mutex
	var values []channel.Value

	c.OnValue(func(v channel.Value) {
		mu.Lock()
		defer mu.Unlock()

		values = append(values, v)
	})

	c.Connect("FlexTrackIoT")
	waitState(t, c, session.StateListening)

	conn.notify(channel.RawNotification{
		Characteristic: plan.UUIDFromShort(plan.DefaultCharX),
		Payload:        channel.Encode(12.5),
		ReceivedAt:     time.Now(),
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(values) == 1
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, plan.ChannelX, values[0].Channel)
	assert.Equal(t, float32(12.5), values[0].Value)
	mu.Unlock()

	require.NoError(t, c.Send("hello"))
	assert.Equal(t, []string{"hello"}, conn.written())

	assert.Contains(t, c.Log(), "Connect successfully")

	c.Close()
	c.Close()

	assert.EqualValues(t, 1, conn.closes.Load())
	assert.Equal(t, session.StateDisconnected, c.State().Kind)
}

func TestSendWhileIdle(t *testing.T) {
	c := startClient(t, &stubPlatform{}, client.Options{})

	err := c.Send("nope")
	assert.ErrorIs(t, err, session.ErrNotConnected)
}

func TestObserversOrderAndUnsubscribe(t *testing.T) {
	c := startClient(t, &stubPlatform{}, client.Options{
		Session: session.Options{MaxRescans: -1},
	})

	var mu sync.Mutex
	var seen []string

	record := func(tag string) func(string) {
		return func(line string) {
			mu.Lock()
			defer mu.Unlock()

			seen = append(seen, tag+":"+line)
		}
	}

	c.OnLog(record("a"))
	unsubscribeB := c.OnLog(record("b"))

	c.Scan()
	waitState(t, c, session.StateFailed)

	mu.Lock()
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, "a:Idle -> Scanning", seen[0])
	assert.Equal(t, "b:Idle -> Scanning", seen[1])
	seen = nil
	mu.Unlock()

	unsubscribeB()
	unsubscribeB()

	c.Scan()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(seen) >= 3
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()

	for _, line := range seen {
		assert.Regexp(t, "^a:", line)
	}
}

func TestLogIsBoundedNewestFirst(t *testing.T) {
	c := startClient(t, &stubPlatform{}, client.Options{
		Session:     session.Options{MaxRescans: -1},
		MaxLogLines: 4,
	})

	var lines atomic.Int32
	c.OnLog(func(string) { lines.Add(1) })

	c.Scan()
	require.Eventually(t, func() bool { return lines.Load() >= 3 }, waitFor, tick)
	waitState(t, c, session.StateFailed)

	c.Scan()
	require.Eventually(t, func() bool { return lines.Load() >= 6 }, waitFor, tick)
	waitState(t, c, session.StateFailed)

	log := c.Log()
	require.Len(t, log, 4)
	assert.Equal(t, client.LogHeader, log[3])
	assert.Contains(t, log[0], "Failed(no devices found)")

	c.ClearLog()
	assert.Equal(t, []string{client.LogHeader}, c.Log())
}

func TestCloseWithoutRun(t *testing.T) {
	c := client.New(&stubPlatform{}, plan.Default(), client.Options{})

	done := make(chan struct{})
	go func() {
		c.Close()
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close blocked without Run")
	}
}
