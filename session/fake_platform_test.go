package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/plan"
)

type scanCall struct {
	ctx    context.Context
	id     SessionID
	report Report
}

type connectCall struct {
	ctx    context.Context
	id     SessionID
	target device.Device
	report Report
}

// fakePlatform records every request; tests play the radio by calling report.
type fakePlatform struct {
	mu       sync.Mutex
	scans    []scanCall
	connects []connectCall
}

func (p *fakePlatform) Scan(ctx context.Context, id SessionID, report Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scans = append(p.scans, scanCall{ctx: ctx, id: id, report: report})
}

func (p *fakePlatform) Connect(ctx context.Context, id SessionID, target device.Device, _ *plan.Plan, report Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connects = append(p.connects, connectCall{ctx: ctx, id: id, target: target, report: report})
}

func (p *fakePlatform) scanCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.scans)
}

func (p *fakePlatform) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.connects)
}

func (p *fakePlatform) lastScan() scanCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.scans[len(p.scans)-1]
}

func (p *fakePlatform) lastConnect() connectCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connects[len(p.connects)-1]
}

// endScan answers the latest scan request.
func (p *fakePlatform) endScan(devices ...device.Device) {
	call := p.lastScan()
	call.report(ScanEnded{Session: call.id, Devices: devices})
}

type fakeConnection struct {
	listenErr error
	// delivered from within Listen, before it returns
	early []channel.RawNotification

	mu       sync.Mutex
	onNotify func(channel.RawNotification)
	writes   [][]byte

	closes atomic.Int32
}

func (c *fakeConnection) Listen(_ context.Context, onNotify func(channel.RawNotification)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listenErr != nil {
		return c.listenErr
	}

	c.onNotify = onNotify

	for _, raw := range c.early {
		onNotify(raw)
	}

	return nil
}

func (c *fakeConnection) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)

	return nil
}

func (c *fakeConnection) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *fakeConnection) notify(raw channel.RawNotification) {
	c.mu.Lock()
	cb := c.onNotify
	c.mu.Unlock()

	if cb != nil {
		cb(raw)
	}
}

func (c *fakeConnection) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.writes)
}

// recorder is an Output keeping everything it sees.
type recorder struct {
	mu     sync.Mutex
	lines  []string
	values []channel.Value
	states []State
}

func (r *recorder) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, line)
}

func (r *recorder) Value(v channel.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values = append(r.values, v)
}

func (r *recorder) State(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, s)
}

func (r *recorder) stateKinds() []StateKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]StateKind, len(r.states))
	for i, s := range r.states {
		out[i] = s.Kind
	}

	return out
}

func (r *recorder) statesSnapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]State(nil), r.states...)
}

func (r *recorder) valuesSnapshot() []channel.Value {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]channel.Value(nil), r.values...)
}

func (r *recorder) linesSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.lines...)
}
