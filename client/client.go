// Package client is the facade handed to whatever presents the data: it owns
// a session state machine, keeps a bounded log and fans values, log lines
// and state changes out to any number of observers.
//
// Observers are called in registration order from the state machine
// goroutine. They must not block and must not call back into the Client
// synchronously (Send or Close from an observer deadlocks); hand work off to
// another goroutine instead.
package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mcuadros/go-defaults"
	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/plan"
	"github.com/robertof/go-flextrack/session"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Session session.Options

	// Lines kept by Log(), header included.
	MaxLogLines int `default:"256"`
}

type Client struct {
	machine *session.Machine
	plan    *plan.Plan

	log *logBuffer

	logObservers   *observers[string]
	valueObservers *observers[channel.Value]
	stateObservers *observers[session.State]

	started   atomic.Bool
	closeOnce sync.Once
}

// output adapts the client to session.Output without exposing those methods.
type output struct {
	c *Client
}

func (o output) Log(line string) {
	o.c.log.append(line)
	o.c.logObservers.emit(line)
}

func (o output) Value(v channel.Value) {
	o.c.valueObservers.emit(v)
}

func (o output) State(s session.State) {
	o.c.stateObservers.emit(s)
}

func New(platform session.Platform, p *plan.Plan, opts Options) *Client {
	defaults.SetDefaults(&opts)

	c := &Client{
		plan:           p,
		log:            newLogBuffer(opts.MaxLogLines),
		logObservers:   newObservers[string](),
		valueObservers: newObservers[channel.Value](),
		stateObservers: newObservers[session.State](),
	}

	c.machine = session.New(platform, p, output{c}, opts.Session)

	return c
}

// Run drives the client until ctx is cancelled or Close is called.
func (c *Client) Run(ctx context.Context) {
	c.started.Store(true)
	c.machine.Run(ctx)
}

func (c *Client) Plan() *plan.Plan {
	return c.plan
}

func (c *Client) State() session.State {
	return c.machine.State()
}

// Done is closed once Run returned.
func (c *Client) Done() <-chan struct{} {
	return c.machine.Done()
}

func (c *Client) Scan() {
	c.machine.Scan()
}

// Connect looks for a device named name, scanning first unless results of a
// previous scan are at hand, and subscribes to the plan once connected.
func (c *Client) Connect(name string) {
	c.machine.Connect(device.NameSpec(name))
}

// ConnectSpec is Connect with a full device spec (name and/or addr).
func (c *Client) ConnectSpec(spec device.DeviceSpec) {
	c.machine.Connect(spec)
}

// Send writes msg verbatim to the write characteristic. Unlike the other
// operations it blocks for one ATT write, see session.Machine.Send.
func (c *Client) Send(msg string) error {
	return c.SendBytes([]byte(msg))
}

func (c *Client) SendBytes(data []byte) error {
	return c.machine.Send(data)
}

// Disconnect requests a disconnection; the returned channel is closed once
// the session settled in Disconnected (or the client stopped).
func (c *Client) Disconnect() <-chan struct{} {
	return c.machine.Disconnect()
}

// ClearLog drops every line but the header.
func (c *Client) ClearLog() {
	c.log.reset()
}

// Log returns the retained lines, newest first. The header is always last.
func (c *Client) Log() []string {
	return c.log.newestFirst()
}

func (c *Client) OnLog(f func(line string)) (unsubscribe func()) {
	return c.logObservers.add(f)
}

func (c *Client) OnValue(f func(v channel.Value)) (unsubscribe func()) {
	return c.valueObservers.add(f)
}

func (c *Client) OnState(f func(s session.State)) (unsubscribe func()) {
	return c.stateObservers.add(f)
}

// Close disconnects, releasing the connection handle, and stops the client.
// Safe to call more than once and from several goroutines.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.started.Load() {
			select {
			case <-c.machine.Disconnect():
			case <-c.machine.Done():
			}
		}

		c.machine.Stop()

		if c.started.Load() {
			<-c.machine.Done()
		}

		log.Debug().
			Int("LogObservers", c.logObservers.len()).
			Int("ValueObservers", c.valueObservers.len()).
			Msg("client: closed")
	})
}
