// Package session owns the lifecycle of one BLE session: scanning, selecting
// the target, connecting, subscribing and decoding notifications.
//
// Every command and every platform callback is funnelled through a single
// goroutine (Run), so transitions never race with each other.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"github.com/robertof/go-flextrack/channel"
	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/plan"
	"github.com/robertof/go-flextrack/utils"
	"github.com/rs/zerolog/log"
)

var (
	ErrScanEmpty              = errors.New("scan found no devices")
	ErrConnectionFailed       = errors.New("connection failed")
	ErrServiceNotFound        = errors.New("service not found")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrNotConnected           = errors.New("not connected")
	ErrTimeout                = errors.New("timeout")
)

// Output receives what the machine makes observable. Methods are invoked
// from the machine goroutine, in order, and must not block.
type Output interface {
	Log(line string)
	Value(v channel.Value)
	State(s State)
}

type Machine struct {
	platform Platform
	plan     *plan.Plan
	out      Output
	opts     Options

	inbox    chan any
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	snapshotMu sync.Mutex
	snapshot   State

	// owned by the Run goroutine
	state   State
	session SessionID
	target  device.DeviceSpec
	results []device.Device
	rescans int
	conn    Connection
	// set once the current connection delivered its first value
	streaming bool
	ctx       context.Context
	cancel    context.CancelFunc
	watchdog  *time.Timer
	rescan    *time.Timer
}

func New(platform Platform, p *plan.Plan, out Output, opts Options) *Machine {
	defaults.SetDefaults(&opts)

	return &Machine{
		platform: platform,
		plan:     p,
		out:      out,
		opts:     opts,
		inbox:    make(chan any, opts.QueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		state:    State{Kind: StateIdle},
		snapshot: State{Kind: StateIdle},
	}
}

// Run processes commands and events until ctx is cancelled or Stop is called.
// The connection handle, if any, is released on the way out.
func (m *Machine) Run(ctx context.Context) {
	defer close(m.done)
	defer m.shutdown()

	log.Debug().Stringer("Plan", m.plan).Msg("session: state machine started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case msg := <-m.inbox:
			m.handle(msg)
		}
	}
}

func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

// Done is closed once Run has returned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// State returns the current state. It is a copy; the machine exposes nothing
// that can be mutated from outside.
func (m *Machine) State() State {
	m.snapshotMu.Lock()
	defer m.snapshotMu.Unlock()

	return m.snapshot
}

// Post delivers a platform event. Safe from any goroutine; events posted after
// the machine stopped are dropped.
func (m *Machine) Post(ev Event) {
	m.post(ev)
}

func (m *Machine) post(msg any) bool {
	select {
	case <-m.done:
		return false
	default:
	}

	select {
	case m.inbox <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Machine) Scan() {
	m.post(cmdScan{})
}

func (m *Machine) Connect(target device.DeviceSpec) {
	m.post(cmdConnect{target: target})
}

// Disconnect requests a transition to Disconnected. The returned channel is
// closed once the transition happened (or immediately if the machine stopped).
func (m *Machine) Disconnect() <-chan struct{} {
	done := make(chan struct{})

	if !m.post(cmdDisconnect{done: done}) {
		close(done)
	}

	return done
}

// Send writes data to the plan's write characteristic. Only valid while
// Listening; otherwise ErrNotConnected is returned without touching the radio.
//
// The write runs on the caller's goroutine so its error can be returned. With
// write-with-response it blocks until the peripheral acknowledges the ATT
// request or the link goes down; write-without-response returns once queued.
func (m *Machine) Send(data []byte) error {
	reply := make(chan Connection, 1)

	if !m.post(cmdSend{reply: reply}) {
		return ErrNotConnected
	}

	var conn Connection

	select {
	case conn = <-reply:
	case <-m.done:
	}

	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.Write(data); err != nil {
		return errors.Wrap(err, "failed to write characteristic")
	}

	return nil
}

func (m *Machine) handle(msg any) {
	switch msg := msg.(type) {
	case cmdScan:
		m.onScan()
	case cmdConnect:
		m.onConnect(msg.target)
	case cmdDisconnect:
		m.onDisconnect()
		close(msg.done)
	case cmdSend:
		m.onSend(msg.reply)
	case rescanDue:
		m.onRescanDue(msg)
	case timeoutDue:
		m.onTimeout(msg)
	case listenDone:
		m.onListenDone(msg)
	case Event:
		if msg.sessionID() != m.session {
			staleEventsCounter.Inc()
			log.Trace().
				Uint64("Session", uint64(msg.sessionID())).
				Uint64("CurrentSession", uint64(m.session)).
				Str("Event", fmt.Sprintf("%T", msg)).
				Msg("session: dropping stale event")

			// a handle nobody asked for anymore must still be released.
			if c, ok := msg.(Connected); ok && c.Conn != nil {
				m.closeConn(c.Conn)
			}

			return
		}

		m.onEvent(msg)
	default:
		panic(fmt.Sprintf("session: unexpected message %T", msg))
	}
}

func (m *Machine) onEvent(ev Event) {
	switch ev := ev.(type) {
	case ScanEnded:
		m.onScanEnded(ev)
	case Connected:
		m.onConnected(ev)
	case ConnectionFailed:
		m.onConnectionFailed(ev)
	case ServiceNotFound:
		m.onServiceNotFound(ev)
	case Notification:
		m.onNotification(ev)
	case LinkLost:
		m.onLinkLost(ev)
	}
}

func (m *Machine) onScan() {
	if m.state.busy() {
		m.logf("Scan ignored while %v", m.state)
		return
	}

	m.target = nil
	m.startScan()
}

func (m *Machine) onConnect(target device.DeviceSpec) {
	if target.Name() == "" && target.Addr() == "" {
		m.logf("Connect ignored: no device name given")
		return
	}

	switch m.state.Kind {
	case StateConnecting, StateConnected, StateListening:
		m.logf("Connect ignored while %v", m.state)
		return
	case StateScanning:
		m.target = target
		m.logf("Start connecting Bluetooth: %v (after scan)", target)
		return
	}

	m.target = target
	m.logf("Start connecting Bluetooth: %v", target)

	if len(m.results) > 0 {
		devices := m.results
		m.results = nil
		m.selectAndConnect(devices)

		return
	}

	m.startScan()
}

func (m *Machine) startScan() {
	m.release()
	m.results = nil
	m.rescans = 0
	m.session++
	m.newAttempt()

	m.transition(State{Kind: StateScanning})
	m.armWatchdog(m.opts.ScanTimeout, StateScanning)
	m.platform.Scan(m.ctx, m.session, m.Post)
}

func (m *Machine) onScanEnded(ev ScanEnded) {
	if m.state.Kind != StateScanning {
		return
	}

	if ev.Err != nil || len(ev.Devices) == 0 {
		err := ev.Err
		if err == nil {
			err = ErrScanEmpty
		}

		m.retryScan(err)
		return
	}

	m.stopTimers()
	m.logf("Scan finished: %d device(s) found", len(ev.Devices))

	log.Debug().
		Array("Devices", utils.ToZeroLogArray(ev.Devices)).
		Uint64("Session", uint64(m.session)).
		Msg("session: scan ended")

	if m.target == nil {
		m.cancelAttempt()
		m.results = ev.Devices
		m.transition(State{Kind: StateIdle})

		return
	}

	m.selectAndConnect(ev.Devices)
}

func (m *Machine) retryScan(cause error) {
	if m.rescans >= m.opts.rescansAllowed() {
		m.logf("No devices found after %d rescan(s): %v", m.rescans, cause)
		m.fail(ReasonNoDevices)

		return
	}

	delay := backoffDelay(m.opts.Backoff, m.rescans, m.opts.MaxBackoff)
	m.rescans += 1
	rescansCounter.Inc()

	m.logf("No devices found, rescanning in %v (%d/%d)", delay, m.rescans, m.opts.rescansAllowed())

	id := m.session
	m.rescan = time.AfterFunc(delay, func() {
		m.post(rescanDue{session: id})
	})
}

func (m *Machine) onRescanDue(msg rescanDue) {
	if msg.session != m.session || m.state.Kind != StateScanning || m.cancel == nil {
		return
	}

	m.newAttempt()
	m.platform.Scan(m.ctx, m.session, m.Post)
}

func (m *Machine) selectAndConnect(devices []device.Device) {
	target, err := device.Choose(devices, m.target)

	if err != nil {
		m.logf("No device found: %v", err)
		m.release()
		m.session++
		m.fail(ReasonTargetNotFound)

		return
	}

	m.release()
	m.session++
	m.newAttempt()

	m.logf("Connecting to %v", target)
	m.transition(State{Kind: StateConnecting})
	m.armWatchdog(m.opts.ConnectTimeout, StateConnecting)
	m.platform.Connect(m.ctx, m.session, target, m.plan, m.Post)
}

func (m *Machine) onConnected(ev Connected) {
	if m.state.Kind != StateConnecting || ev.Conn == nil {
		if ev.Conn != nil {
			m.closeConn(ev.Conn)
		}

		return
	}

	m.conn = ev.Conn
	m.streaming = false
	m.logf("Connect successfully")
	m.transition(State{Kind: StateConnected})

	// re-arm: the watchdog now covers subscription.
	m.armWatchdog(m.opts.ConnectTimeout, StateConnected)

	id, conn, p, ctx := m.session, ev.Conn, m.plan, m.ctx

	go func() {
		err := conn.Listen(ctx, func(raw channel.RawNotification) {
			m.post(Notification{Session: id, Raw: raw})
		})

		if err == nil {
			log.Trace().Uint64("Session", uint64(id)).Int("Characteristics", p.Len()).
				Msg("session: subscribed")
		}

		m.post(listenDone{session: id, err: err})
	}()
}

func (m *Machine) onListenDone(msg listenDone) {
	if msg.session != m.session || m.state.Kind != StateConnected {
		return
	}

	m.stopTimers()

	if msg.err != nil {
		m.logf("Subscribe failed: %v", msg.err)

		if utils.ErrorIsAnyOf(msg.err, ErrServiceNotFound) {
			m.failAndDisconnect(ReasonServiceNotFound)
		} else {
			m.failAndDisconnect(ReasonSubscribeFailed)
		}

		return
	}

	m.transition(State{Kind: StateListening})
}

func (m *Machine) onConnectionFailed(ev ConnectionFailed) {
	if m.state.Kind != StateConnecting && m.state.Kind != StateConnected {
		return
	}

	m.logf("Connection failed: %v", ev.Err)

	if utils.ErrorIsAnyOf(ev.Err, ErrServiceNotFound, ErrCharacteristicNotFound) {
		m.failAndDisconnect(ReasonServiceNotFound)
		return
	}

	m.failAndDisconnect(ReasonConnectionFailed)
}

func (m *Machine) onServiceNotFound(ev ServiceNotFound) {
	if m.state.Kind != StateConnecting && m.state.Kind != StateConnected {
		return
	}

	m.logf("No device found: service %v", ev.Service)
	m.failAndDisconnect(ReasonServiceNotFound)
}

// onNotification decodes in Connected as well: a characteristic may start
// notifying before the remaining ones are subscribed.
func (m *Machine) onNotification(ev Notification) {
	if !m.state.linked() {
		staleEventsCounter.Inc()
		log.Trace().Stringer("State", m.state).Msg("session: dropping notification while unlinked")

		return
	}

	v, err := channel.Decode(ev.Raw, m.plan)

	if err != nil {
		decodeFailuresCounter.Inc()
		m.logf("Dropped notification: %v", err)

		return
	}

	log.Trace().Stringer("Value", v).Msg("session: decoded notification")

	if !m.streaming {
		m.streaming = true
		m.logf("Receiving values, first: %v", v)
	}

	m.out.Value(v)
}

func (m *Machine) onLinkLost(ev LinkLost) {
	if !m.state.linked() {
		return
	}

	m.logf("Connection lost: %v", ev.Err)
	m.release()
	m.session++
	m.transition(State{Kind: StateDisconnected})
}

func (m *Machine) onDisconnect() {
	m.logf("Disconnect")

	m.target = nil
	m.results = nil

	if m.state.Kind == StateDisconnected {
		return
	}

	m.release()
	m.session++
	m.transition(State{Kind: StateDisconnected})
}

func (m *Machine) onSend(reply chan Connection) {
	if m.state.Kind != StateListening || m.conn == nil {
		m.logf("Cannot send while %v", m.state)
		reply <- nil

		return
	}

	reply <- m.conn
}

func (m *Machine) onTimeout(msg timeoutDue) {
	if msg.session != m.session || m.state.Kind != msg.phase {
		return
	}

	m.logf("%v timed out", m.state)
	m.release()
	m.session++
	m.fail(ReasonTimeout)
}

func (m *Machine) fail(reason string) {
	m.stopTimers()
	m.transition(State{Kind: StateFailed, Reason: reason})
}

// failAndDisconnect is the cleanup path for connection-level failures: they
// pass through Failed and settle in Disconnected with the handle released.
func (m *Machine) failAndDisconnect(reason string) {
	m.fail(reason)
	m.logf("Disconnect")
	m.release()
	m.session++
	m.transition(State{Kind: StateDisconnected})
}

// release cancels the in-flight attempt and closes the connection handle.
func (m *Machine) release() {
	m.cancelAttempt()
	m.stopTimers()

	if m.conn != nil {
		m.closeConn(m.conn)
		m.conn = nil
	}
}

func (m *Machine) closeConn(c Connection) {
	releasesCounter.Inc()

	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("session: failed to close connection")
	}
}

// newAttempt replaces the context of the in-flight platform operation.
func (m *Machine) newAttempt() {
	m.cancelAttempt()
	m.ctx, m.cancel = context.WithCancel(context.Background())
}

func (m *Machine) cancelAttempt() {
	if m.cancel != nil {
		m.cancel()
	}

	m.ctx, m.cancel = nil, nil
}

func (m *Machine) armWatchdog(d time.Duration, phase StateKind) {
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}

	if d <= 0 {
		return
	}

	id := m.session
	m.watchdog = time.AfterFunc(d, func() {
		m.post(timeoutDue{session: id, phase: phase})
	})
}

func (m *Machine) stopTimers() {
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}

	if m.rescan != nil {
		m.rescan.Stop()
		m.rescan = nil
	}
}

func (m *Machine) transition(to State) {
	from := m.state
	m.state = to

	transitionsCounter.WithLabelValues(to.Kind.String()).Inc()

	log.Debug().
		Stringer("From", from).
		Stringer("To", to).
		Uint64("Session", uint64(m.session)).
		Msg("session: transition")

	m.out.Log(fmt.Sprintf("%v -> %v", from, to))
	m.out.State(to)

	// published last: whoever observes the new state has seen its output too.
	m.snapshotMu.Lock()
	m.snapshot = to
	m.snapshotMu.Unlock()
}

func (m *Machine) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)

	log.Debug().Uint64("Session", uint64(m.session)).Msg("session: " + line)
	m.out.Log(line)
}

func (m *Machine) shutdown() {
	m.release()
	m.stopTimers()

	log.Debug().Stringer("State", m.state).Msg("session: state machine stopped")
}
