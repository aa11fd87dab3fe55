package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fschwaiger/cubetracker/internal/side"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Control is the one user action that applies to the current state.
type Control int

const (
	ControlConnect Control = iota
	ControlCancel
	ControlDisconnect
)

func (c Control) String() string {
	switch c {
	case ControlConnect:
		return "connect"
	case ControlCancel:
		return "cancel"
	default:
		return "disconnect"
	}
}

// Sink receives session events. Calls are made from a single goroutine in
// the order the events happened, so a Sink may mutate shared state (such as
// switching the active action set) without further locking.
type Sink interface {
	StateChanged(state State, err error)
	SideChanged(s side.Side)
}

// Session drives one tracker through scan, connect, discovery and
// subscription, and forwards side changes to its Sink. Each connect attempt
// gets a new generation; completions of an older attempt are released and
// ignored.
type Session struct {
	adapter    Adapter
	deviceName string
	match      func(Device) bool
	sink       Sink

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	conn   Connection
	char   Characteristic
	last   side.Side // "" until the first notification of an attempt

	// pending holds notifications that arrive between Subscribe and commit;
	// they are queued after the connected event.
	pending []event

	events *eventQueue
	done   chan struct{}
}

// NewSession creates a disconnected session for the device whose advertised
// name starts with deviceName. Call Close when done.
func NewSession(adapter Adapter, deviceName string, sink Sink) *Session {
	if adapter == nil || sink == nil {
		panic("ble: NewSession called with nil adapter or sink")
	}
	s := &Session{
		adapter:    adapter,
		deviceName: deviceName,
		match:      MatchName(deviceName),
		sink:       sink,
		events:     newEventQueue(),
		done:       make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		s.events.run(s.dispatch)
	}()
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSide returns the last decoded side of the current attempt.
func (s *Session) LastSide() side.Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == "" {
		return side.None
	}
	return s.last
}

// Control returns the action a toggle would perform right now.
func (s *Session) Control() Control {
	s.mu.Lock()
	defer s.mu.Unlock()
	return controlFor(s.state)
}

func controlFor(st State) Control {
	switch st {
	case StateConnecting:
		return ControlCancel
	case StateConnected:
		return ControlDisconnect
	default:
		return ControlConnect
	}
}

// Toggle performs the control that applies to the current state: connect
// when disconnected or unavailable, cancel while connecting, disconnect
// while connected.
func (s *Session) Toggle() error {
	s.mu.Lock()
	ctl := controlFor(s.state)
	if ctl == ControlConnect {
		defer s.mu.Unlock()
		return s.connectLocked()
	}
	conn, char := s.teardown(nil)
	s.mu.Unlock()

	release(conn, char)
	if ctl == ControlCancel {
		slog.Info("[BLE] connect cancelled")
	} else {
		slog.Info("[BLE] disconnected")
	}
	return nil
}

// Connect starts a connect attempt in the background. It returns
// ErrInvalidState if an attempt is in progress or a connection exists.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *Session) connectLocked() error {
	if s.state == StateConnecting || s.state == StateConnected {
		return fmt.Errorf("ble: connect while %s: %w", s.state, ErrInvalidState)
	}

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.last = ""
	s.pending = nil
	s.setState(StateConnecting, nil)

	slog.Info("[BLE] scanning", "device", s.deviceName)
	go s.run(ctx, gen)
	return nil
}

// Cancel aborts an attempt in progress. The scan is stopped and any
// pending device chooser is resolved through context cancellation; handles
// the attempt acquires later are released by the attempt itself.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateConnecting {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("ble: cancel while %s: %w", st, ErrInvalidState)
	}
	conn, char := s.teardown(nil)
	s.mu.Unlock()

	release(conn, char)
	slog.Info("[BLE] connect cancelled")
	return nil
}

// Disconnect closes an established connection.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state != StateConnected {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("ble: disconnect while %s: %w", st, ErrInvalidState)
	}
	conn, char := s.teardown(nil)
	s.mu.Unlock()

	release(conn, char)
	slog.Info("[BLE] disconnected")
	return nil
}

// Close tears down any attempt or connection and stops event delivery.
// Events already queued reach the sink before Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	var conn Connection
	var char Characteristic
	if s.state == StateConnecting || s.state == StateConnected {
		conn, char = s.teardown(nil)
	}
	s.mu.Unlock()

	release(conn, char)
	s.events.close()
	<-s.done
	return nil
}

// teardown invalidates the current attempt, moves to disconnected and hands
// back the handles to release outside the lock (caller must hold mu).
func (s *Session) teardown(err error) (Connection, Characteristic) {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	conn, char := s.conn, s.char
	s.conn, s.char = nil, nil
	s.pending = nil
	s.setState(StateDisconnected, err)
	return conn, char
}

// setState records a transition and queues it for the sink (caller must
// hold mu). Queueing under the lock keeps sink order equal to
// transition order.
func (s *Session) setState(st State, err error) {
	s.state = st
	s.events.push(event{kind: eventState, state: st, err: err})
}

func release(conn Connection, char Characteristic) {
	if char != nil {
		if err := char.Unsubscribe(); err != nil {
			slog.Debug("[BLE] unsubscribe failed", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			slog.Debug("[BLE] disconnect failed", "error", err)
		}
	}
}

// current reports whether gen is still the live attempt.
func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// fail ends attempt gen in state st. It is a no-op for a stale attempt.
func (s *Session) fail(gen uint64, st State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pending = nil
	s.setState(st, err)

	if st == StateUnavailable {
		slog.Warn("[BLE] bluetooth unavailable", "error", err)
	} else {
		slog.Error("[BLE] connect failed", "error", err)
	}
}

// commit installs the handles of a fully set up attempt and releases the
// notifications held back since Subscribe.
func (s *Session) commit(gen uint64, conn Connection, char Characteristic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.conn, s.char = conn, char
	s.setState(StateConnected, nil)
	for _, e := range s.pending {
		s.events.push(e)
	}
	s.pending = nil
	return true
}

// dropped handles the peripheral going away on its own.
func (s *Session) dropped(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	slog.Warn("[BLE] device dropped the connection")
	_, char := s.teardown(errors.New("ble: device disconnected"))
	s.mu.Unlock()

	// The link is gone; only the local subscription needs clearing.
	release(nil, char)
}

// run is one connect attempt. Every transport call is a suspension point;
// after each one the attempt checks it is still current and otherwise
// releases what it holds.
func (s *Session) run(ctx context.Context, gen uint64) {
	if err := s.adapter.Enable(); err != nil {
		if !errors.Is(err, ErrRadioUnavailable) {
			err = fmt.Errorf("ble: enable adapter: %w: %w", ErrRadioUnavailable, err)
		}
		s.fail(gen, StateUnavailable, err)
		return
	}

	device, err := Find(ctx, s.adapter, s.match)
	if err != nil {
		if errors.Is(err, ErrRadioUnavailable) {
			s.fail(gen, StateUnavailable, err)
			return
		}
		s.fail(gen, StateDisconnected, fmt.Errorf("ble: find %q: %w", s.deviceName, err))
		return
	}
	slog.Info("[BLE] found device", "name", device.Name, "address", device.Address, "rssi", device.RSSI)

	conn, err := s.adapter.Connect(ctx, device)
	if err != nil {
		s.fail(gen, StateDisconnected, stepFailed("connect", err))
		return
	}
	if !s.current(gen) {
		release(conn, nil)
		return
	}
	conn.OnDisconnect(func() { s.dropped(gen) })

	svc, err := conn.DiscoverService(ServiceUUID)
	if err != nil {
		s.fail(gen, StateDisconnected, stepFailed("discover service", err))
		release(conn, nil)
		return
	}
	if !s.current(gen) {
		release(conn, nil)
		return
	}

	char, err := svc.DiscoverCharacteristic(OrientationCharUUID)
	if err != nil {
		s.fail(gen, StateDisconnected, stepFailed("discover characteristic", err))
		release(conn, nil)
		return
	}
	if !s.current(gen) {
		release(conn, nil)
		return
	}

	if err := char.Subscribe(func(data []byte) { s.deliver(gen, data) }); err != nil {
		s.fail(gen, StateDisconnected, stepFailed("subscribe", err))
		release(conn, nil)
		return
	}

	if !s.commit(gen, conn, char) {
		release(conn, char)
		return
	}
	slog.Info("[BLE] connected", "name", device.Name, "address", device.Address)
}

func stepFailed(step string, err error) error {
	return fmt.Errorf("ble: %s: %w: %w", step, ErrConnectionFailed, err)
}

// deliver queues a notification without blocking the transport. Until the
// attempt commits, notifications wait in pending so the sink never sees a
// side before the connected state.
func (s *Session) deliver(gen uint64, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	e := event{kind: eventNotify, gen: gen, data: buf}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.gen != gen:
	case s.state != StateConnected:
		s.pending = append(s.pending, e)
	default:
		s.events.push(e)
	}
}

// dispatch runs on the event goroutine.
func (s *Session) dispatch(e event) {
	switch e.kind {
	case eventState:
		s.sink.StateChanged(e.state, e.err)

	case eventNotify:
		sd := side.None
		if len(e.data) > 0 {
			sd = side.Decode(e.data[0])
		}

		s.mu.Lock()
		if e.gen != s.gen || sd == s.last {
			s.mu.Unlock()
			return
		}
		s.last = sd
		s.mu.Unlock()

		slog.Debug("[BLE] side changed", "side", sd, "raw", e.data)
		s.sink.SideChanged(sd)
	}
}
