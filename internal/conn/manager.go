// Package conn owns the persistent transport connection: open,
// authenticate, heartbeat, failure detection, and backoff reconnection.
// It also owns the outbound queue for commands issued while the
// connection is down. Failures inside the authentication, ping, and
// pong paths never propagate to callers; they all degrade to reconnect
// scheduling.
package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/tmarcondes/pulse/internal/bus"
	"github.com/tmarcondes/pulse/internal/wire"
	"go.uber.org/zap"
)

// ErrNoSessionToken is returned when Connect is called without a
// provisioned session token. The manager fails closed.
var ErrNoSessionToken = errors.New("no session token available")

// ErrNotConnected is returned for writes attempted with no live socket.
var ErrNotConnected = errors.New("not connected")

const writeTimeout = 10 * time.Second

// FrameHandler consumes raw inbound frames from the read loop.
type FrameHandler interface {
	HandleFrame(data []byte)
}

// Options configure a Manager.
type Options struct {
	URL          string
	SessionToken string
	DeviceID     string

	HeartbeatInterval time.Duration
	PongTimeout       time.Duration
	QueueCapacity     int
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMax        time.Duration

	// Dialer overrides the WebSocket dialer, for tests.
	Dialer Dialer
}

func (o *Options) defaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 25 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 10 * time.Second
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 100
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.Dialer == nil {
		o.Dialer = DialWebSocket
	}
}

// Manager owns at most one live transport at a time.
type Manager struct {
	opts    Options
	machine *Machine
	backoff *Backoff
	queue   *Queue
	bus     *bus.Bus
	logger  *zap.Logger

	handler FrameHandler

	mu          sync.Mutex
	sock        Socket
	connCtx     context.Context
	cancel      context.CancelFunc
	pending     map[string]*time.Timer
	reconnect   *time.Timer
	intentional bool
}

// NewManager creates a connection manager. SetHandler must be called
// before Connect.
func NewManager(opts Options, b *bus.Bus, logger *zap.Logger) *Manager {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:    opts,
		machine: NewMachine(b),
		backoff: NewBackoff(opts.BackoffBase, opts.BackoffMax, 2),
		queue:   NewQueue(opts.QueueCapacity),
		bus:     b,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}
}

// SetHandler installs the inbound frame consumer.
func (m *Manager) SetHandler(h FrameHandler) {
	m.handler = h
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// QueueLen returns the number of commands waiting for a connection.
func (m *Manager) QueueLen() int {
	return m.queue.Len()
}

// Connect opens the transport and starts the authentication handshake.
// It is a no-op when a connection is already open or in flight, and
// fails closed when no session token is available. The attempt only
// counts as successful once the server confirms authentication.
func (m *Manager) Connect(ctx context.Context) error {
	if m.opts.SessionToken == "" {
		return ErrNoSessionToken
	}
	switch m.machine.Current() {
	case StateConnecting, StateAuthenticating, StateConnected:
		return nil
	}
	if err := m.machine.Transition(StateConnecting); err != nil {
		// Lost a race with another connect; that one proceeds.
		return nil
	}

	m.mu.Lock()
	m.intentional = false
	m.mu.Unlock()

	sock, err := m.opts.Dialer(ctx, m.opts.URL)
	if err != nil {
		m.logger.Warn("transport dial failed", zap.Error(err))
		_ = m.machine.Transition(StateClosed)
		m.scheduleReconnect(false)
		return err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.sock = sock
	m.connCtx = connCtx
	m.cancel = cancel
	m.mu.Unlock()

	_ = m.machine.Transition(StateAuthenticating)

	// Authentication frame goes out immediately on transport open.
	if err := m.writeFrame(connCtx, wire.NewAuth(m.opts.SessionToken)); err != nil {
		m.logger.Warn("auth frame write failed", zap.Error(err))
		m.teardown(websocket.StatusGoingAway, "auth write failed")
		m.scheduleReconnect(false)
		return err
	}

	go m.readLoop(connCtx, sock)
	return nil
}

// Disconnect closes the transport with a normal closure. Explicit
// client disconnects never trigger auto-reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.mu.Unlock()
	m.teardown(websocket.StatusNormalClosure, "client disconnect")
}

// ForceReconnect tears the connection down and reschedules immediately,
// bypassing the backoff delay. Used for server-directed reconnects.
func (m *Manager) ForceReconnect() {
	m.mu.Lock()
	m.intentional = false
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.mu.Unlock()
	m.teardown(websocket.StatusGoingAway, "forced reconnect")
	m.scheduleReconnect(true)
}

// Enqueue sends a command immediately when connected; otherwise it is
// buffered (drop-oldest on overflow) and a connection attempt is
// triggered if none is in flight. Every command is stamped with the
// device id before transmission.
func (m *Manager) Enqueue(f wire.Outbound) {
	if m.machine.Current() == StateConnected {
		m.mu.Lock()
		ctx := m.connCtx
		m.mu.Unlock()
		if ctx != nil {
			if err := m.writeFrame(ctx, f); err == nil {
				return
			}
			m.logger.Warn("live send failed, buffering command")
		}
	}
	m.queue.Push(f)
	switch m.machine.Current() {
	case StateIdle, StateClosed:
		go func() { _ = m.Connect(context.Background()) }()
	}
}

// SendPong answers a server ping with the same ping id, synchronously,
// before any other work.
func (m *Manager) SendPong(pingID string, ts int64) {
	m.mu.Lock()
	ctx := m.connCtx
	m.mu.Unlock()
	if ctx == nil {
		return
	}
	if err := m.writeFrame(ctx, wire.NewPong(pingID, ts)); err != nil {
		m.logger.Warn("pong write failed", zap.Error(err))
	}
}

// NotePong clears the pending timeout for a heartbeat ping.
func (m *Manager) NotePong(pingID string) {
	m.mu.Lock()
	if t, ok := m.pending[pingID]; ok {
		t.Stop()
		delete(m.pending, pingID)
	}
	m.mu.Unlock()
}

// ConfirmAuthenticated marks the handshake complete: the attempt
// counter resets, the heartbeat starts, and the outbound queue is
// flushed in original enqueue order.
func (m *Manager) ConfirmAuthenticated() {
	m.backoff.Reset()
	m.bus.Publish(bus.Event{Kind: bus.ConnAuthenticated, Timestamp: time.Now(),
		Payload: bus.ConnStatus{State: string(StateAuthenticating)}})
	if err := m.machine.Transition(StateConnected); err != nil {
		return
	}

	m.mu.Lock()
	ctx := m.connCtx
	m.mu.Unlock()
	if ctx == nil {
		return
	}
	go m.heartbeatLoop(ctx)
	m.flush(ctx)
}

// Reauthenticate re-sends the auth frame in response to auth_required.
// Repeated failure surfaces as a forced reconnection.
func (m *Manager) Reauthenticate() {
	m.mu.Lock()
	ctx := m.connCtx
	m.mu.Unlock()
	if ctx == nil {
		return
	}
	if err := m.writeFrame(ctx, wire.NewAuth(m.opts.SessionToken)); err != nil {
		m.logger.Warn("re-authentication failed", zap.Error(err))
		m.ForceReconnect()
	}
}

func (m *Manager) readLoop(ctx context.Context, sock Socket) {
	for {
		data, err := sock.Read(ctx)
		if err != nil {
			m.mu.Lock()
			stillCurrent := m.sock == sock
			intentional := m.intentional
			m.mu.Unlock()
			if !stillCurrent {
				// Torn down elsewhere (pong timeout, force reconnect);
				// that path owns rescheduling.
				return
			}
			status := websocket.CloseStatus(err)
			m.teardown(websocket.StatusNormalClosure, "read closed")
			if intentional || status == websocket.StatusNormalClosure {
				return
			}
			m.bus.Publish(bus.Event{Kind: bus.ConnError, Timestamp: time.Now(),
				Payload: bus.ConnStatus{State: string(StateClosed), Reason: err.Error()}})
			m.scheduleReconnect(false)
			return
		}
		if m.handler != nil {
			m.handler.HandleFrame(data)
		}
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.machine.Current() != StateConnected {
				return
			}
			pingID := uuid.NewString()
			timer := time.AfterFunc(m.opts.PongTimeout, func() { m.onPongTimeout(pingID) })
			m.mu.Lock()
			m.pending[pingID] = timer
			m.mu.Unlock()

			if err := m.writeFrame(ctx, wire.NewPing(pingID, time.Now().UnixMilli())); err != nil {
				m.logger.Warn("heartbeat write failed", zap.Error(err))
				m.teardown(websocket.StatusGoingAway, "heartbeat write failed")
				m.scheduleReconnect(false)
				return
			}
		}
	}
}

// onPongTimeout declares the connection dead when a ping went
// unanswered: torn down and rescheduled, exactly once per lost ping.
func (m *Manager) onPongTimeout(pingID string) {
	m.mu.Lock()
	_, ok := m.pending[pingID]
	delete(m.pending, pingID)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.logger.Warn("pong timeout, connection declared dead", zap.String("ping_id", pingID))
	m.teardown(websocket.StatusGoingAway, "pong timeout")
	m.scheduleReconnect(false)
}

func (m *Manager) flush(ctx context.Context) {
	items := m.queue.Drain()
	for i, f := range items {
		if err := m.writeFrame(ctx, f); err != nil {
			m.logger.Warn("queue flush interrupted", zap.Error(err), zap.Int("remaining", len(items)-i))
			for _, rest := range items[i:] {
				m.queue.Push(rest)
			}
			return
		}
	}
	if len(items) > 0 {
		m.logger.Info("outbound queue flushed", zap.Int("commands", len(items)))
	}
}

func (m *Manager) writeFrame(ctx context.Context, f wire.Outbound) error {
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()
	if sock == nil {
		return ErrNotConnected
	}
	f.TagDevice(m.opts.DeviceID)
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return sock.Write(wctx, data)
}

func (m *Manager) teardown(code websocket.StatusCode, reason string) {
	m.mu.Lock()
	sock := m.sock
	m.sock = nil
	m.connCtx = nil
	cancel := m.cancel
	m.cancel = nil
	for id, t := range m.pending {
		t.Stop()
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sock != nil {
		_ = sock.Close(code, reason)
	}
	_ = m.machine.Transition(StateClosed)
}

// scheduleReconnect arms the next attempt. Once the attempt budget is
// exhausted the manager degrades and hands control to the fallback
// poller, which probes for transport recovery on its own schedule.
func (m *Manager) scheduleReconnect(immediate bool) {
	m.mu.Lock()
	if m.intentional || m.reconnect != nil {
		m.mu.Unlock()
		return
	}
	if !immediate && m.backoff.Attempt() >= m.opts.MaxAttempts {
		m.mu.Unlock()
		m.logger.Warn("reconnect attempts exhausted, degrading to polling",
			zap.Int("attempts", m.opts.MaxAttempts))
		_ = m.machine.Transition(StateDegraded)
		return
	}
	var delay time.Duration
	if !immediate {
		delay = m.backoff.Next()
	}
	m.reconnect = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnect = nil
		m.mu.Unlock()
		_ = m.Connect(context.Background())
	})
	attempt := m.backoff.Attempt()
	m.mu.Unlock()
	m.logger.Info("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", attempt))
}
