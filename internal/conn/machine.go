package conn

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tmarcondes/pulse/internal/bus"
)

// State represents a connection lifecycle state.
type State string

const (
	StateIdle           = State("idle")
	StateConnecting     = State("connecting")
	StateAuthenticating = State("authenticating")
	StateConnected      = State("connected")
	StateDegraded       = State("degraded")
	StateClosed         = State("closed")
)

// validTransitions defines allowed state transitions. Closed and
// degraded re-enter connecting via scheduled or forced reconnection.
var validTransitions = map[State][]State{
	StateIdle:           {StateConnecting},
	StateConnecting:     {StateAuthenticating, StateClosed, StateDegraded},
	StateAuthenticating: {StateConnected, StateClosed, StateDegraded},
	StateConnected:      {StateClosed, StateDegraded},
	StateClosed:         {StateConnecting, StateDegraded},
	StateDegraded:       {StateConnecting, StateClosed},
}

// busKind maps externally visible states to lifecycle topics. The
// authenticating state is internal to the handshake and not announced.
var busKind = map[State]string{
	StateConnecting: bus.ConnConnecting,
	StateConnected:  bus.ConnConnected,
	StateClosed:     bus.ConnDisconnected,
	StateDegraded:   bus.ConnDegraded,
}

// Machine tracks and enforces connection state transitions, announcing
// each externally visible one on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in the idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: StateIdle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if the transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.mu.Unlock()

	if kind, ok := busKind[to]; ok && m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      kind,
			Timestamp: time.Now(),
			Payload:   bus.ConnStatus{State: string(to)},
		})
	}
	return nil
}
