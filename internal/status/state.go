package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/mixdesk/internal/bus"
)

// State is the authentication state of the client session.
type State string

const (
	Unknown       State = "UNKNOWN"
	Checking      State = "CHECKING"
	Authenticated State = "AUTHENTICATED"
	Anonymous     State = "ANONYMOUS"
)

// KindStatusChanged is published on every accepted transition.
const KindStatusChanged = "session.status_changed"

// validTransitions defines allowed state transitions.
// Checking is only reachable from Unknown: the session is verified once per process.
var validTransitions = map[State][]State{
	Unknown:       {Checking, Authenticated, Anonymous},
	Checking:      {Authenticated, Anonymous},
	Anonymous:     {Authenticated},
	Authenticated: {Anonymous},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Unknown state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Unknown,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// Settle moves to the given state unless the machine is already there.
func (m *Machine) Settle(to State) error {
	if m.Current() == to {
		return nil
	}
	return m.Transition(to)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State `json:"from"`
	To   State `json:"to"`
}
