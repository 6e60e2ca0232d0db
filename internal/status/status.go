package status

import (
	"fmt"
	"slices"
	"sync"
)

// State represents a session runtime state.
type State string

const (
	Offline       State = "OFFLINE"
	Connecting    State = "CONNECTING"
	Connected     State = "CONNECTED"
	AuthFailed    State = "AUTH_FAILED"
	Disconnecting State = "DISCONNECTING"
	Exiting       State = "EXITING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Offline:       {Connecting, Exiting},
	Connecting:    {Connected, AuthFailed, Offline, Exiting},
	Connected:     {Disconnecting, Offline, Exiting},
	AuthFailed:    {Connecting, Exiting},
	Disconnecting: {Offline, Exiting},
	Exiting:       {},
}

// Change is passed to observers on every transition.
type Change struct {
	From State
	To   State
}

// Machine tracks and enforces session state transitions. Observers are
// invoked synchronously on the transitioning goroutine; they must not call
// back into the machine.
type Machine struct {
	mu        sync.RWMutex
	current   State
	line      string
	observers []func(Change)
}

// NewMachine creates a state machine starting in Offline state.
func NewMachine() *Machine {
	return &Machine{current: Offline}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsConnected reports whether the session is usable for network actions.
func (m *Machine) IsConnected() bool {
	return m.Current() == Connected
}

// Observe registers a callback invoked on every successful transition.
func (m *Machine) Observe(fn func(Change)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; the state is unchanged in that case.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		cur := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", cur, to)
	}
	change := Change{From: m.current, To: to}
	m.current = to
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
	return nil
}

// SetLine records a human-readable activity line (e.g. "Fetching message 3/25")
// for the status bar.
func (m *Machine) SetLine(format string, args ...any) {
	m.mu.Lock()
	m.line = fmt.Sprintf(format, args...)
	m.mu.Unlock()
}

// ClearLine clears the activity line.
func (m *Machine) ClearLine() {
	m.mu.Lock()
	m.line = ""
	m.mu.Unlock()
}

// Line returns the current activity line.
func (m *Machine) Line() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.line
}
