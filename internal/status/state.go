package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
)

// State is the user-visible sync indicator. It is the only sync-health
// signal surfaced to the UI layer; raw storage errors never are.
type State string

const (
	Offline  State = "OFFLINE"
	Draining State = "DRAINING" // connectivity returned, outbox being flushed
	Syncing  State = "SYNCING"  // live subscriptions catching up
	Ready    State = "READY"
	Degraded State = "DEGRADED" // outbox entries exhausted their retry budget
)

var validTransitions = map[State][]State{
	Offline:  {Draining, Syncing},
	Draining: {Syncing, Ready, Degraded, Offline},
	Syncing:  {Ready, Degraded, Offline},
	Ready:    {Offline, Syncing, Draining, Degraded},
	Degraded: {Ready, Syncing, Draining, Offline},
}

// Machine tracks and enforces sync indicator transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine starting Offline.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Offline, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; same-state transitions are no-ops.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindSyncStatusChanged,
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
