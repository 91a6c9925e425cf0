// Package netmon holds the network-state signal consumed by the sync
// coordinator. The transport layer (out of scope here) reports connectivity
// through Set; transitions are published on the bus so the coordinator can
// trigger an outbox drain on reconnect.
package netmon

import (
	"sync"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
)

// Monitor tracks boolean connectivity and publishes transition events.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	bus    *bus.Bus
}

// New creates a monitor that starts offline.
func New(b *bus.Bus) *Monitor {
	return &Monitor{bus: b}
}

// Online reports current connectivity.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set records connectivity. Publishes net.online/net.offline only on an
// actual transition.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}
	kind := bus.KindNetOffline
	if online {
		kind = bus.KindNetOnline
	}
	m.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
}
