// Package lifecycle carries the application-lifecycle signal. The embedding
// app calls Suspend when the process is about to background; registered
// flushers (the storage engine) complete their in-flight writes before the
// call returns, so no write is torn mid-flight.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
	"go.uber.org/zap"
)

// Flusher completes all pending work before returning.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Notifier fans lifecycle transitions out to flushers and the bus.
type Notifier struct {
	mu       sync.Mutex
	flushers []Flusher
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewNotifier creates the lifecycle notifier.
func NewNotifier(b *bus.Bus, logger *zap.Logger) *Notifier {
	return &Notifier{bus: b, logger: logger}
}

// Register adds a flusher awaited on every suspend.
func (n *Notifier) Register(f Flusher) {
	n.mu.Lock()
	n.flushers = append(n.flushers, f)
	n.mu.Unlock()
}

// Suspend awaits every registered flusher, then announces the transition.
// Returns the first flush error but still runs the remaining flushers.
func (n *Notifier) Suspend(ctx context.Context) error {
	n.mu.Lock()
	flushers := make([]Flusher, len(n.flushers))
	copy(flushers, n.flushers)
	n.mu.Unlock()

	var first error
	for _, f := range flushers {
		if err := f.Flush(ctx); err != nil {
			n.logger.Warn("flush before suspend failed", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	n.bus.Publish(bus.Event{Kind: bus.KindAppSuspend, Timestamp: time.Now()})
	return first
}

// Resume announces a return to the foreground.
func (n *Notifier) Resume() {
	n.bus.Publish(bus.Event{Kind: bus.KindAppResume, Timestamp: time.Now()})
}
