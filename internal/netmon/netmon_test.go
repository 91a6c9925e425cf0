package netmon

import (
	"testing"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
)

func TestStartsOffline(t *testing.T) {
	m := New(bus.New())
	if m.Online() {
		t.Error("monitor should start offline")
	}
}

func TestSetPublishesOnlyTransitions(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("net.", 10)
	defer unsub()

	m := New(b)

	// Redundant set: still offline, no event.
	m.Set(false)
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for redundant set: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}

	m.Set(true)
	select {
	case evt := <-ch:
		if evt.Kind != bus.KindNetOnline {
			t.Errorf("kind = %q, want net.online", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for net.online")
	}
	if !m.Online() {
		t.Error("Online() = false after Set(true)")
	}

	m.Set(false)
	select {
	case evt := <-ch:
		if evt.Kind != bus.KindNetOffline {
			t.Errorf("kind = %q, want net.offline", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for net.offline")
	}
}
