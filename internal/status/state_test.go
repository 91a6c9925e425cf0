package status

import (
	"testing"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Offline {
		t.Errorf("initial state = %s, want OFFLINE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		walk []State
	}{
		{[]State{Draining}},
		{[]State{Syncing}},
		{[]State{Draining, Ready}},
		{[]State{Draining, Syncing, Ready}},
		{[]State{Draining, Degraded}},
		{[]State{Draining, Ready, Offline}},
		{[]State{Draining, Degraded, Ready}},
	}
	for _, tt := range tests {
		m := NewMachine(nil)
		for _, to := range tt.walk {
			if err := m.Transition(to); err != nil {
				t.Errorf("walk %v: transition to %s failed: %v", tt.walk, to, err)
				break
			}
		}
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(OFFLINE -> READY) should fail")
	}
	if m.Current() != Offline {
		t.Errorf("failed transition changed state to %s", m.Current())
	}
}

func TestSameStateIsNoOp(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Offline); err != nil {
		t.Errorf("same-state transition error = %v", err)
	}

	select {
	case evt := <-ch:
		t.Errorf("no-op transition published %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Draining); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindSyncStatusChanged {
			t.Errorf("kind = %q, want sync.status_changed", evt.Kind)
		}
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload = %T, want StatusChange", evt.Payload)
		}
		if change.From != Offline || change.To != Draining {
			t.Errorf("change = %+v, want OFFLINE -> DRAINING", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}
