package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
	"github.com/lfreitas/syncbox/internal/netmon"
	"github.com/lfreitas/syncbox/internal/remote"
	"github.com/lfreitas/syncbox/internal/status"
	"github.com/lfreitas/syncbox/internal/store"
	"go.uber.org/zap"
)

func testEngine(t *testing.T) *store.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	eng, err := store.Open(path, store.Options{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

type drainFixture struct {
	eng     *store.Engine
	outbox  *store.Outbox
	msgs    *store.Messages
	remote  *remote.Memory
	bus     *bus.Bus
	net     *netmon.Monitor
	machine *status.Machine
	drainer *Drainer
}

func newDrainFixture(t *testing.T, maxAttempts int) *drainFixture {
	t.Helper()
	eng := testEngine(t)
	b := bus.New()
	f := &drainFixture{
		eng:     eng,
		outbox:  store.NewOutbox(eng),
		msgs:    store.NewMessages(eng, zap.NewNop()),
		remote:  remote.NewMemory(),
		bus:     b,
		net:     netmon.New(b),
		machine: status.NewMachine(b),
	}
	f.drainer = NewDrainer(f.outbox, f.msgs, f.remote, b, f.net, f.machine, zap.NewNop(), maxAttempts, time.Minute)
	return f
}

func (f *drainFixture) enqueue(t *testing.T, messageID, body string, createdAt int64) {
	t.Helper()
	ctx := context.Background()
	if err := f.msgs.Save(ctx, &store.Message{
		ID: messageID, ConversationID: "c1", SenderID: "u1", Body: body,
		SentAt: createdAt, Status: store.StatusPending, CreatedAt: createdAt,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.outbox.Enqueue(ctx, &store.OutboxEntry{
		MessageID: messageID, ConversationID: "c1", SenderID: "u1", Body: body,
		EnqueuedAt: createdAt, CreatedAt: createdAt,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestDrainOnceDeliversAndReconciles(t *testing.T) {
	f := newDrainFixture(t, 5)
	ctx := context.Background()

	ackCh, unsub := f.bus.Subscribe("message.send_ack", 10)
	defer unsub()

	f.enqueue(t, "m1", "first", 1000)
	f.enqueue(t, "m2", "second", 2000)

	f.drainer.DrainOnce(ctx)

	pending, err := f.outbox.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("got %d pending after drain, want 0", len(pending))
	}

	for _, id := range []string{"m1", "m2"} {
		m, err := f.msgs.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if m.Status != store.StatusSent {
			t.Errorf("%s status = %q, want sent", id, m.Status)
		}
		if m.SyncedAt == 0 {
			t.Errorf("%s synced_at not stamped", id)
		}
	}

	// created_at must survive reconciliation so the local ordering is stable.
	m1, _ := f.msgs.Get(ctx, "m1")
	if m1.CreatedAt != 1000 {
		t.Errorf("created_at = %d, want 1000", m1.CreatedAt)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-ackCh:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for send_ack events")
		}
	}

	if got := f.machine.Current(); got != status.Ready {
		t.Errorf("state = %s, want READY", got)
	}
}

func TestDrainOnceRequeuesOnFailure(t *testing.T) {
	f := newDrainFixture(t, 5)
	ctx := context.Background()

	f.remote.FailPushes(errors.New("connection refused"))
	f.enqueue(t, "m1", "hello", 1000)

	f.drainer.DrainOnce(ctx)

	e, err := f.outbox.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != store.OutboxQueued || e.RetryCount != 1 {
		t.Errorf("entry = %+v, want queued with retry_count 1", e)
	}
	if e.LastError != "connection refused" {
		t.Errorf("last_error = %q", e.LastError)
	}

	// The optimistic message is untouched until the budget is exhausted.
	m, err := f.msgs.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != store.StatusPending {
		t.Errorf("message status = %q, want pending", m.Status)
	}

	// Once the remote recovers, the next drain delivers.
	f.remote.FailPushes(nil)
	f.drainer.DrainOnce(ctx)
	pending, err := f.outbox.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after recovery, want 0", len(pending))
	}
}

func TestDrainParksEntryAfterBudget(t *testing.T) {
	f := newDrainFixture(t, 2)
	ctx := context.Background()

	failCh, unsub := f.bus.Subscribe("message.send_failed", 10)
	defer unsub()

	f.remote.FailPushes(errors.New("permanent refusal"))
	f.enqueue(t, "m1", "doomed", 1000)

	f.drainer.DrainOnce(ctx) // attempt 1: requeued
	f.drainer.DrainOnce(ctx) // attempt 2: budget exhausted

	e, err := f.outbox.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != store.OutboxFailed {
		t.Errorf("entry status = %q, want failed", e.Status)
	}

	m, err := f.msgs.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != store.StatusFailed {
		t.Errorf("message status = %q, want failed", m.Status)
	}

	select {
	case <-failCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}

	if got := f.machine.Current(); got != status.Degraded {
		t.Errorf("state = %s, want DEGRADED", got)
	}

	// Further drains skip the parked entry.
	f.drainer.DrainOnce(ctx)
	e, _ = f.outbox.Get(ctx, "m1")
	if e.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2 (failed entries are not re-attempted)", e.RetryCount)
	}
}

// TestDrainLoopWaitsForConnectivity verifies background ticks while offline
// never attempt delivery: the retry budget is reserved for real sends, and
// queued entries go out intact once connectivity returns.
func TestDrainLoopWaitsForConnectivity(t *testing.T) {
	f := newDrainFixture(t, 3)
	ctx := context.Background()

	ackCh, unsub := f.bus.Subscribe("message.send_ack", 10)
	defer unsub()

	// A remote that would reject the push if it were ever attempted.
	f.remote.FailPushes(errors.New("unreachable"))
	f.enqueue(t, "m1", "held back", 1000)

	d := NewDrainer(f.outbox, f.msgs, f.remote, f.bus, f.net, f.machine, zap.NewNop(), 3, 5*time.Millisecond)
	d.Start(ctx)
	defer d.Stop()

	// Monitors start offline; let well over maxAttempts ticks elapse.
	time.Sleep(60 * time.Millisecond)

	e, err := f.outbox.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != store.OutboxQueued {
		t.Fatalf("entry status = %q, want queued while offline", e.Status)
	}
	if e.RetryCount != 0 {
		t.Fatalf("retry_count = %d, want 0 (offline ticks must not attempt delivery)", e.RetryCount)
	}

	f.remote.FailPushes(nil)
	f.net.Set(true)

	select {
	case <-ackCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delivery after reconnect")
	}

	m, err := f.msgs.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != store.StatusSent {
		t.Errorf("message status = %q, want sent after reconnect", m.Status)
	}
}

// TestDrainStopsConversationOnFailure verifies per-conversation ordering: a
// failed entry blocks the rest of its conversation for the round, while other
// conversations keep draining.
func TestDrainStopsConversationOnFailure(t *testing.T) {
	f := newDrainFixture(t, 5)
	ctx := context.Background()

	// Two entries in c1, one in c2.
	f.enqueue(t, "m1", "first", 1000)
	f.enqueue(t, "m2", "second", 2000)
	if err := f.msgs.Save(ctx, &store.Message{ID: "m3", ConversationID: "c2", SenderID: "u1", Body: "other", SentAt: 3000, Status: store.StatusPending, CreatedAt: 3000}); err != nil {
		t.Fatal(err)
	}
	if err := f.outbox.Enqueue(ctx, &store.OutboxEntry{MessageID: "m3", ConversationID: "c2", SenderID: "u1", Body: "other", EnqueuedAt: 3000, CreatedAt: 3000}); err != nil {
		t.Fatal(err)
	}

	f.remote.FailPushes(errors.New("flaky"))
	f.drainer.DrainOnce(ctx)

	// m1 failed, so m2 was never attempted this round.
	e1, _ := f.outbox.Get(ctx, "m1")
	e2, _ := f.outbox.Get(ctx, "m2")
	e3, _ := f.outbox.Get(ctx, "m3")
	if e1.RetryCount != 1 {
		t.Errorf("m1 retry_count = %d, want 1", e1.RetryCount)
	}
	if e2.RetryCount != 0 {
		t.Errorf("m2 retry_count = %d, want 0 (must wait behind m1)", e2.RetryCount)
	}
	if e3.RetryCount != 1 {
		t.Errorf("m3 retry_count = %d, want 1 (other conversations still drain)", e3.RetryCount)
	}
}
