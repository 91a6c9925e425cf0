package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestOutboxEnqueueIdempotent(t *testing.T) {
	eng := testEngine(t)
	outbox := NewOutbox(eng)
	ctx := context.Background()

	e := &OutboxEntry{MessageID: "m1", ConversationID: "c1", SenderID: "u1", Body: "hello"}
	if err := outbox.Enqueue(ctx, e); err != nil {
		t.Fatal(err)
	}
	// A retried local write must not duplicate the queued send.
	if err := outbox.Enqueue(ctx, e); err != nil {
		t.Fatal(err)
	}

	entries, err := outbox.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Status != OutboxQueued || entries[0].EnqueuedAt == 0 {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestOutboxStateMachine(t *testing.T) {
	eng := testEngine(t)
	outbox := NewOutbox(eng)
	ctx := context.Background()

	if err := outbox.Enqueue(ctx, &OutboxEntry{MessageID: "m1", ConversationID: "c1", Body: "x"}); err != nil {
		t.Fatal(err)
	}

	if err := outbox.MarkSending(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	e, err := outbox.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != OutboxSending {
		t.Errorf("status = %q, want sending", e.Status)
	}

	// A failed attempt goes back to queued with the attempt recorded.
	if err := outbox.RecordFailure(ctx, "m1", "network down"); err != nil {
		t.Fatal(err)
	}
	e, err = outbox.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != OutboxQueued || e.RetryCount != 1 || e.LastError != "network down" {
		t.Errorf("entry = %+v", e)
	}

	// Budget exhaustion parks it as failed.
	if err := outbox.MarkFailed(ctx, "m1", "gave up"); err != nil {
		t.Fatal(err)
	}
	e, err = outbox.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != OutboxFailed || e.RetryCount != 2 {
		t.Errorf("entry = %+v", e)
	}
	pending, err := outbox.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("failed entry still pending: %+v", pending)
	}

	// Manual retry requeues it.
	if err := outbox.Requeue(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	e, err = outbox.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != OutboxQueued || e.LastError != "" {
		t.Errorf("entry after requeue = %+v", e)
	}

	// Confirmed delivery removes the row.
	if err := outbox.Remove(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	e, err = outbox.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Errorf("removed entry still present: %+v", e)
	}
}

// TestOutboxPendingIncludesSending covers crash recovery: an entry stuck in
// 'sending' when the process died must be picked up by the next drain.
func TestOutboxPendingIncludesSending(t *testing.T) {
	eng := testEngine(t)
	outbox := NewOutbox(eng)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		if err := outbox.Enqueue(ctx, &OutboxEntry{MessageID: id, ConversationID: "c1", Body: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := outbox.MarkSending(ctx, "m1"); err != nil {
		t.Fatal(err)
	}

	pending, err := outbox.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2 (sending entries included)", len(pending))
	}
	// Enqueue order preserved.
	if pending[0].MessageID != "m1" || pending[1].MessageID != "m2" {
		t.Errorf("order = %v, %v", pending[0].MessageID, pending[1].MessageID)
	}
}

// TestOutboxSurvivesReopen verifies durability: queued entries written before
// a clean shutdown are still pending after reopening the same database.
func TestOutboxSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	eng, err := Open(path, Options{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	outbox := NewOutbox(eng)
	for _, id := range []string{"m1", "m2", "m3"} {
		if err := outbox.Enqueue(ctx, &OutboxEntry{MessageID: id, ConversationID: "c1", Body: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := eng.Close(); err != nil {
		t.Fatal(err)
	}

	eng, err = Open(path, Options{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	pending, err := NewOutbox(eng).Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 3 {
		t.Fatalf("got %d pending after reopen, want 3", len(pending))
	}
	for i, id := range []string{"m1", "m2", "m3"} {
		if pending[i].MessageID != id {
			t.Errorf("pending[%d] = %q, want %q", i, pending[i].MessageID, id)
		}
	}
}
