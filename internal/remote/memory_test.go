package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lfreitas/syncbox/internal/store"
)

func TestMemoryPushAssignsServerTime(t *testing.T) {
	m := NewMemory()
	before := time.Now().UnixMilli()

	ack, err := m.Push(context.Background(), Snapshot{Kind: KindMessage, Message: &store.Message{
		ID: "m1", ConversationID: "c1", Body: "hi", SentAt: 1,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if ack.ServerTime < before {
		t.Errorf("server time %d before push", ack.ServerTime)
	}

	snap, err := m.Read(context.Background(), KindMessage, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.Message.SentAt != ack.ServerTime || snap.Message.Status != store.StatusSent {
		t.Errorf("stored message = %+v", snap)
	}
}

func TestMemorySubscribeReplaysAndStreams(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.SeedMessage(&store.Message{ID: "old", ConversationID: "c1", SentAt: 1000})
	m.SeedMessage(&store.Message{ID: "new", ConversationID: "c1", SentAt: 3000})
	m.SeedMessage(&store.Message{ID: "other", ConversationID: "c2", SentAt: 3000})

	ch, stop, err := m.Subscribe(ctx, Query{ConversationID: "c1", SinceMs: 2000})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	// Only the message past the watermark, in this conversation, replays.
	select {
	case snap := <-ch:
		if snap.Message.ID != "new" {
			t.Errorf("replayed %q, want new", snap.Message.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for replay")
	}

	if _, err := m.Push(ctx, Snapshot{Kind: KindMessage, Message: &store.Message{ID: "live", ConversationID: "c1"}}); err != nil {
		t.Fatal(err)
	}
	select {
	case snap := <-ch:
		if snap.Message.ID != "live" {
			t.Errorf("streamed %q, want live", snap.Message.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for live event")
	}
}

func TestMemoryStopClosesChannel(t *testing.T) {
	m := NewMemory()

	ch, stop, err := m.Subscribe(context.Background(), Query{ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	stop()
	stop() // idempotent

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("unexpected event after stop")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after stop")
	}

	// Pushes after stop must not panic on the closed channel.
	if _, err := m.Push(context.Background(), Snapshot{Kind: KindMessage, Message: &store.Message{ID: "m1", ConversationID: "c1"}}); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryFailPushes(t *testing.T) {
	m := NewMemory()
	boom := errors.New("injected")

	m.FailPushes(boom)
	_, err := m.Push(context.Background(), Snapshot{Kind: KindMessage, Message: &store.Message{ID: "m1"}})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want injected failure", err)
	}

	m.FailPushes(nil)
	if _, err := m.Push(context.Background(), Snapshot{Kind: KindMessage, Message: &store.Message{ID: "m1"}}); err != nil {
		t.Errorf("err = %v after reset, want nil", err)
	}
}
