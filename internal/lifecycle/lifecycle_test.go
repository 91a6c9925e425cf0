package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
	"go.uber.org/zap"
)

type recordingFlusher struct {
	calls int
	err   error
}

func (f *recordingFlusher) Flush(context.Context) error {
	f.calls++
	return f.err
}

func TestSuspendFlushesAllAndPublishes(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("app.", 10)
	defer unsub()

	n := NewNotifier(b, zap.NewNop())
	first := &recordingFlusher{err: errors.New("disk full")}
	second := &recordingFlusher{}
	n.Register(first)
	n.Register(second)

	err := n.Suspend(context.Background())
	if err == nil || err.Error() != "disk full" {
		t.Errorf("err = %v, want the first flush error", err)
	}
	// A failing flusher must not stop the rest.
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", first.calls, second.calls)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindAppSuspend {
			t.Errorf("kind = %q, want app.suspend", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for suspend event")
	}
}

func TestResumePublishes(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("app.", 10)
	defer unsub()

	n := NewNotifier(b, zap.NewNop())
	n.Resume()

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindAppResume {
			t.Errorf("kind = %q, want app.resume", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for resume event")
	}
}
