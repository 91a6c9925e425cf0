package sync

import (
	"context"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
	"github.com/lfreitas/syncbox/internal/netmon"
	"github.com/lfreitas/syncbox/internal/remote"
	"github.com/lfreitas/syncbox/internal/status"
	"github.com/lfreitas/syncbox/internal/store"
	"go.uber.org/zap"
)

// DefaultMaxAttempts is the retry budget applied per outbox entry before it
// is parked as failed and left for a manual retry.
const DefaultMaxAttempts = 5

// DefaultDrainInterval is the background poll interval between drains.
const DefaultDrainInterval = 2 * time.Second

// Drainer flushes the outbox to the remote store. Entries drain in enqueue
// order per conversation; a failure parks the rest of that conversation for
// the round so sends are never reordered. Cross-conversation order is not
// guaranteed.
type Drainer struct {
	outbox  *store.Outbox
	msgs    *store.Messages
	remote  remote.Client
	bus     *bus.Bus
	net     *netmon.Monitor
	machine *status.Machine
	logger  *zap.Logger

	maxAttempts int
	interval    time.Duration
	kick        chan struct{}
	cancel      context.CancelFunc
}

// NewDrainer creates an outbox drainer. maxAttempts and interval fall back
// to the defaults when zero.
func NewDrainer(outbox *store.Outbox, msgs *store.Messages, rc remote.Client, b *bus.Bus, net *netmon.Monitor, machine *status.Machine, logger *zap.Logger, maxAttempts int, interval time.Duration) *Drainer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	return &Drainer{
		outbox:      outbox,
		msgs:        msgs,
		remote:      rc,
		bus:         b,
		net:         net,
		machine:     machine,
		logger:      logger,
		maxAttempts: maxAttempts,
		interval:    interval,
		kick:        make(chan struct{}, 1),
	}
}

// Start begins the background drain loop.
func (d *Drainer) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	go d.loop(ctx)
}

// Stop stops the drain loop.
func (d *Drainer) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// Kick requests an immediate drain. Non-blocking; coalesces with a pending
// request.
func (d *Drainer) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Drainer) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-d.kick:
		case <-ctx.Done():
			return
		}
		// Attempts while disconnected are guaranteed failures that would
		// burn the per-entry retry budget on disconnection time instead of
		// delivery; entries must stay queued until connectivity returns.
		if !d.net.Online() {
			continue
		}
		d.DrainOnce(ctx)
	}
}

// DrainOnce attempts delivery of every pending entry, grouped by
// conversation in enqueue order.
func (d *Drainer) DrainOnce(ctx context.Context) {
	pending, err := d.outbox.Pending(ctx)
	if err != nil {
		d.logger.Error("failed to read outbox", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	_ = d.machine.Transition(status.Draining)

	var order []string
	byConv := make(map[string][]store.OutboxEntry)
	for _, e := range pending {
		if _, ok := byConv[e.ConversationID]; !ok {
			order = append(order, e.ConversationID)
		}
		byConv[e.ConversationID] = append(byConv[e.ConversationID], e)
	}

	sent := 0
	degraded := false
	for _, conv := range order {
		for _, entry := range byConv[conv] {
			delivered, terminal := d.deliver(ctx, entry)
			if !delivered {
				degraded = degraded || terminal
				// Skip the rest of this conversation: delivering past a
				// failed entry would reorder its messages.
				break
			}
			sent++
		}
	}

	if sent > 0 {
		d.bus.Publish(bus.Event{
			Kind:      bus.KindSyncDrained,
			Timestamp: time.Now(),
			Payload:   map[string]int{"sent": sent},
		})
	}
	if degraded {
		_ = d.machine.Transition(status.Degraded)
		return
	}
	remaining, err := d.outbox.Pending(ctx)
	if err == nil && len(remaining) == 0 {
		_ = d.machine.Transition(status.Ready)
	}
}

// deliver pushes one entry. Returns delivered, and whether a failure was
// terminal (retry budget exhausted).
func (d *Drainer) deliver(ctx context.Context, entry store.OutboxEntry) (bool, bool) {
	if err := d.outbox.MarkSending(ctx, entry.MessageID); err != nil {
		d.logger.Error("failed to mark sending", zap.Error(err), zap.String("message_id", entry.MessageID))
		return false, false
	}

	snap := remote.Snapshot{
		Kind: remote.KindMessage,
		Message: &store.Message{
			ID:             entry.MessageID,
			ConversationID: entry.ConversationID,
			SenderID:       entry.SenderID,
			Body:           entry.Body,
			SentAt:         entry.EnqueuedAt,
			Status:         store.StatusPending,
			CreatedAt:      entry.CreatedAt,
		},
	}

	ack, err := d.remote.Push(ctx, snap)
	if err != nil {
		attempts := entry.RetryCount + 1
		if attempts >= d.maxAttempts {
			d.logger.Warn("outbox entry exhausted retry budget",
				zap.String("message_id", entry.MessageID),
				zap.Int("attempts", attempts),
				zap.Error(err))
			_ = d.outbox.MarkFailed(ctx, entry.MessageID, err.Error())
			_ = d.msgs.Reconcile(ctx, &store.Message{
				ID:             entry.MessageID,
				ConversationID: entry.ConversationID,
				SenderID:       entry.SenderID,
				Body:           entry.Body,
				SentAt:         entry.EnqueuedAt,
				Status:         store.StatusFailed,
				CreatedAt:      entry.CreatedAt,
			})
			d.bus.Publish(bus.Event{
				Kind:      bus.KindMessageFailed,
				Timestamp: time.Now(),
				Payload: map[string]string{
					"message_id": entry.MessageID,
					"error":      err.Error(),
				},
			})
			return false, true
		}
		_ = d.outbox.RecordFailure(ctx, entry.MessageID, err.Error())
		return false, false
	}

	// The confirmed copy replaces the optimistic one in place: same logical
	// id, server-assigned timestamp.
	if err := d.msgs.Reconcile(ctx, &store.Message{
		ID:             entry.MessageID,
		ConversationID: entry.ConversationID,
		SenderID:       entry.SenderID,
		Body:           entry.Body,
		SentAt:         ack.ServerTime,
		Status:         store.StatusSent,
		CreatedAt:      entry.CreatedAt,
		SyncedAt:       time.Now().UnixMilli(),
	}); err != nil {
		d.logger.Error("failed to reconcile confirmed message", zap.Error(err), zap.String("message_id", entry.MessageID))
		return false, false
	}
	if err := d.outbox.Remove(ctx, entry.MessageID); err != nil {
		d.logger.Error("failed to remove outbox entry", zap.Error(err), zap.String("message_id", entry.MessageID))
		return false, false
	}

	d.bus.Publish(bus.Event{
		Kind:      bus.KindMessageAck,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"message_id":      entry.MessageID,
			"conversation_id": entry.ConversationID,
		},
	})
	return true, false
}
