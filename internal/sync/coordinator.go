package sync

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lfreitas/syncbox/internal/bus"
	"github.com/lfreitas/syncbox/internal/netmon"
	"github.com/lfreitas/syncbox/internal/remote"
	"github.com/lfreitas/syncbox/internal/status"
	"github.com/lfreitas/syncbox/internal/store"
	"go.uber.org/zap"
)

// Coordinator orchestrates cache-first reads, write-behind queuing, and
// reconciliation when connectivity returns. It is the only component that
// decides when a local write is also pushed remotely, and the only writer of
// sync watermarks.
type Coordinator struct {
	msgs    *store.Messages
	convs   *store.Conversations
	users   *store.Users
	outbox  *store.Outbox
	state   *store.SyncState
	logs    *store.Logs
	remote  remote.Client
	bus     *bus.Bus
	net     *netmon.Monitor
	machine *status.Machine
	drainer *Drainer
	logger  *zap.Logger

	mu     sync.Mutex
	subs   map[string]func()
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator wires the coordinator over the repositories and
// collaborators.
func NewCoordinator(
	msgs *store.Messages,
	convs *store.Conversations,
	users *store.Users,
	outbox *store.Outbox,
	state *store.SyncState,
	logs *store.Logs,
	rc remote.Client,
	b *bus.Bus,
	net *netmon.Monitor,
	machine *status.Machine,
	drainer *Drainer,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		msgs:    msgs,
		convs:   convs,
		users:   users,
		outbox:  outbox,
		state:   state,
		logs:    logs,
		remote:  rc,
		bus:     b,
		net:     net,
		machine: machine,
		drainer: drainer,
		logger:  logger,
		subs:    make(map[string]func()),
	}
}

// Start begins watching connectivity transitions. An offline->online
// transition triggers an outbox drain.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()
	ch, unsub := c.bus.Subscribe("net.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				switch evt.Kind {
				case bus.KindNetOnline:
					_ = c.machine.Transition(status.Draining)
					_ = c.logs.Append(ctx, "info", "sync", "connectivity restored, draining outbox", nil)
					c.drainer.Kick()
				case bus.KindNetOffline:
					_ = c.machine.Transition(status.Offline)
					_ = c.logs.Append(ctx, "info", "sync", "connectivity lost", nil)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop closes all conversation subscriptions and stops the watcher.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	for id, stop := range c.subs {
		stop()
		delete(c.subs, id)
	}
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// OpenConversation serves cached messages immediately, then ensures a live
// subscription to the remote store resuming from the stored watermark.
// Incoming snapshots land in the cache via Ingest; the UI observes them
// through bus events, never by reading the remote store directly.
func (c *Coordinator) OpenConversation(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	cached, err := c.msgs.List(ctx, conversationID, 0, limit)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	_, subscribed := c.subs[conversationID]
	subCtx := c.ctx
	c.mu.Unlock()
	if subscribed {
		return cached, nil
	}

	if subCtx == nil {
		subCtx = ctx
	}
	since := c.watermark(ctx, conversationID)
	ch, stop, err := c.remote.Subscribe(subCtx, remote.Query{ConversationID: conversationID, SinceMs: since})
	if err != nil {
		// Cache stays serviceable offline; the subscription is retried on
		// the next open.
		c.logger.Warn("remote subscribe failed, serving cache only",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return cached, nil
	}

	c.mu.Lock()
	c.subs[conversationID] = stop
	c.mu.Unlock()

	go func() {
		for snap := range ch {
			c.Ingest(subCtx, snap)
		}
	}()

	return cached, nil
}

// CloseConversation drops the live subscription for a conversation.
func (c *Coordinator) CloseConversation(conversationID string) {
	c.mu.Lock()
	stop, ok := c.subs[conversationID]
	if ok {
		delete(c.subs, conversationID)
	}
	c.mu.Unlock()
	if ok {
		stop()
	}
}

// Ingest applies one remote snapshot to the cache. Conflicts with local
// optimistic writes resolve last-write-wins on the entity timestamp; the
// repository upsert enforces it, so applying the same snapshot twice is safe.
func (c *Coordinator) Ingest(ctx context.Context, snap remote.Snapshot) {
	switch snap.Kind {
	case remote.KindMessage:
		c.ingestMessage(ctx, snap.Message)
	case remote.KindConversation:
		if err := c.convs.Save(ctx, snap.Conversation); err != nil {
			c.logger.Error("failed to ingest conversation", zap.Error(err), zap.String("conversation_id", snap.Conversation.ID))
			return
		}
		c.bus.Publish(bus.Event{Kind: bus.KindConversationUpserted, Timestamp: time.Now(), Payload: snap.Conversation.ID})
	case remote.KindUser:
		if err := c.users.Save(ctx, snap.User); err != nil {
			c.logger.Error("failed to ingest user", zap.Error(err), zap.String("user_id", snap.User.ID))
			return
		}
		c.bus.Publish(bus.Event{Kind: bus.KindUserUpserted, Timestamp: time.Now(), Payload: snap.User.ID})
	}
}

func (c *Coordinator) ingestMessage(ctx context.Context, m *store.Message) {
	msg := *m
	msg.SyncedAt = time.Now().UnixMilli()

	// Read receipts from users outside the conversation are dropped: readBy
	// keys must stay a subset of the participants.
	if conv, err := c.convs.Get(ctx, msg.ConversationID); err == nil && conv != nil && len(msg.ReadBy) > 0 {
		participants := make(map[string]struct{}, len(conv.Participants))
		for _, p := range conv.Participants {
			participants[p] = struct{}{}
		}
		filtered := make(map[string]int64, len(msg.ReadBy))
		for id, ts := range msg.ReadBy {
			if _, ok := participants[id]; ok {
				filtered[id] = ts
			}
		}
		msg.ReadBy = filtered
	}

	if err := c.msgs.Save(ctx, &msg); err != nil {
		c.logger.Error("failed to ingest message", zap.Error(err), zap.String("message_id", msg.ID))
		return
	}

	if msg.SentAt > c.watermark(ctx, msg.ConversationID) {
		if err := c.state.Set(ctx, store.WatermarkKey(msg.ConversationID), strconv.FormatInt(msg.SentAt, 10), msg.SyncedAt); err != nil {
			c.logger.Warn("failed to advance watermark", zap.Error(err), zap.String("conversation_id", msg.ConversationID))
		}
	}

	c.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpserted,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": msg.ConversationID,
			"message_id":      msg.ID,
		},
	})
}

// SendText performs a local-first send: an optimistic message row with a
// client-generated id is written immediately, a durable outbox entry backs
// it, and a drain is kicked when online. Returns the logical message id.
func (c *Coordinator) SendText(ctx context.Context, conversationID, senderID, body string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UnixMilli()

	if err := c.msgs.Save(ctx, &store.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		SentAt:         now,
		Status:         store.StatusPending,
		CreatedAt:      now,
	}); err != nil {
		return "", err
	}

	if err := c.outbox.Enqueue(ctx, &store.OutboxEntry{
		MessageID:      id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		EnqueuedAt:     now,
		CreatedAt:      now,
	}); err != nil {
		return "", err
	}

	c.bus.Publish(bus.Event{
		Kind:      bus.KindMessageEnqueued,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": conversationID,
			"message_id":      id,
		},
	})

	if c.net.Online() {
		c.drainer.Kick()
	}
	return id, nil
}

// RetryFailed requeues a failed outbox entry for another delivery attempt.
func (c *Coordinator) RetryFailed(ctx context.Context, messageID string) error {
	if err := c.outbox.Requeue(ctx, messageID); err != nil {
		return err
	}
	if c.net.Online() {
		c.drainer.Kick()
	}
	return nil
}

// User is a read-through profile lookup: cache hit returns immediately; a
// miss fetches from the remote store and fills the cache so the next read is
// instant. Returns nil when the profile exists nowhere.
func (c *Coordinator) User(ctx context.Context, id string) (*store.User, error) {
	u, err := c.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}

	snap, err := c.remote.Read(ctx, remote.KindUser, id)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.User == nil {
		return nil, nil
	}
	filled := *snap.User
	filled.SyncedAt = time.Now().UnixMilli()
	if err := c.users.Save(ctx, &filled); err != nil {
		return nil, err
	}
	return &filled, nil
}

// UnreadDisplay derives the immediate-session unread indicator from cached
// read-receipt absence. Display-only and best-effort: the authoritative
// count is the remote store's atomic counter mirrored on the conversation
// row, and the two are not guaranteed to agree.
func (c *Coordinator) UnreadDisplay(ctx context.Context, conversationID, userID string) (int, error) {
	return c.msgs.UnreadDisplay(ctx, conversationID, userID)
}

func (c *Coordinator) watermark(ctx context.Context, conversationID string) int64 {
	raw, err := c.state.Get(ctx, store.WatermarkKey(conversationID))
	if err != nil || raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
