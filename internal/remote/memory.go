package remote

import (
	"context"
	"sync"
	"time"

	"github.com/lfreitas/syncbox/internal/store"
)

// Memory is an in-memory Client for local development and tests. It applies
// pushes to its own maps, assigns server timestamps, and fans snapshots out
// to subscribers of the owning conversation.
type Memory struct {
	mu            sync.Mutex
	messages      map[string]*store.Message
	conversations map[string]*store.Conversation
	users         map[string]*store.User
	subs          map[int]memorySub
	nextSub       int
	pushErr       error
}

type memorySub struct {
	conversationID string
	ch             chan Snapshot
}

// NewMemory creates an empty in-memory remote store.
func NewMemory() *Memory {
	return &Memory{
		messages:      make(map[string]*store.Message),
		conversations: make(map[string]*store.Conversation),
		users:         make(map[string]*store.User),
		subs:          make(map[int]memorySub),
	}
}

// FailPushes makes every subsequent Push return err; nil restores normal
// behavior.
func (m *Memory) FailPushes(err error) {
	m.mu.Lock()
	m.pushErr = err
	m.mu.Unlock()
}

// SeedUser preloads a user profile, bypassing Push.
func (m *Memory) SeedUser(u *store.User) {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
}

// SeedMessage preloads a message, bypassing Push.
func (m *Memory) SeedMessage(msg *store.Message) {
	m.mu.Lock()
	m.messages[msg.ID] = msg
	m.mu.Unlock()
}

func (m *Memory) Subscribe(ctx context.Context, q Query) (<-chan Snapshot, func(), error) {
	m.mu.Lock()
	ch := make(chan Snapshot, 64)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = memorySub{conversationID: q.ConversationID, ch: ch}

	// Replay messages newer than the watermark ahead of live events.
	for _, msg := range m.messages {
		if msg.ConversationID == q.ConversationID && msg.SentAt > q.SinceMs {
			select {
			case ch <- Snapshot{Kind: KindMessage, Message: msg}:
			default:
			}
		}
	}
	m.mu.Unlock()

	stop := func() {
		m.mu.Lock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub.ch)
		}
		m.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ch, stop, nil
}

func (m *Memory) Push(_ context.Context, snap Snapshot) (Ack, error) {
	m.mu.Lock()
	if m.pushErr != nil {
		err := m.pushErr
		m.mu.Unlock()
		return Ack{}, err
	}

	now := time.Now().UnixMilli()
	var conversationID string
	switch snap.Kind {
	case KindMessage:
		msg := *snap.Message
		msg.SentAt = now
		msg.Status = store.StatusSent
		m.messages[msg.ID] = &msg
		conversationID = msg.ConversationID
		snap.Message = &msg
	case KindConversation:
		c := *snap.Conversation
		m.conversations[c.ID] = &c
		conversationID = c.ID
	case KindUser:
		u := *snap.User
		m.users[u.ID] = &u
	}

	for _, sub := range m.subs {
		if sub.conversationID == "" || sub.conversationID == conversationID {
			select {
			case sub.ch <- snap:
			default:
			}
		}
	}
	m.mu.Unlock()

	return Ack{ServerTime: now}, nil
}

func (m *Memory) Read(_ context.Context, kind, id string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case KindMessage:
		if msg, ok := m.messages[id]; ok {
			cp := *msg
			return &Snapshot{Kind: KindMessage, Message: &cp}, nil
		}
	case KindConversation:
		if c, ok := m.conversations[id]; ok {
			cp := *c
			return &Snapshot{Kind: KindConversation, Conversation: &cp}, nil
		}
	case KindUser:
		if u, ok := m.users[id]; ok {
			cp := *u
			return &Snapshot{Kind: KindUser, User: &cp}, nil
		}
	}
	return nil, nil
}
