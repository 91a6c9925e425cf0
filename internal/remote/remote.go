// Package remote defines the collaborator interface to the remote document
// store. The engine treats it as an eventually consistent source/sink of
// entity snapshots; no transactional semantics are assumed across pushes.
// Transport is out of scope: implementations live with the embedding app.
package remote

import (
	"context"

	"github.com/lfreitas/syncbox/internal/store"
)

// Snapshot kinds.
const (
	KindMessage      = "message"
	KindConversation = "conversation"
	KindUser         = "user"
)

// Snapshot is one entity state as pushed by the remote store. Exactly one of
// the entity pointers is set, matching Kind.
type Snapshot struct {
	Kind         string
	Message      *store.Message
	Conversation *store.Conversation
	User         *store.User
}

// Query scopes a subscription to one conversation, resuming from the given
// watermark (unix ms, exclusive).
type Query struct {
	ConversationID string
	SinceMs        int64
}

// Ack confirms a push. ServerTime is the server-assigned timestamp the local
// cache adopts for last-write-wins ordering.
type Ack struct {
	ServerTime int64
}

// Client is the remote document store collaborator.
type Client interface {
	// Subscribe streams entity snapshots matching q until the returned stop
	// function is called or ctx is cancelled.
	Subscribe(ctx context.Context, q Query) (<-chan Snapshot, func(), error)
	// Push writes one entity to the remote store.
	Push(ctx context.Context, snap Snapshot) (Ack, error)
	// Read fetches one entity by id. Returns nil when absent.
	Read(ctx context.Context, kind, id string) (*Snapshot, error)
}
