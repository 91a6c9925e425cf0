package store

// Message statuses. StatusPending marks the local optimistic copy of a send
// still awaiting remote confirmation; the remaining values mirror the remote
// store's delivery states.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Conversation kinds.
const (
	KindDirect = "direct"
	KindGroup  = "group"
)

// Outbox statuses.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxFailed  = "failed"
)

// Message is a cached message row. ID is the logical message id, stable
// across the optimistic local copy and the remote-confirmed copy. SentAt is
// the logical timestamp used for last-write-wins reconciliation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	SentAt         int64
	ReadBy         map[string]int64 // user id -> read timestamp (unix ms)
	Status         string
	AIPayload      map[string]any
	CreatedAt      int64
	UpdatedAt      int64
	SyncedAt       int64
}

// Conversation is a cached conversation row with a denormalized preview of
// its latest message. LastMessageID, if set, must reference a cached message.
type Conversation struct {
	ID                  string
	Kind                string
	Participants        []string
	Name                string
	LastMessageID       string
	LastMessagePreview  string
	LastMessageSenderID string
	LastMessageAt       int64
	Unread              map[string]int // user id -> unread counter (remote-authoritative)
	CreatedAt           int64
	UpdatedAt           int64
	SyncedAt            int64
}

// User is a cached user profile.
type User struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
	Languages   []string
	AISettings  map[string]bool
	Blocked     []string
	Online      bool
	HeartbeatAt int64
	LastSeenAt  int64
	UpdatedAt   int64
	SyncedAt    int64
}

// OutboxEntry is a durable record of a send awaiting remote confirmation.
// MessageID is the client-generated logical id shared with the optimistic
// message row. The row is deleted on confirmed delivery.
type OutboxEntry struct {
	Seq            int64
	MessageID      string
	ConversationID string
	SenderID       string
	Body           string
	Status         string
	RetryCount     int
	LastError      string
	LastRetryAt    int64
	EnqueuedAt     int64
	CreatedAt      int64
}

// LogEntry is an append-only diagnostic record with time-based retention.
type LogEntry struct {
	Seq      int64
	Level    string
	Category string
	Message  string
	Metadata map[string]any
	TS       int64
}

// Translation caches a translated message body keyed by message and language.
type Translation struct {
	MessageID string
	Language  string
	Body      string
	CreatedAt int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
