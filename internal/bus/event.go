package bus

import "time"

// Event kinds published by the engine. Subscribers filter by prefix, e.g.
// "message." receives every message event.
const (
	KindMessageUpserted = "message.upserted"
	KindMessageEnqueued = "message.enqueued"
	KindMessageAck      = "message.send_ack"
	KindMessageFailed   = "message.send_failed"

	KindConversationUpserted = "conversation.upserted"
	KindUserUpserted         = "user.upserted"

	KindNetOnline  = "net.online"
	KindNetOffline = "net.offline"

	KindAppSuspend = "app.suspend"
	KindAppResume  = "app.resume"

	KindSyncStatusChanged = "sync.status_changed"
	KindSyncDrained       = "sync.outbox_drained"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
