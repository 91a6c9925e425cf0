package store

import (
	"context"
	"database/sql"
	"time"
)

// Outbox is the durable queue of sends awaiting remote confirmation.
// State machine: queued -> sending -> removed on ack, or back to queued with
// retry bookkeeping on failure. There is no retry cap here; the sync
// coordinator applies its budget and marks an entry failed, after which the
// row is retained until the user retries or deletes it.
type Outbox struct {
	eng *Engine
}

// NewOutbox creates the outbox repository.
func NewOutbox(eng *Engine) *Outbox {
	return &Outbox{eng: eng}
}

// Enqueue adds an entry. Idempotent on message_id so a retried local write
// cannot duplicate a queued send.
func (r *Outbox) Enqueue(ctx context.Context, e *OutboxEntry) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		now := time.Now().UnixMilli()
		enqueuedAt := e.EnqueuedAt
		if enqueuedAt == 0 {
			enqueuedAt = now
		}
		createdAt := e.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		_, err := db.Exec(`
			INSERT INTO outbox (message_id, conversation_id, sender_id, body, status, enqueued_at, created_at)
			VALUES (?, ?, ?, ?, 'queued', ?, ?)
			ON CONFLICT(message_id) DO NOTHING`,
			e.MessageID, e.ConversationID, e.SenderID, e.Body, enqueuedAt, createdAt)
		return err
	})
}

// MarkSending moves an entry to 'sending' for the duration of a delivery
// attempt.
func (r *Outbox) MarkSending(ctx context.Context, messageID string) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE outbox SET status = 'sending' WHERE message_id = ?`, messageID)
		return err
	})
}

// RecordFailure returns an entry to 'queued' with the attempt recorded.
func (r *Outbox) RecordFailure(ctx context.Context, messageID, errMsg string) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			UPDATE outbox SET status = 'queued', retry_count = retry_count + 1, last_error = ?, last_retry_at = ?
			WHERE message_id = ?`,
			errMsg, time.Now().UnixMilli(), messageID)
		return err
	})
}

// MarkFailed parks an entry as 'failed'. It stays out of the drain until
// Requeue.
func (r *Outbox) MarkFailed(ctx context.Context, messageID, errMsg string) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			UPDATE outbox SET status = 'failed', retry_count = retry_count + 1, last_error = ?, last_retry_at = ?
			WHERE message_id = ?`,
			errMsg, time.Now().UnixMilli(), messageID)
		return err
	})
}

// Requeue returns a failed entry to 'queued' for a manual retry.
func (r *Outbox) Requeue(ctx context.Context, messageID string) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE outbox SET status = 'queued', last_error = '' WHERE message_id = ? AND status = 'failed'`, messageID)
		return err
	})
}

// Remove deletes an entry after confirmed delivery (or explicit discard).
func (r *Outbox) Remove(ctx context.Context, messageID string) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM outbox WHERE message_id = ?`, messageID)
		return err
	})
}

// Pending returns queued entries in enqueue order. Entries stuck in
// 'sending' are included too: a crash mid-attempt must not strand them, and
// delivery is idempotent on the logical message id.
func (r *Outbox) Pending(ctx context.Context) ([]OutboxEntry, error) {
	return r.list(ctx, `WHERE status IN ('queued', 'sending')`)
}

// List returns every entry regardless of status, in enqueue order.
func (r *Outbox) List(ctx context.Context) ([]OutboxEntry, error) {
	return r.list(ctx, ``)
}

// Get returns an entry by logical message id, or nil when absent.
func (r *Outbox) Get(ctx context.Context, messageID string) (*OutboxEntry, error) {
	entries, err := r.list(ctx, `WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *Outbox) list(ctx context.Context, where string, args ...any) ([]OutboxEntry, error) {
	rows, err := r.eng.DB().QueryContext(ctx, `
		SELECT seq, message_id, conversation_id, sender_id, body, status, retry_count, last_error, last_retry_at, enqueued_at, created_at
		FROM outbox `+where+` ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.Seq, &e.MessageID, &e.ConversationID, &e.SenderID, &e.Body,
			&e.Status, &e.RetryCount, &e.LastError, &e.LastRetryAt, &e.EnqueuedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
