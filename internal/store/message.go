package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SQLite's bound on parameters per statement.
const maxStatementParams = 999

const messageColumns = 11

// Messages is a stateless repository over the messages table. All writes go
// through the engine's serialized write path.
type Messages struct {
	eng    *Engine
	logger *zap.Logger
}

// NewMessages creates the message repository.
func NewMessages(eng *Engine, logger *zap.Logger) *Messages {
	return &Messages{eng: eng, logger: logger}
}

const messageUpsertSQL = `
	INSERT INTO messages (id, conversation_id, sender_id, body, sent_at, read_by, status, ai_payload, created_at, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		conversation_id = excluded.conversation_id,
		sender_id = excluded.sender_id,
		body = excluded.body,
		sent_at = excluded.sent_at,
		read_by = excluded.read_by,
		status = excluded.status,
		ai_payload = excluded.ai_payload,
		updated_at = excluded.updated_at,
		synced_at = excluded.synced_at
	WHERE excluded.sent_at >= messages.sent_at`

func messageArgs(m *Message, now int64) []any {
	createdAt := m.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	var aiPayload any
	if len(m.AIPayload) > 0 {
		aiPayload = encodeJSON(m.AIPayload)
	}
	return []any{
		m.ID, m.ConversationID, m.SenderID, m.Body, m.SentAt,
		encodeReadBy(m.ReadBy), m.Status, aiPayload,
		createdAt, now, m.SyncedAt,
	}
}

// Save upserts a message with last-write-wins semantics: an existing row is
// only replaced when the incoming sent_at is newer or equal. Idempotent on id.
func (r *Messages) Save(ctx context.Context, m *Message) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		_, err := db.Exec(messageUpsertSQL, messageArgs(m, time.Now().UnixMilli())...)
		return err
	})
}

// Reconcile overwrites the row for m.ID unconditionally, preserving
// created_at. Used when a remote push is confirmed: the optimistic local
// copy is replaced in place by the authoritative version, no merge.
func (r *Messages) Reconcile(ctx context.Context, m *Message) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		var aiPayload any
		if len(m.AIPayload) > 0 {
			aiPayload = encodeJSON(m.AIPayload)
		}
		now := time.Now().UnixMilli()
		createdAt := m.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		_, err := db.Exec(`
			INSERT INTO messages (id, conversation_id, sender_id, body, sent_at, read_by, status, ai_payload, created_at, updated_at, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				conversation_id = excluded.conversation_id,
				sender_id = excluded.sender_id,
				body = excluded.body,
				sent_at = excluded.sent_at,
				read_by = excluded.read_by,
				status = excluded.status,
				ai_payload = excluded.ai_payload,
				updated_at = excluded.updated_at,
				synced_at = excluded.synced_at`,
			m.ID, m.ConversationID, m.SenderID, m.Body, m.SentAt,
			encodeReadBy(m.ReadBy), m.Status, aiPayload,
			createdAt, now, m.SyncedAt)
		return err
	})
}

// SaveBatch persists a batch of messages. Small batches take the plain
// serialized write path; larger ones are chunked below the statement
// parameter bound and applied inside a single write slot, one transaction
// per batch, to avoid a fsync per row.
func (r *Messages) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) <= 10 {
		return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
			now := time.Now().UnixMilli()
			for _, m := range msgs {
				if _, err := db.Exec(messageUpsertSQL, messageArgs(m, now)...); err != nil {
					return fmt.Errorf("upsert message %q: %w", m.ID, err)
				}
			}
			return nil
		})
	}

	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UnixMilli()
		chunkSize := maxStatementParams / messageColumns
		for start := 0; start < len(msgs); start += chunkSize {
			end := min(start+chunkSize, len(msgs))
			if err := insertMessageChunk(tx, msgs[start:end], now); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func insertMessageChunk(tx *sql.Tx, msgs []*Message, now int64) error {
	q := `INSERT INTO messages (id, conversation_id, sender_id, body, sent_at, read_by, status, ai_payload, created_at, updated_at, synced_at) VALUES `
	args := make([]any, 0, len(msgs)*messageColumns)
	for i, m := range msgs {
		if i > 0 {
			q += ", "
		}
		q += "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, messageArgs(m, now)...)
	}
	q += `
	ON CONFLICT(id) DO UPDATE SET
		conversation_id = excluded.conversation_id,
		sender_id = excluded.sender_id,
		body = excluded.body,
		sent_at = excluded.sent_at,
		read_by = excluded.read_by,
		status = excluded.status,
		ai_payload = excluded.ai_payload,
		updated_at = excluded.updated_at,
		synced_at = excluded.synced_at
	WHERE excluded.sent_at >= messages.sent_at`

	if _, err := tx.Exec(q, args...); err != nil {
		return fmt.Errorf("batch upsert %d messages: %w", len(msgs), err)
	}
	return nil
}

// SetReadReceipt records that userID read the message at ts (unix ms).
func (r *Messages) SetReadReceipt(ctx context.Context, messageID, userID string, ts int64) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		var raw string
		err := db.QueryRow(`SELECT read_by FROM messages WHERE id = ?`, messageID).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		readBy := map[string]int64{}
		decodeJSON(raw, &readBy, r.logger, "messages.read_by")
		if readBy == nil {
			readBy = map[string]int64{}
		}
		readBy[userID] = ts
		_, err = db.Exec(`UPDATE messages SET read_by = ?, updated_at = ? WHERE id = ?`,
			encodeReadBy(readBy), time.Now().UnixMilli(), messageID)
		return err
	})
}

// Get returns a message by id, or nil when absent.
func (r *Messages) Get(ctx context.Context, id string) (*Message, error) {
	row := r.eng.DB().QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, body, sent_at, read_by, status, ai_payload, created_at, updated_at, synced_at
		FROM messages WHERE id = ?`, id)
	m, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// List returns messages for a conversation using keyset pagination by
// sent_at, newest first.
func (r *Messages) List(ctx context.Context, conversationID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := r.eng.DB().QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, sent_at, read_by, status, ai_payload, created_at, updated_at, synced_at
		FROM messages
		WHERE conversation_id = ? AND sent_at < ?
		ORDER BY sent_at DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// UnreadDisplay counts cached messages in a conversation not yet read by
// userID, excluding the user's own. Display-only: the authoritative unread
// counter lives on the conversation row, mirrored from the remote store.
func (r *Messages) UnreadDisplay(ctx context.Context, conversationID, userID string) (int, error) {
	rows, err := r.eng.DB().QueryContext(ctx, `
		SELECT read_by FROM messages
		WHERE conversation_id = ? AND sender_id != ?`, conversationID, userID)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, err
		}
		readBy := map[string]int64{}
		decodeJSON(raw, &readBy, r.logger, "messages.read_by")
		if _, ok := readBy[userID]; !ok {
			count++
		}
	}
	return count, rows.Err()
}

// Count returns the total number of cached messages.
func (r *Messages) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.eng.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Messages) scan(row rowScanner) (*Message, error) {
	var m Message
	var readBy string
	var aiPayload sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.SentAt,
		&readBy, &m.Status, &aiPayload, &m.CreatedAt, &m.UpdatedAt, &m.SyncedAt); err != nil {
		return nil, err
	}
	m.ReadBy = map[string]int64{}
	decodeJSON(readBy, &m.ReadBy, r.logger, "messages.read_by")
	if m.ReadBy == nil {
		m.ReadBy = map[string]int64{}
	}
	if aiPayload.Valid && aiPayload.String != "" {
		m.AIPayload = map[string]any{}
		decodeJSON(aiPayload.String, &m.AIPayload, r.logger, "messages.ai_payload")
	}
	return &m, nil
}
