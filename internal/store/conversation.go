package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// Conversations is a stateless repository over the conversations table.
type Conversations struct {
	eng    *Engine
	logger *zap.Logger
}

// NewConversations creates the conversation repository.
func NewConversations(eng *Engine, logger *zap.Logger) *Conversations {
	return &Conversations{eng: eng, logger: logger}
}

// Save upserts a conversation with last-write-wins on updated_at: a snapshot
// older than the cached row leaves the row untouched.
//
// Referential guard: when the denormalized last-message pointer references a
// message that is not cached locally (partial sync), the write degrades to
// the non-pointer columns so a previously cached valid preview survives.
// Losing a preview update is acceptable; a dangling pointer in the cache is
// not. The check and the write run inside the same serialized write slot, so
// no writer can race them.
func (r *Conversations) Save(ctx context.Context, c *Conversation) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		dangling := false
		if c.LastMessageID != "" {
			var exists int
			err := db.QueryRow(`SELECT 1 FROM messages WHERE id = ?`, c.LastMessageID).Scan(&exists)
			if err == sql.ErrNoRows {
				r.logger.Warn("conversation references uncached message, dropping preview update",
					zap.String("category", "referential_integrity"),
					zap.String("conversation_id", c.ID),
					zap.String("last_message_id", c.LastMessageID))
				dangling = true
			} else if err != nil {
				return err
			}
		}

		now := time.Now().UnixMilli()
		createdAt := c.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}
		updatedAt := c.UpdatedAt
		if updatedAt == 0 {
			updatedAt = now
		}

		if dangling {
			// The pointer columns stay as they are: null for a new row,
			// the previously verified values for an existing one.
			_, err := db.Exec(`
				INSERT INTO conversations (id, kind, participants, name, last_message_id, last_message_preview, last_message_sender_id, last_message_at, unread, created_at, updated_at, synced_at)
				VALUES (?, ?, ?, ?, NULL, '', '', 0, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					kind = excluded.kind,
					participants = excluded.participants,
					name = excluded.name,
					unread = excluded.unread,
					updated_at = excluded.updated_at,
					synced_at = excluded.synced_at
				WHERE excluded.updated_at >= conversations.updated_at`,
				c.ID, c.Kind, encodeStrings(c.Participants), c.Name,
				encodeUnread(c.Unread), createdAt, updatedAt, c.SyncedAt)
			return err
		}

		var lastMessageID any
		if c.LastMessageID != "" {
			lastMessageID = c.LastMessageID
		}
		_, err := db.Exec(`
			INSERT INTO conversations (id, kind, participants, name, last_message_id, last_message_preview, last_message_sender_id, last_message_at, unread, created_at, updated_at, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				participants = excluded.participants,
				name = excluded.name,
				last_message_id = excluded.last_message_id,
				last_message_preview = excluded.last_message_preview,
				last_message_sender_id = excluded.last_message_sender_id,
				last_message_at = excluded.last_message_at,
				unread = excluded.unread,
				updated_at = excluded.updated_at,
				synced_at = excluded.synced_at
			WHERE excluded.updated_at >= conversations.updated_at`,
			c.ID, c.Kind, encodeStrings(c.Participants), c.Name,
			lastMessageID, c.LastMessagePreview, c.LastMessageSenderID, c.LastMessageAt,
			encodeUnread(c.Unread), createdAt, updatedAt, c.SyncedAt)
		return err
	})
}

// SetUnread mirrors the remote store's atomic unread counter for one user.
func (r *Conversations) SetUnread(ctx context.Context, conversationID, userID string, count int) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		var raw string
		err := db.QueryRow(`SELECT unread FROM conversations WHERE id = ?`, conversationID).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		unread := map[string]int{}
		decodeJSON(raw, &unread, r.logger, "conversations.unread")
		if unread == nil {
			unread = map[string]int{}
		}
		unread[userID] = count
		_, err = db.Exec(`UPDATE conversations SET unread = ?, updated_at = ? WHERE id = ?`,
			encodeUnread(unread), time.Now().UnixMilli(), conversationID)
		return err
	})
}

// Get returns a conversation by id, or nil when absent.
func (r *Conversations) Get(ctx context.Context, id string) (*Conversation, error) {
	row := r.eng.DB().QueryRowContext(ctx, `
		SELECT id, kind, participants, name, last_message_id, last_message_preview, last_message_sender_id, last_message_at, unread, created_at, updated_at, synced_at
		FROM conversations WHERE id = ?`, id)
	c, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns conversations sorted by last message timestamp descending.
func (r *Conversations) List(ctx context.Context, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.eng.DB().QueryContext(ctx, `
		SELECT id, kind, participants, name, last_message_id, last_message_preview, last_message_sender_id, last_message_at, unread, created_at, updated_at, synced_at
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// Count returns the total number of cached conversations.
func (r *Conversations) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.eng.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

func (r *Conversations) scan(row rowScanner) (*Conversation, error) {
	var c Conversation
	var participants, unread string
	var lastMessageID sql.NullString
	if err := row.Scan(&c.ID, &c.Kind, &participants, &c.Name, &lastMessageID,
		&c.LastMessagePreview, &c.LastMessageSenderID, &c.LastMessageAt,
		&unread, &c.CreatedAt, &c.UpdatedAt, &c.SyncedAt); err != nil {
		return nil, err
	}
	c.LastMessageID = lastMessageID.String
	decodeJSON(participants, &c.Participants, r.logger, "conversations.participants")
	c.Unread = map[string]int{}
	decodeJSON(unread, &c.Unread, r.logger, "conversations.unread")
	if c.Unread == nil {
		c.Unread = map[string]int{}
	}
	return &c, nil
}
