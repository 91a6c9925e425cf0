package store

import (
	"context"
	"database/sql"
)

// WatermarkKey builds the sync_state key holding the last-synced timestamp
// for a conversation.
func WatermarkKey(conversationID string) string {
	return "watermark:conv:" + conversationID
}

// SyncState is a key/value repository for synchronization watermarks and
// related bookkeeping. Keys are never deleted except on full reset.
type SyncState struct {
	eng *Engine
}

// NewSyncState creates the sync-state repository.
func NewSyncState(eng *Engine) *SyncState {
	return &SyncState{eng: eng}
}

// Set stores a value under key.
func (r *SyncState) Set(ctx context.Context, key, value string, updatedAt int64) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO sync_state (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, updatedAt)
		return err
	})
}

// Get returns the value for key, or "" when absent.
func (r *SyncState) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.eng.DB().QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
