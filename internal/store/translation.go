package store

import (
	"context"
	"database/sql"
	"time"
)

// Translations caches translated message bodies keyed by (message, language)
// so the downstream translation feature never re-requests a known result.
type Translations struct {
	eng *Engine
}

// NewTranslations creates the translation cache repository.
func NewTranslations(eng *Engine) *Translations {
	return &Translations{eng: eng}
}

// Put stores a translation result.
func (r *Translations) Put(ctx context.Context, t *Translation) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		createdAt := t.CreatedAt
		if createdAt == 0 {
			createdAt = time.Now().UnixMilli()
		}
		_, err := db.Exec(`
			INSERT INTO translations (message_id, language, body, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(message_id, language) DO UPDATE SET body = excluded.body`,
			t.MessageID, t.Language, t.Body, createdAt)
		return err
	})
}

// Get returns the cached translation, or nil when absent.
func (r *Translations) Get(ctx context.Context, messageID, language string) (*Translation, error) {
	var t Translation
	err := r.eng.DB().QueryRowContext(ctx, `
		SELECT message_id, language, body, created_at
		FROM translations WHERE message_id = ? AND language = ?`,
		messageID, language).
		Scan(&t.MessageID, &t.Language, &t.Body, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
