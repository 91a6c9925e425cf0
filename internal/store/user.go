package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// Users is a stateless repository over the users table.
type Users struct {
	eng    *Engine
	logger *zap.Logger
}

// NewUsers creates the user repository.
func NewUsers(eng *Engine, logger *zap.Logger) *Users {
	return &Users{eng: eng, logger: logger}
}

// Save upserts a user profile, idempotent on id. Conflicts resolve
// last-write-wins on updated_at: a snapshot older than the cached row leaves
// the row untouched.
func (r *Users) Save(ctx context.Context, u *User) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		updatedAt := u.UpdatedAt
		if updatedAt == 0 {
			updatedAt = time.Now().UnixMilli()
		}
		_, err := db.Exec(`
			INSERT INTO users (id, email, display_name, avatar_url, languages, ai_settings, blocked, online, heartbeat_at, last_seen_at, updated_at, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				email = excluded.email,
				display_name = excluded.display_name,
				avatar_url = excluded.avatar_url,
				languages = excluded.languages,
				ai_settings = excluded.ai_settings,
				blocked = excluded.blocked,
				online = excluded.online,
				heartbeat_at = excluded.heartbeat_at,
				last_seen_at = excluded.last_seen_at,
				updated_at = excluded.updated_at,
				synced_at = excluded.synced_at
			WHERE excluded.updated_at >= users.updated_at`,
			u.ID, u.Email, u.DisplayName, u.AvatarURL,
			encodeStrings(u.Languages), encodeJSON(u.AISettings), encodeStrings(u.Blocked),
			u.Online, u.HeartbeatAt, u.LastSeenAt, updatedAt, u.SyncedAt)
		return err
	})
}

// SetPresence updates the online flag and heartbeat for a user already in
// the cache.
func (r *Users) SetPresence(ctx context.Context, id string, online bool, heartbeatAt int64) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		now := time.Now().UnixMilli()
		_, err := db.Exec(`
			UPDATE users SET online = ?, heartbeat_at = ?,
				last_seen_at = CASE WHEN ? THEN last_seen_at ELSE ? END,
				updated_at = ?
			WHERE id = ?`,
			online, heartbeatAt, online, heartbeatAt, now, id)
		return err
	})
}

// Get returns a user by id, or nil when absent.
func (r *Users) Get(ctx context.Context, id string) (*User, error) {
	row := r.eng.DB().QueryRowContext(ctx, `
		SELECT id, email, display_name, avatar_url, languages, ai_settings, blocked, online, heartbeat_at, last_seen_at, updated_at, synced_at
		FROM users WHERE id = ?`, id)
	u, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Users) scan(row rowScanner) (*User, error) {
	var u User
	var languages, aiSettings, blocked string
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL,
		&languages, &aiSettings, &blocked, &u.Online,
		&u.HeartbeatAt, &u.LastSeenAt, &u.UpdatedAt, &u.SyncedAt); err != nil {
		return nil, err
	}
	decodeJSON(languages, &u.Languages, r.logger, "users.languages")
	u.AISettings = map[string]bool{}
	decodeJSON(aiSettings, &u.AISettings, r.logger, "users.ai_settings")
	if u.AISettings == nil {
		u.AISettings = map[string]bool{}
	}
	decodeJSON(blocked, &u.Blocked, r.logger, "users.blocked")
	return &u, nil
}
