package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// Logs is an append-only diagnostic log with time-based retention.
type Logs struct {
	eng    *Engine
	logger *zap.Logger
}

// NewLogs creates the log repository.
func NewLogs(eng *Engine, logger *zap.Logger) *Logs {
	return &Logs{eng: eng, logger: logger}
}

// Append records one diagnostic entry.
func (r *Logs) Append(ctx context.Context, level, category, message string, metadata map[string]any) error {
	return r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		meta := "{}"
		if len(metadata) > 0 {
			meta = encodeJSON(metadata)
		}
		_, err := db.Exec(`
			INSERT INTO logs (level, category, message, metadata, ts)
			VALUES (?, ?, ?, ?, ?)`,
			level, category, message, meta, time.Now().UnixMilli())
		return err
	})
}

// Query returns entries newest first, optionally filtered by category and
// minimum timestamp.
func (r *Logs) Query(ctx context.Context, category string, sinceMs int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT seq, level, category, message, metadata, ts FROM logs WHERE ts >= ?`
	args := []any{sinceMs}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.eng.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var metadata string
		if err := rows.Scan(&e.Seq, &e.Level, &e.Category, &e.Message, &metadata, &e.TS); err != nil {
			return nil, err
		}
		e.Metadata = map[string]any{}
		decodeJSON(metadata, &e.Metadata, r.logger, "logs.metadata")
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff and returns how many went.
func (r *Logs) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	var deleted int64
	err := r.eng.WriteRetry(ctx, func(db *sql.DB) error {
		res, err := db.Exec(`DELETE FROM logs WHERE ts < ?`, cutoff)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
