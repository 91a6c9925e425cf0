package store

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// Search performs a full-text search over message bodies. When the FTS index
// is unavailable (older database, failed virtual-table load), it falls back
// to a substring scan: worse ranking, but the feature stays available.
func (r *Messages) Search(ctx context.Context, query, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	results, err := r.searchFTS(ctx, query, conversationID, limit)
	if err == nil {
		return results, nil
	}
	r.logger.Warn("full-text search unavailable, falling back to substring scan", zap.Error(err))
	return r.searchScan(ctx, query, conversationID, limit)
}

func (r *Messages) searchFTS(ctx context.Context, query, conversationID string, limit int) ([]SearchResult, error) {
	q := `
		SELECT m.id, m.conversation_id, m.sender_id, m.body, m.sent_at, m.read_by, m.status, m.ai_payload, m.created_at, m.updated_at, m.synced_at,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if conversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := r.eng.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		var readBy string
		var aiPayload sql.NullString
		if err := rows.Scan(&res.Message.ID, &res.Message.ConversationID, &res.Message.SenderID,
			&res.Message.Body, &res.Message.SentAt, &readBy, &res.Message.Status, &aiPayload,
			&res.Message.CreatedAt, &res.Message.UpdatedAt, &res.Message.SyncedAt,
			&res.Snippet); err != nil {
			return nil, err
		}
		res.Message.ReadBy = map[string]int64{}
		decodeJSON(readBy, &res.Message.ReadBy, r.logger, "messages.read_by")
		if aiPayload.Valid && aiPayload.String != "" {
			res.Message.AIPayload = map[string]any{}
			decodeJSON(aiPayload.String, &res.Message.AIPayload, r.logger, "messages.ai_payload")
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *Messages) searchScan(ctx context.Context, query, conversationID string, limit int) ([]SearchResult, error) {
	q := `
		SELECT id, conversation_id, sender_id, body, sent_at, read_by, status, ai_payload, created_at, updated_at, synced_at
		FROM messages
		WHERE body LIKE '%' || ? || '%'`

	args := []any{query}
	if conversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY sent_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.eng.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Message: *m})
	}
	return results, rows.Err()
}
