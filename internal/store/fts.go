package store

import "fmt"

// The full-text index is optional: fts5 is a compile-time SQLite module and
// not every build of the driver carries it. The index is therefore created
// here, outside the migration chain, so on a build without fts5 the store
// still opens and Search serves the substring-scan fallback.
var searchIndexDDL = []string{
	`CREATE VIRTUAL TABLE messages_fts USING fts5(body, content='messages', content_rowid='rowid')`,
	`CREATE TRIGGER messages_fts_insert AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, body) VALUES (new.rowid, new.body);
	END`,
	`CREATE TRIGGER messages_fts_delete AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, body) VALUES ('delete', old.rowid, old.body);
	END`,
	`CREATE TRIGGER messages_fts_update AFTER UPDATE OF body ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, body) VALUES ('delete', old.rowid, old.body);
		INSERT INTO messages_fts(rowid, body) VALUES (new.rowid, new.body);
	END`,
	// Index whatever the table already holds: the database may have been
	// written by a build without fts5.
	`INSERT INTO messages_fts(messages_fts) VALUES ('rebuild')`,
}

// setupSearchIndex creates the fts5 index and its sync triggers if they do
// not exist yet. Runs during Open, before the write consumer starts.
func (e *Engine) setupSearchIndex() error {
	var n int
	err := e.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'messages_fts'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("check search index: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, stmt := range searchIndexDDL {
		if _, err := e.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
