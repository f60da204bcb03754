// Package journal persists history entries in SQLite so the write history
// survives restarts.
package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/vaultgate/internal/history"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	seq         INTEGER PRIMARY KEY,
	id          TEXT NOT NULL,
	op          TEXT NOT NULL,
	path        TEXT NOT NULL,
	pre_image   TEXT,
	new_content TEXT,
	metadata    TEXT NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_path ON entries(path);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// DB is a SQLite-backed history.Sink. It keeps at most keep rows.
type DB struct {
	conn *sql.DB
	keep int
}

var _ history.Sink = (*DB)(nil)

// Open opens (or creates) the journal database. keep bounds the number of
// stored entries; values below one keep history.DefaultCapacity rows.
func Open(dsn string, keep int) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	if keep < 1 {
		keep = history.DefaultCapacity
	}
	return &DB{conn: conn, keep: keep}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
