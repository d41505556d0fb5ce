// Package sizeindex caches archive listings and size summaries in SQLite
// with a freshness window.
package sizeindex

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sizes (
	path       TEXT PRIMARY KEY,
	bytes      INTEGER NOT NULL DEFAULT 0,
	files      INTEGER NOT NULL DEFAULT 0,
	fetched_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
	path       TEXT PRIMARY KEY,
	children   TEXT NOT NULL DEFAULT '[]',
	fetched_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sizes_fetched ON sizes(fetched_at);
CREATE INDEX IF NOT EXISTS idx_listings_fetched ON listings(fetched_at);
`

// DB wraps a sql.DB with cache-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sizeindex: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sizeindex: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sizeindex: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
