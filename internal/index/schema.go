// Package index provides a SQLite-backed index of vault notes, links, and
// scan provenance with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	path       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	body       TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	type   TEXT NOT NULL DEFAULT 'inline',
	UNIQUE(source, target)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);

CREATE TABLE IF NOT EXISTS scans (
	note_path            TEXT NOT NULL,
	seq                  INTEGER NOT NULL,
	scan_id              TEXT NOT NULL,
	batch_id             TEXT NOT NULL DEFAULT '',
	captured_at          TEXT NOT NULL,
	capture_date         TEXT NOT NULL,
	image_path           TEXT NOT NULL DEFAULT '',
	processed_image_path TEXT NOT NULL DEFAULT '',
	processing_mode      TEXT NOT NULL DEFAULT '',
	folder               TEXT NOT NULL DEFAULT '',
	written_at           TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (note_path, seq)
);

CREATE INDEX IF NOT EXISTS idx_scans_date ON scans(capture_date);
CREATE INDEX IF NOT EXISTS idx_scans_scan ON scans(scan_id);
`

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for observer and sync failures.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}

	db := &DB{conn: conn}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = slog.Default()
	}
	db.logger = db.logger.With("component", "index")
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database connection is usable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
