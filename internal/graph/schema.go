// Package graph persists notes, blocks, and links in SQLite and answers
// backlink, tag, and graph queries. Links are kept as a flat
// (source, target) relation; every traversal is a query over that
// relation, never a walk of live object references.
package graph

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is checked and migrated on every open before any query is
// served.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	note_type   TEXT NOT NULL DEFAULT '',
	aliases     TEXT NOT NULL DEFAULT '[]',
	content     TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME,
	modified_at DATETIME
);

CREATE TABLE IF NOT EXISTS blocks (
	id       TEXT NOT NULL,
	note_id  TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	kind     TEXT NOT NULL,
	content  TEXT NOT NULL DEFAULT '',
	level    INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL,
	explicit INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (note_id, id)
);

CREATE TABLE IF NOT EXISTS links (
	source_id  TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	target_id  TEXT NOT NULL DEFAULT '',
	raw_target TEXT NOT NULL DEFAULT '',
	display    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT 'wiki',
	block_ref  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	name    TEXT NOT NULL,
	PRIMARY KEY (note_id, name)
);

CREATE INDEX IF NOT EXISTS idx_note_tags_name ON note_tags(name);
`

// Store wraps the workspace graph database. Writes are serialized through
// a single mutex so one writer at a time touches the underlying store;
// readers go straight to SQLite under WAL.
type Store struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Open opens (or creates) the graph database, applies the schema, and
// checks the schema-version marker.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("graph: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graph: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graph: apply schema: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Store{conn: conn}, nil
}

// Close flushes and releases the database handle. Required before another
// workspace may open against the same path.
func (s *Store) Close() error {
	return s.conn.Close()
}

func migrate(conn *sql.DB) error {
	var v int
	err := conn.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		_, err = conn.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
		if err != nil {
			return fmt.Errorf("graph: set schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("graph: read schema version: %w", err)
	}
	if v > schemaVersion {
		return fmt.Errorf("graph: database schema version %d is newer than supported %d", v, schemaVersion)
	}
	// Future migrations step v forward one version at a time here.
	if v < schemaVersion {
		if _, err := conn.Exec(`UPDATE schema_version SET version = ?`, schemaVersion); err != nil {
			return fmt.Errorf("graph: migrate schema version: %w", err)
		}
	}
	return nil
}
