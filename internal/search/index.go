// Package search maintains a ranked full-text index over note content,
// tags, path, and modification time. With the sqlite_fts5 build tag the
// index ranks with BM25; without it a LIKE-based fallback keeps the same
// contract with recency ordering. Search failures are isolated from graph
// and task indexing: they surface to the caller and never crash the
// pipeline.
package search

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const docsSchemaSQL = `
CREATE TABLE IF NOT EXISTS docs (
	note_id     TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	modified_at DATETIME
);

CREATE TABLE IF NOT EXISTS doc_tags (
	note_id TEXT NOT NULL,
	tag     TEXT NOT NULL,
	PRIMARY KEY (note_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_doc_tags_tag ON doc_tags(tag);
`

// Document is one note's searchable representation.
type Document struct {
	NoteID     string
	Title      string
	Path       string
	Body       string
	Tags       []string
	ModifiedAt time.Time
}

// Query combines a free-text query with structural filters. Filters are a
// hard pre-filter (AND) applied before ranking; a note failing any filter
// is excluded regardless of text score.
type Query struct {
	Text       string
	Tags       []string
	PathPrefix string
	From       time.Time
	To         time.Time
	Limit      int
}

// Result is one search hit, ranked descending by score with ties broken
// by most-recently-modified first.
type Result struct {
	NoteID     string    `json:"note_id"`
	Title      string    `json:"title"`
	Path       string    `json:"path"`
	Score      float64   `json:"score"`
	Tags       []string  `json:"tags"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Store wraps the workspace search database. A single mutex serializes
// writers so bulk rebuilds and incremental updates interleave safely at
// per-note granularity.
type Store struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Open opens (or creates) the search database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("search: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: ping: %w", err)
	}
	if _, err := conn.Exec(docsSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: apply schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: apply fts schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close flushes and releases the database handle.
func (s *Store) Close() error {
	return s.conn.Close()
}

// IndexNote inserts or replaces the note's searchable document.
func (s *Store) IndexNote(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertDoc(tx, doc); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveNote deletes the note's document.
func (s *Store) RemoveNote(noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM docs WHERE note_id = ?`,
		`DELETE FROM doc_tags WHERE note_id = ?`,
	} {
		if _, err := tx.Exec(stmt, noteID); err != nil {
			return fmt.Errorf("search: remove doc: %w", err)
		}
	}
	ftsDelete(tx, noteID)
	return tx.Commit()
}

// IndexAll is the authoritative bulk pass run once at workspace open. It
// upserts per document rather than wiping the table, so notes indexed
// individually while the bulk build runs are not lost; whichever write
// commits last wins.
func (s *Store) IndexAll(docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin bulk tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, doc := range docs {
		if err := upsertDoc(tx, doc); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertDoc(tx *sql.Tx, doc Document) error {
	_, err := tx.Exec(`
		INSERT INTO docs (note_id, title, path, body, modified_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			title       = excluded.title,
			path        = excluded.path,
			body        = excluded.body,
			modified_at = excluded.modified_at
	`, doc.NoteID, doc.Title, doc.Path, doc.Body, doc.ModifiedAt)
	if err != nil {
		return fmt.Errorf("search: upsert doc: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM doc_tags WHERE note_id = ?`, doc.NoteID); err != nil {
		return fmt.Errorf("search: clear doc tags: %w", err)
	}
	for _, tag := range doc.Tags {
		if tag == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO doc_tags (note_id, tag) VALUES (?, ?)`, doc.NoteID, tag); err != nil {
			return fmt.Errorf("search: insert doc tag: %w", err)
		}
	}
	return ftsUpsert(tx, doc)
}

// filterSQL renders the structural filters as AND clauses over the docs
// table aliased as d.
func (q Query) filterSQL() (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	for _, tag := range q.Tags {
		sb.WriteString(` AND EXISTS (SELECT 1 FROM doc_tags t WHERE t.note_id = d.note_id AND t.tag = ?)`)
		args = append(args, tag)
	}
	if q.PathPrefix != "" {
		sb.WriteString(` AND d.path LIKE ? ESCAPE '\'`)
		args = append(args, likePrefix(q.PathPrefix))
	}
	if !q.From.IsZero() {
		sb.WriteString(` AND d.modified_at >= ?`)
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		sb.WriteString(` AND d.modified_at <= ?`)
		args = append(args, q.To)
	}
	return sb.String(), args
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// searchRecent serves the empty-text case for both builds: all notes
// passing the filters, ranked by recency rather than a degenerate zero
// score.
func (s *Store) searchRecent(q Query) ([]Result, error) {
	filters, args := q.filterSQL()
	args = append(args, q.limit())
	rows, err := s.conn.Query(`
		SELECT d.note_id, d.title, d.path, d.modified_at,
		       (SELECT group_concat(tag, ' ') FROM doc_tags WHERE note_id = d.note_id)
		FROM docs d
		WHERE 1=1`+filters+`
		ORDER BY d.modified_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search: recent query: %w", err)
	}
	defer rows.Close()
	return scanResults(rows, false)
}

func scanResults(rows *sql.Rows, withScore bool) ([]Result, error) {
	out := []Result{}
	for rows.Next() {
		var (
			r        Result
			modified sql.NullTime
			tags     sql.NullString
			err      error
		)
		if withScore {
			err = rows.Scan(&r.NoteID, &r.Title, &r.Path, &r.Score, &modified, &tags)
		} else {
			err = rows.Scan(&r.NoteID, &r.Title, &r.Path, &modified, &tags)
		}
		if err != nil {
			return nil, err
		}
		if modified.Valid {
			r.ModifiedAt = modified.Time
		}
		if tags.Valid && tags.String != "" {
			r.Tags = strings.Split(tags.String, " ")
		} else {
			r.Tags = []string{}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
