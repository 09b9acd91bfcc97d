package graph

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// UpsertNote atomically replaces the note's stored blocks and outbound
// links and upserts the note row. Delete-then-insert runs under one
// transaction so a crash mid-write never leaves the note half-indexed.
func (s *Store) UpsertNote(note models.Note, blocks []models.Block, links []models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return &apperr.IndexWriteError{Store: "graph", NoteID: note.ID, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	aliasJSON, _ := json.Marshal(note.Aliases)
	_, err = tx.Exec(`
		INSERT INTO notes (id, title, note_type, aliases, content, checksum, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title       = excluded.title,
			note_type   = excluded.note_type,
			aliases     = excluded.aliases,
			content     = excluded.content,
			checksum    = excluded.checksum,
			created_at  = excluded.created_at,
			modified_at = excluded.modified_at
	`, note.ID, note.Title, note.Type, string(aliasJSON), note.Content, note.Checksum,
		note.CreatedAt, note.ModifiedAt)
	if err != nil {
		return &apperr.IndexWriteError{Store: "graph", NoteID: note.ID, Err: err}
	}

	for _, stmt := range []string{
		`DELETE FROM blocks WHERE note_id = ?`,
		`DELETE FROM links WHERE source_id = ?`,
		`DELETE FROM note_tags WHERE note_id = ?`,
	} {
		if _, err := tx.Exec(stmt, note.ID); err != nil {
			return &apperr.IndexWriteError{Store: "graph", NoteID: note.ID, Err: err}
		}
	}

	for _, b := range blocks {
		_, err := tx.Exec(`
			INSERT INTO blocks (id, note_id, kind, content, level, position, explicit)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, b.ID, note.ID, string(b.Kind), b.Content, b.Level, b.Position, b.Explicit)
		if err != nil {
			return &apperr.IndexWriteError{Store: "graph", NoteID: note.ID, Err: err}
		}
	}

	for _, l := range links {
		_, err := tx.Exec(`
			INSERT INTO links (source_id, target_id, raw_target, display, kind, block_ref)
			VALUES (?, ?, ?, ?, ?, ?)
		`, note.ID, l.TargetID, l.RawTarget, l.Display, string(l.Kind), l.BlockRef)
		if err != nil {
			return &apperr.IndexWriteError{Store: "graph", NoteID: note.ID, Err: err}
		}
	}

	for _, tag := range note.Tags {
		if tag == "" {
			continue
		}
		_, err := tx.Exec(`INSERT OR IGNORE INTO note_tags (note_id, name) VALUES (?, ?)`, note.ID, tag)
		if err != nil {
			return &apperr.IndexWriteError{Store: "graph", NoteID: note.ID, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperr.IndexWriteError{Store: "graph", NoteID: note.ID, Err: err}
	}
	return nil
}

// DeleteNote removes the note row and cascades to its blocks, its tags,
// and every link where it is source or target. No block or link may
// reference a missing note.
func (s *Store) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return &apperr.IndexWriteError{Store: "graph", NoteID: id, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	// Blocks, tags, and outbound links cascade via foreign keys; inbound
	// links need the explicit delete.
	if _, err := tx.Exec(`DELETE FROM links WHERE target_id = ?`, id); err != nil {
		return &apperr.IndexWriteError{Store: "graph", NoteID: id, Err: err}
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return &apperr.IndexWriteError{Store: "graph", NoteID: id, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &apperr.IndexWriteError{Store: "graph", NoteID: id, Err: err}
	}
	return nil
}

// GetNote returns the stored note row with its tags.
func (s *Store) GetNote(id string) (*models.Note, error) {
	var (
		n         models.Note
		aliasJSON string
		created   sql.NullTime
		modified  sql.NullTime
	)
	err := s.conn.QueryRow(`
		SELECT id, title, note_type, aliases, content, checksum, created_at, modified_at
		FROM notes WHERE id = ?
	`, id).Scan(&n.ID, &n.Title, &n.Type, &aliasJSON, &n.Content, &n.Checksum, &created, &modified)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("graph: get note: %w", err)
	}
	_ = json.Unmarshal([]byte(aliasJSON), &n.Aliases)
	if created.Valid {
		n.CreatedAt = created.Time
	}
	if modified.Valid {
		n.ModifiedAt = modified.Time
	}

	rows, err := s.conn.Query(`SELECT name FROM note_tags WHERE note_id = ? ORDER BY name`, id)
	if err != nil {
		return nil, fmt.Errorf("graph: note tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		n.Tags = append(n.Tags, t)
	}
	return &n, rows.Err()
}

// ListNotes returns every indexed note ordered by identity.
func (s *Store) ListNotes() ([]models.NoteSummary, error) {
	rows, err := s.conn.Query(`
		SELECT id, title, aliases, checksum, modified_at FROM notes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("graph: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.NoteSummary
	for rows.Next() {
		var (
			n         models.NoteSummary
			aliasJSON string
			modified  sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.Title, &aliasJSON, &n.Checksum, &modified); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(aliasJSON), &n.Aliases)
		if modified.Valid {
			n.ModifiedAt = modified.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Checksums returns the stored checksum per note identity, used by the
// reconciliation pass to skip unchanged files.
func (s *Store) Checksums() (map[string]string, error) {
	rows, err := s.conn.Query(`SELECT id, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("graph: checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// GetBlocks returns the note's blocks in position order.
func (s *Store) GetBlocks(noteID string) ([]models.Block, error) {
	rows, err := s.conn.Query(`
		SELECT id, note_id, kind, content, level, position, explicit
		FROM blocks WHERE note_id = ? ORDER BY position
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("graph: blocks: %w", err)
	}
	defer rows.Close()

	var out []models.Block
	for rows.Next() {
		var (
			b    models.Block
			kind string
		)
		if err := rows.Scan(&b.ID, &b.NoteID, &kind, &b.Content, &b.Level, &b.Position, &b.Explicit); err != nil {
			return nil, err
		}
		b.Kind = models.BlockKind(kind)
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBacklinks returns all links whose resolved target equals id, ordered
// by source identity for determinism.
func (s *Store) GetBacklinks(id string) ([]models.Link, error) {
	return s.queryLinks(`
		SELECT source_id, target_id, raw_target, display, kind, block_ref
		FROM links WHERE target_id = ? ORDER BY source_id
	`, id)
}

// GetGraph returns the full snapshot for visualization: all note
// identities as nodes and all current links as edges.
func (s *Store) GetGraph() (*models.GraphSnapshot, error) {
	rows, err := s.conn.Query(`SELECT id FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("graph: nodes: %w", err)
	}
	defer rows.Close()

	snap := &models.GraphSnapshot{Nodes: []string{}, Edges: []models.Link{}}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		snap.Nodes = append(snap.Nodes, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := s.queryLinks(`
		SELECT source_id, target_id, raw_target, display, kind, block_ref
		FROM links ORDER BY source_id
	`)
	if err != nil {
		return nil, err
	}
	snap.Edges = edges
	return snap, nil
}

// ResolveLinks re-runs resolution for every stored link. resolve receives
// the source identity and the literal target and reports the resolved
// identity, or false to leave the link broken. Links that change are
// updated in one transaction.
func (s *Store) ResolveLinks(resolve func(sourceID, rawTarget string) (string, bool)) error {
	type pending struct {
		rowid  int64
		target string
	}

	rows, err := s.conn.Query(`SELECT rowid, source_id, target_id, raw_target FROM links`)
	if err != nil {
		return fmt.Errorf("graph: list links: %w", err)
	}
	var updates []pending
	for rows.Next() {
		var (
			rowid           int64
			source, current string
			raw             string
		)
		if err := rows.Scan(&rowid, &source, &current, &raw); err != nil {
			rows.Close()
			return err
		}
		next, ok := resolve(source, raw)
		if !ok {
			next = ""
		}
		if next != current {
			updates = append(updates, pending{rowid: rowid, target: next})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("graph: begin resolve tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	for _, u := range updates {
		if _, err := tx.Exec(`UPDATE links SET target_id = ? WHERE rowid = ?`, u.target, u.rowid); err != nil {
			return fmt.Errorf("graph: update link target: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) queryLinks(query string, args ...any) ([]models.Link, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: links: %w", err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		var (
			l    models.Link
			kind string
		)
		if err := rows.Scan(&l.SourceID, &l.TargetID, &l.RawTarget, &l.Display, &kind, &l.BlockRef); err != nil {
			return nil, err
		}
		l.Kind = models.LinkKind(kind)
		out = append(out, l)
	}
	return out, rows.Err()
}
