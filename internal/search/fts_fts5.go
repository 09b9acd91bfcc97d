//go:build sqlite_fts5

package search

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
			note_id UNINDEXED,
			title,
			body,
			tags,
			path,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, doc Document) error {
	_, _ = tx.Exec(`DELETE FROM docs_fts WHERE note_id = ?`, doc.NoteID)
	_, err := tx.Exec(`INSERT INTO docs_fts (note_id, title, body, tags, path) VALUES (?, ?, ?, ?, ?)`,
		doc.NoteID, doc.Title, doc.Body, strings.Join(doc.Tags, " "), doc.Path)
	if err != nil {
		return fmt.Errorf("search: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, noteID string) {
	_, _ = tx.Exec(`DELETE FROM docs_fts WHERE note_id = ?`, noteID)
}

// Search ranks matches with BM25 over title, body, tags, and path after
// applying the structural filters. An empty free-text query returns all
// filter matches ordered by recency.
func (s *Store) Search(q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return s.searchRecent(q)
	}

	filters, filterArgs := q.filterSQL()
	args := append([]any{q.Text}, filterArgs...)
	args = append(args, q.limit())

	rows, err := s.conn.Query(`
		SELECT d.note_id, d.title, d.path, -bm25(docs_fts) AS score, d.modified_at,
		       (SELECT group_concat(tag, ' ') FROM doc_tags WHERE note_id = d.note_id)
		FROM docs_fts
		JOIN docs d ON d.note_id = docs_fts.note_id
		WHERE docs_fts MATCH ?`+filters+`
		ORDER BY score DESC, d.modified_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()
	return scanResults(rows, true)
}
