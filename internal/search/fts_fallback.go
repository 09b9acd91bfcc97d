//go:build !sqlite_fts5

package search

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search uses a LIKE fallback over the docs
	// table, which already stores title, body, and path.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ Document) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based match (fallback when FTS5 is not compiled
// in). Results are ordered by recency; BM25 ranking requires the
// sqlite_fts5 build tag.
func (s *Store) Search(q Query) ([]Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return s.searchRecent(q)
	}

	filters, filterArgs := q.filterSQL()
	like := "%" + text + "%"
	args := append([]any{like, like, like}, filterArgs...)
	args = append(args, q.limit())

	rows, err := s.conn.Query(`
		SELECT d.note_id, d.title, d.path, d.modified_at,
		       (SELECT group_concat(tag, ' ') FROM doc_tags WHERE note_id = d.note_id)
		FROM docs d
		WHERE (d.title LIKE ? OR d.body LIKE ? OR d.path LIKE ?)`+filters+`
		ORDER BY d.modified_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()
	return scanResults(rows, false)
}
