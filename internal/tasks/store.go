// Package tasks derives task records from parsed checkbox blocks and
// tracks creation and completion timestamps across edits. Re-indexing a
// note diffs its tasks by identity, not by line number, so reordering
// lines does not fabricate history.
package tasks

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT NOT NULL,
	note_id      TEXT NOT NULL,
	note_path    TEXT NOT NULL DEFAULT '',
	line         INTEGER NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	completed    INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	completed_at DATETIME,
	PRIMARY KEY (note_id, id)
);

CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
`

// Filter narrows GetAllTasks output; all set fields are ANDed.
type Filter struct {
	Completed       *bool
	NoteID          string
	CreatedAfter    time.Time
	CreatedBefore   time.Time
	CompletedAfter  time.Time
	CompletedBefore time.Time
}

// TaskInfo is the aggregate answer for a task listing.
type TaskInfo struct {
	Tasks          []models.Task `json:"tasks"`
	TotalCount     int           `json:"total_count"`
	CompletedCount int           `json:"completed_count"`
	PendingCount   int           `json:"pending_count"`
}

// Store wraps the workspace task database with a single-writer mutex.
type Store struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Open opens (or creates) the task database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("tasks: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tasks: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tasks: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close flushes and releases the database handle.
func (s *Store) Close() error {
	return s.conn.Close()
}

// IndexNote diffs the newly parsed tasks against stored state by task
// identity. New identities are inserted with createdAt = now; a completed
// flag flipping false to true stamps completedAt, flipping back clears
// it; identities no longer present are deleted.
func (s *Store) IndexNote(noteID, notePath string, parsed []models.Task, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	type prior struct {
		completed   bool
		completedAt sql.NullTime
	}
	existing := make(map[string]prior)
	rows, err := tx.Query(`SELECT id, completed, completed_at FROM tasks WHERE note_id = ?`, noteID)
	if err != nil {
		return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
	}
	for rows.Next() {
		var (
			id string
			p  prior
		)
		if err := rows.Scan(&id, &p.completed, &p.completedAt); err != nil {
			rows.Close()
			return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
		}
		existing[id] = p
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
	}
	rows.Close()

	seen := make(map[string]struct{}, len(parsed))
	for _, t := range parsed {
		seen[t.ID] = struct{}{}

		prev, ok := existing[t.ID]
		if !ok {
			var completedAt any
			if t.Completed {
				completedAt = now
			}
			_, err := tx.Exec(`
				INSERT INTO tasks (id, note_id, note_path, line, content, completed, created_at, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, t.ID, noteID, notePath, t.Line, t.Content, t.Completed, now, completedAt)
			if err != nil {
				return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
			}
			continue
		}

		var completedAt any
		switch {
		case t.Completed && !prev.completed:
			completedAt = now
		case t.Completed && prev.completed && prev.completedAt.Valid:
			completedAt = prev.completedAt.Time
		}
		_, err := tx.Exec(`
			UPDATE tasks SET note_path = ?, line = ?, content = ?, completed = ?, completed_at = ?
			WHERE note_id = ? AND id = ?
		`, notePath, t.Line, t.Content, t.Completed, completedAt, noteID, t.ID)
		if err != nil {
			return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
		}
	}

	for id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM tasks WHERE note_id = ? AND id = ?`, noteID, id); err != nil {
			return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
	}
	return nil
}

// RemoveNote deletes all tasks for the note.
func (s *Store) RemoveNote(noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Exec(`DELETE FROM tasks WHERE note_id = ?`, noteID); err != nil {
		return &apperr.IndexWriteError{Store: "tasks", NoteID: noteID, Err: err}
	}
	return nil
}

// GetAllTasks returns the filtered tasks with aggregate counts computed
// over the filtered set.
func (s *Store) GetAllTasks(f Filter) (*TaskInfo, error) {
	var (
		where []string
		args  []any
	)
	if f.Completed != nil {
		where = append(where, `completed = ?`)
		args = append(args, *f.Completed)
	}
	if f.NoteID != "" {
		where = append(where, `note_id = ?`)
		args = append(args, f.NoteID)
	}
	if !f.CreatedAfter.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, f.CreatedAfter)
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, `created_at <= ?`)
		args = append(args, f.CreatedBefore)
	}
	if !f.CompletedAfter.IsZero() {
		where = append(where, `completed_at IS NOT NULL AND completed_at >= ?`)
		args = append(args, f.CompletedAfter)
	}
	if !f.CompletedBefore.IsZero() {
		where = append(where, `completed_at IS NOT NULL AND completed_at <= ?`)
		args = append(args, f.CompletedBefore)
	}

	query := `SELECT id, note_id, note_path, line, content, completed, created_at, completed_at FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY note_id, line`

	list, err := s.queryTasks(query, args...)
	if err != nil {
		return nil, err
	}

	info := &TaskInfo{Tasks: list, TotalCount: len(list)}
	for _, t := range list {
		if t.Completed {
			info.CompletedCount++
		} else {
			info.PendingCount++
		}
	}
	return info, nil
}

// GetTasksForNote returns the note's tasks in line order.
func (s *Store) GetTasksForNote(noteID string) ([]models.Task, error) {
	return s.queryTasks(`
		SELECT id, note_id, note_path, line, content, completed, created_at, completed_at
		FROM tasks WHERE note_id = ? ORDER BY line
	`, noteID)
}

func (s *Store) queryTasks(query string, args ...any) ([]models.Task, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("tasks: query: %w", err)
	}
	defer rows.Close()

	out := []models.Task{}
	for rows.Next() {
		var (
			t           models.Task
			completedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.NoteID, &t.NotePath, &t.Line, &t.Content, &t.Completed, &t.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			at := completedAt.Time
			t.CompletedAt = &at
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
