package graph

import (
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// GetAllTags returns every distinct tag name, sorted for stable output.
func (s *Store) GetAllTags() ([]string, error) {
	rows, err := s.conn.Query(`SELECT DISTINCT name FROM note_tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("graph: all tags: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// GetTagInfo returns the computed aggregation for one tag name.
func (s *Store) GetTagInfo(name string) (*models.TagInfo, error) {
	ids, err := s.GetNotesWithTag(name)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.ErrNotFound
	}
	return &models.TagInfo{Name: name, Count: len(ids), NoteIDs: ids}, nil
}

// GetAllTagsWithCounts returns the aggregation for every tag, sorted by
// tag name.
func (s *Store) GetAllTagsWithCounts() ([]models.TagInfo, error) {
	rows, err := s.conn.Query(`SELECT name, note_id FROM note_tags ORDER BY name, note_id`)
	if err != nil {
		return nil, fmt.Errorf("graph: tags with counts: %w", err)
	}
	defer rows.Close()

	out := []models.TagInfo{}
	for rows.Next() {
		var name, noteID string
		if err := rows.Scan(&name, &noteID); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].Name == name {
			out[n-1].Count++
			out[n-1].NoteIDs = append(out[n-1].NoteIDs, noteID)
			continue
		}
		out = append(out, models.TagInfo{Name: name, Count: 1, NoteIDs: []string{noteID}})
	}
	return out, rows.Err()
}

// GetNotesWithTag returns the identities of all notes carrying the tag,
// ordered by identity.
func (s *Store) GetNotesWithTag(name string) ([]string, error) {
	rows, err := s.conn.Query(`SELECT note_id FROM note_tags WHERE name = ? ORDER BY note_id`, name)
	if err != nil {
		return nil, fmt.Errorf("graph: notes with tag: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
