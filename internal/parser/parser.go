// Package parser turns one note's raw Markdown into frontmatter, ordered
// blocks, wikilinks, tags, and checkbox tasks. Parsing is a pure function
// over the input bytes; all persistence happens elsewhere.
package parser

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Result holds everything extracted from a single note.
type Result struct {
	Note   models.Note
	Blocks []models.Block
	Links  []models.Link
	Tasks  []models.Task
	Body   string
}

// Parse extracts frontmatter, blocks, links, tags, and tasks from raw
// Markdown bytes. noteID keys every derived record and seeds generated
// block and task identities.
func Parse(noteID string, raw []byte) (*Result, error) {
	fm, body, fmLines, err := splitFrontmatter(noteID, raw)
	if err != nil {
		return nil, err
	}

	note := models.Note{
		ID:      noteID,
		Content: string(raw),
	}
	extractStandardFields(&note, fm)
	note.Frontmatter = fm

	if note.Title == "" {
		note.Title = firstHeading(body)
	}
	if note.Title == "" {
		note.Title = strings.TrimSuffix(path.Base(noteID), path.Ext(noteID))
	}

	blocks := scanBlocks(noteID, body)
	links := extractLinks(noteID, body)
	tags := extractInlineTags(body)
	tasks := extractTasks(noteID, body, fmLines)

	// Frontmatter tags and inline tags merge, deduplicated by exact string.
	seen := make(map[string]struct{}, len(note.Tags)+len(tags))
	merged := make([]string, 0, len(note.Tags)+len(tags))
	for _, t := range append(note.Tags, tags...) {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	note.Tags = merged

	return &Result{
		Note:   note,
		Blocks: blocks,
		Links:  links,
		Tasks:  tasks,
		Body:   body,
	}, nil
}

// splitFrontmatter separates the YAML frontmatter region (between leading
// --- delimiter lines) from the body. Malformed frontmatter is a hard
// error: silently dropping metadata is worse than refusing to index.
// Blank lines after the closing delimiter stay in the body.
func splitFrontmatter(noteID string, raw []byte) (map[string]models.Value, string, int, error) {
	content := strings.ReplaceAll(string(raw), "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t") != "---" {
		return nil, content, 0, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t") == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, "", 0, &apperr.FrontmatterError{NoteID: noteID, Err: fmt.Errorf("missing closing delimiter")}
	}

	region := strings.Join(lines[1:end], "\n")
	var fm map[string]models.Value
	if err := yaml.Unmarshal([]byte(region), &fm); err != nil {
		return nil, "", 0, &apperr.FrontmatterError{NoteID: noteID, Err: err}
	}

	body := strings.Join(lines[end+1:], "\n")
	return fm, body, end + 1, nil
}

// extractStandardFields pulls the well-known keys into typed fields and
// removes them from the generic map.
func extractStandardFields(note *models.Note, fm map[string]models.Value) {
	if fm == nil {
		return
	}
	if v, ok := fm["title"]; ok {
		if s, isStr := v.AsString(); isStr {
			note.Title = s
		}
		delete(fm, "title")
	}
	if v, ok := fm["aliases"]; ok {
		note.Aliases = v.StringList()
		delete(fm, "aliases")
	}
	if v, ok := fm["type"]; ok {
		if s, isStr := v.AsString(); isStr {
			note.Type = s
		}
		delete(fm, "type")
	}
	if v, ok := fm["tags"]; ok {
		note.Tags = v.StringList()
		delete(fm, "tags")
	}
	if v, ok := fm["created"]; ok {
		note.CreatedAt = parseDate(v)
		delete(fm, "created")
	}
	if v, ok := fm["modified"]; ok {
		// Parsed for round-trip fidelity only: the save path always
		// overwrites modified with the current time.
		note.ModifiedAt = parseDate(v)
		delete(fm, "modified")
	}
}

// parseDate accepts RFC3339, ISO8601, plain dates, and most formats in
// between. A zero time means the value was absent or unparseable.
func parseDate(v models.Value) time.Time {
	s, ok := v.AsString()
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(stripBlockID(trimmed[2:]))
		}
	}
	return ""
}
