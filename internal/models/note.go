// Package models defines the domain types for Ansuz.
package models

import "time"

// Note is a Markdown file indexed by the engine. The identity is the
// slash-separated path relative to the workspace root; renaming a note
// changes its identity.
type Note struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Content     string           `json:"content"`
	Frontmatter map[string]Value `json:"frontmatter,omitempty"`
	Aliases     []string         `json:"aliases,omitempty"`
	Type        string           `json:"type,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Checksum    string           `json:"checksum"`
	CreatedAt   time.Time        `json:"created_at"`
	ModifiedAt  time.Time        `json:"modified_at"`
}

// BlockKind classifies an outline-granularity content unit.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockHeading   BlockKind = "heading"
	BlockList      BlockKind = "list"
	BlockCode      BlockKind = "code"
	BlockQuote     BlockKind = "quote"
)

// Block is one content unit within a note. The identity is the explicit
// `^id` suffix when present, otherwise a digest of note identity and
// position that stays stable while the position is unchanged.
type Block struct {
	ID       string    `json:"id"`
	NoteID   string    `json:"note_id"`
	Kind     BlockKind `json:"kind"`
	Content  string    `json:"content"`
	Level    int       `json:"level"`
	Position int       `json:"position"`
	Explicit bool      `json:"explicit"`
}

// LinkKind classifies how a link was written in the source note.
type LinkKind string

const (
	LinkWiki     LinkKind = "wiki"
	LinkMarkdown LinkKind = "markdown"
	LinkEmbed    LinkKind = "embed"
	LinkBlockRef LinkKind = "blockref"
)

// Link is a directed edge derived from a note body. TargetID is empty
// until the resolver matches RawTarget against a known note; unresolved
// links keep the literal target for the broken-link affordance. Links are
// never hand-edited and are fully replaced on every re-index of their
// source note.
type Link struct {
	SourceID  string   `json:"source_id"`
	TargetID  string   `json:"target_id,omitempty"`
	RawTarget string   `json:"raw_target"`
	Display   string   `json:"display,omitempty"`
	Kind      LinkKind `json:"kind"`
	BlockRef  string   `json:"block_ref,omitempty"`
}

// Resolved reports whether the link points at a known note.
func (l Link) Resolved() bool { return l.TargetID != "" }

// Task is a checkbox line tracked across edits. Explicit `^id` suffixes
// give a task stable identity; generated identities are derived from note,
// line, and text and are therefore lost when the line moves or the text is
// rewritten. That instability is a documented property of the product, not
// something the index compensates for.
type Task struct {
	ID          string     `json:"id"`
	NoteID      string     `json:"note_id"`
	NotePath    string     `json:"note_path"`
	Line        int        `json:"line"`
	Content     string     `json:"content"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TagInfo is the computed aggregation of one tag name across notes.
type TagInfo struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	NoteIDs []string `json:"note_ids"`
}

// GraphSnapshot is the derived read-only view of the link graph. Nodes are
// all indexed note identities, not just those with edges.
type GraphSnapshot struct {
	Nodes []string `json:"nodes"`
	Edges []Link   `json:"edges"`
}

// NoteSummary is a lightweight representation returned by list operations.
type NoteSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Aliases    []string  `json:"aliases,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Checksum   string    `json:"checksum"`
	ModifiedAt time.Time `json:"modified_at"`
}
