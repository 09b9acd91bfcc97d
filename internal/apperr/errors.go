// Package apperr defines the error taxonomy shared by all Ansuz components.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned on a note, tag, or task lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on duplicate note creation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict is returned when an If-Match checksum no longer matches the stored note.
	ErrConflict = errors.New("conflict")
	// ErrInvalidPath is returned for paths that are absolute or escape the workspace root.
	ErrInvalidPath = errors.New("invalid path")
	// ErrWorkspaceNotOpen is returned when an operation is attempted with no active workspace.
	ErrWorkspaceNotOpen = errors.New("workspace not open")
)

// FrontmatterError reports malformed frontmatter. Indexing of the affected
// note is aborted; the note stays on disk and remains editable.
type FrontmatterError struct {
	NoteID string
	Err    error
}

func (e *FrontmatterError) Error() string {
	return fmt.Sprintf("invalid frontmatter in %s: %v", e.NoteID, e.Err)
}

func (e *FrontmatterError) Unwrap() error { return e.Err }

// IsInvalidFrontmatter reports whether err is a FrontmatterError.
func IsInvalidFrontmatter(err error) bool {
	var fe *FrontmatterError
	return errors.As(err, &fe)
}

// IndexWriteError reports a store-level transactional failure. The failed
// write was rolled back in full; no partial state was applied.
type IndexWriteError struct {
	Store  string
	NoteID string
	Err    error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("%s: index write for %s failed: %v", e.Store, e.NoteID, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }
