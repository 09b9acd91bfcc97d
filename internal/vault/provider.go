// Package vault is the workspace file-system capability: it lists and
// reads raw note bytes and reports change notifications. The engine never
// touches the disk except through a Provider.
package vault

import "time"

// NoteMeta identifies one on-disk note. ID is the slash-separated path
// relative to the workspace root and doubles as the note identity.
type NoteMeta struct {
	ID         string
	Checksum   string
	ModifiedAt time.Time
}

// Provider is the interface for workspace file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to the root).
	List(dir string) ([]NoteMeta, error)
	// Read returns the raw bytes of the note.
	Read(id string) ([]byte, error)
	// Write atomically persists content for the note.
	Write(id string, content []byte) error
	// Delete removes the note file.
	Delete(id string) error
	// Move renames a note; the note's identity changes with it.
	Move(oldID, newID string) error
}
