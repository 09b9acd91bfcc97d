// Package testutil provides shared test helpers for setting up workspaces and stores.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/tasks"
	"github.com/starford/ansuz/internal/vault"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// GraphStore creates a temporary graph database that is automatically cleaned up.
func GraphStore(t *testing.T) *graph.Store {
	t.Helper()
	s, err := graph.Open(tempDB(t, "ansuz-graph-test-*.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SearchStore creates a temporary search database that is automatically cleaned up.
func SearchStore(t *testing.T) *search.Store {
	t.Helper()
	s, err := search.Open(tempDB(t, "ansuz-search-test-*.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TaskStore creates a temporary task database that is automatically cleaned up.
func TaskStore(t *testing.T) *tasks.Store {
	t.Helper()
	s, err := tasks.Open(tempDB(t, "ansuz-tasks-test-*.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Workspace creates a temporary workspace directory with a vault.FS over it.
func Workspace(t *testing.T) (string, *vault.FS) {
	t.Helper()
	root := t.TempDir()
	fs, err := vault.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, fs
}

// WriteNote drops a raw note file into the workspace, creating parent
// directories as needed.
func WriteNote(t *testing.T, root, id, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(id))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func tempDB(t *testing.T, pattern string) string {
	t.Helper()
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}
