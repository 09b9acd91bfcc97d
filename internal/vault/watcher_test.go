package vault

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) has(kind EventKind, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind && ev.ID == id {
			return true
		}
	}
	return false
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, root string, rec *eventRecorder, reconcile func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	go Watch(ctx, root, logger, rec.handle, reconcile) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_CreateAndModify(t *testing.T) {
	root := t.TempDir()
	rec := &eventRecorder{}
	startWatcher(t, root, rec, nil)

	path := filepath.Join(root, "new.md")
	_ = os.WriteFile(path, []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(EventCreated, "new.md")
	}, "expected created event for new.md")

	_ = os.WriteFile(path, []byte("# New v2"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(EventModified, "new.md")
	}, "expected modified event for new.md")
}

func TestWatcher_IgnoresNonMarkdown(t *testing.T) {
	root := t.TempDir()
	rec := &eventRecorder{}
	startWatcher(t, root, rec, nil)

	_ = os.WriteFile(filepath.Join(root, "image.png"), []byte{0x89}, 0o644)
	_ = os.WriteFile(filepath.Join(root, "note.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(EventCreated, "note.md")
	}, "expected created event for note.md")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ev := range rec.events {
		if ev.ID == "image.png" {
			t.Errorf("unexpected event for non-markdown file: %+v", ev)
		}
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	rec := &eventRecorder{}
	startWatcher(t, root, rec, nil)

	subDir := filepath.Join(root, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(200 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(EventCreated, "subdir/deep.md")
	}, "expected created event for file in new subdir")
}

func TestWatcher_Delete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "del.md")
	_ = os.WriteFile(path, []byte("# Delete Me"), 0o644)

	rec := &eventRecorder{}
	startWatcher(t, root, rec, nil)

	_ = os.Remove(path)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(EventDeleted, "del.md")
	}, "expected deleted event for del.md")
}

func TestWatcher_RenameTriggersReconcile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "old.md")
	_ = os.WriteFile(path, []byte("# Rename"), 0o644)

	rec := &eventRecorder{}
	var mu sync.Mutex
	reconciled := false
	startWatcher(t, root, rec, func() {
		mu.Lock()
		reconciled = true
		mu.Unlock()
	})

	_ = os.Rename(path, filepath.Join(root, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has(EventDeleted, "old.md")
	}, "expected deleted event for old path")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reconciled
	}, "expected reconcile callback after rename")
}
