package vault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventKind classifies a change notification.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
)

// Event is one change notification for a note.
type Event struct {
	Kind EventKind
	ID   string
}

// Handler consumes change notifications.
type Handler func(Event)

// Watch starts an fsnotify watcher on the workspace root and delivers
// change notifications until ctx is cancelled. New directories created at
// runtime are added to the watch list. Rename events fire on the old path
// only, so after deleting the stale entry a debounced call to reconcile
// lets the subscriber diff disk against its stores and catch the new
// path.
func Watch(ctx context.Context, root string, logger *slog.Logger, handle Handler, reconcile func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcile == nil {
			return
		}
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					// Notes already inside the new directory need events too.
					emitDirNotes(root, absPath, handle)
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			id := filepath.ToSlash(rel)

			switch {
			case ev.Op&fsnotify.Create != 0:
				handle(Event{Kind: EventCreated, ID: id})
			case ev.Op&fsnotify.Write != 0:
				handle(Event{Kind: EventModified, ID: id})
			case ev.Op&fsnotify.Remove != 0:
				handle(Event{Kind: EventDeleted, ID: id})
			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path; the new path arrives as a
				// separate Create if it stays inside a watched dir.
				handle(Event{Kind: EventDeleted, ID: id})
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func emitDirNotes(root, dirPath string, handle Handler) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		handle(Event{Kind: EventCreated, ID: filepath.ToSlash(rel)})
		return nil
	})
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
