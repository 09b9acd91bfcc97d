// Package coordinator orchestrates the parser, resolver, and the three
// stores on note lifecycle events and owns the indexing-in-progress
// state.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/resolver"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/tasks"
	"github.com/starford/ansuz/internal/vault"
)

// Summary reports the outcome of a bulk workspace build. Per-note
// failures never abort the build; they are collected here.
type Summary struct {
	Total   int
	Indexed int
	Removed int
	Failed  int
	Errors  map[string]error
}

// Coordinator wires one workspace's stores together. Callers may query
// while indexing is in progress; results are simply partial until the
// build finishes. That is an accepted, documented property, not a bug.
type Coordinator struct {
	vault  vault.Provider
	graph  *graph.Store
	search *search.Store
	tasks  *tasks.Store
	logger *slog.Logger

	// mu serializes the index and remove pipeline. The bulk build holds
	// it across its read-and-index of each note, so a save landing in
	// between can never be clobbered by content read before it.
	mu       sync.Mutex
	indexing atomic.Bool
}

// New creates a coordinator over the given capability and stores.
func New(v vault.Provider, g *graph.Store, s *search.Store, t *tasks.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{vault: v, graph: g, search: s, tasks: t, logger: logger}
}

// Indexing reports a snapshot of the bulk-build state.
func (c *Coordinator) Indexing() bool {
	return c.indexing.Load()
}

// IndexNote runs the full save path for one note: parse, resolve links,
// graph upsert, link re-resolution, search upsert, task diff.
// modifiedAt overrides whatever the frontmatter carries; the save path
// passes the current time so modified always advances on save, and the
// bulk build passes the file mtime. A search failure is isolated: it is
// logged and the graph and task stores stay fully correct.
func (c *Coordinator) IndexNote(id string, raw []byte, modifiedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexNote(id, raw, modifiedAt)
}

func (c *Coordinator) indexNote(id string, raw []byte, modifiedAt time.Time) error {
	res, err := parser.Parse(id, raw)
	if err != nil {
		return err
	}

	note := res.Note
	note.Checksum = checksum.Sum(raw)
	if modifiedAt.IsZero() {
		modifiedAt = time.Now()
	}
	note.ModifiedAt = modifiedAt
	if note.CreatedAt.IsZero() {
		if prev, err := c.graph.GetNote(id); err == nil && !prev.CreatedAt.IsZero() {
			note.CreatedAt = prev.CreatedAt
		} else {
			note.CreatedAt = modifiedAt
		}
	}

	candidates, err := c.candidates(&note)
	if err != nil {
		return err
	}
	links := make([]models.Link, len(res.Links))
	for i, l := range res.Links {
		links[i] = resolveLink(l, candidates)
	}

	if err := c.graph.UpsertNote(note, res.Blocks, links); err != nil {
		return err
	}

	// A link elsewhere that was unresolved may now point at this note
	// (and stale resolutions may shift); re-run resolution lazily over
	// the whole relation rather than assuming any order of indexing.
	if err := c.reresolve(candidates); err != nil {
		c.logger.Warn("coordinator: link re-resolution failed",
			slog.String("note", id), slog.String("error", err.Error()))
	}

	if err := c.search.IndexNote(searchDoc(note, res.Body)); err != nil {
		c.logger.Warn("coordinator: search index failed",
			slog.String("note", id), slog.String("error", err.Error()))
	}

	return c.tasks.IndexNote(id, id, res.Tasks, time.Now())
}

// RemoveNote deletes the note from all three stores. Each store is
// independently consistent, so ordering does not matter.
func (c *Coordinator) RemoveNote(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeNote(id)
}

func (c *Coordinator) removeNote(id string) error {
	var errs []error
	if err := c.graph.DeleteNote(id); err != nil {
		errs = append(errs, err)
	}
	if err := c.search.RemoveNote(id); err != nil {
		c.logger.Warn("coordinator: search remove failed",
			slog.String("note", id), slog.String("error", err.Error()))
	}
	if err := c.tasks.RemoveNote(id); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	candidates, err := c.candidates(nil)
	if err != nil {
		return err
	}
	return c.reresolve(candidates)
}

// BulkIndex purges stale store entries, then lists all notes and runs
// the save path for each. Per-note failures are collected and the build
// continues. There is no cancellation: closing the workspace mid-build
// lets the build finish against stores that are about to close; the
// indexing flag is reset regardless.
func (c *Coordinator) BulkIndex(_ context.Context) *Summary {
	c.indexing.Store(true)
	defer c.indexing.Store(false)

	sum := &Summary{Errors: make(map[string]error)}

	metas, err := c.vault.List("")
	if err != nil {
		c.logger.Error("coordinator: list notes failed", slog.String("error", err.Error()))
		sum.Errors[""] = err
		sum.Failed++
		return sum
	}
	sum.Total = len(metas)

	// Notes deleted while the workspace was closed leave stale rows
	// behind; purge anything indexed that is no longer on disk.
	if known, err := c.graph.Checksums(); err == nil {
		disk := make(map[string]struct{}, len(metas))
		for _, m := range metas {
			disk[m.ID] = struct{}{}
		}
		for id := range known {
			if _, ok := disk[id]; ok {
				continue
			}
			if err := c.RemoveNote(id); err != nil {
				c.logger.Warn("bulk: stale remove failed", slog.String("note", id), slog.String("error", err.Error()))
				continue
			}
			sum.Removed++
		}
	}

	for _, m := range metas {
		if err := c.indexFromDisk(m.ID, m.ModifiedAt); err != nil {
			c.logger.Warn("bulk: index failed", slog.String("note", m.ID), slog.String("error", err.Error()))
			sum.Errors[m.ID] = err
			sum.Failed++
			continue
		}
		sum.Indexed++
	}

	c.logger.Info("bulk: workspace index complete",
		slog.Int("total", sum.Total),
		slog.Int("indexed", sum.Indexed),
		slog.Int("removed", sum.Removed),
		slog.Int("failed", sum.Failed))
	return sum
}

// indexFromDisk reads and indexes one note while holding the pipeline
// lock, so the content indexed is what disk held at that instant. Notes
// whose stored checksum already matches disk are skipped; a save that
// already landed is never replayed with an older timestamp.
func (c *Coordinator) indexFromDisk(id string, modifiedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.vault.Read(id)
	if err != nil {
		return err
	}
	if prev, err := c.graph.GetNote(id); err == nil && prev.Checksum == checksum.Sum(raw) {
		return nil
	}
	return c.indexNote(id, raw, modifiedAt)
}

// Reconcile diffs the disk against the graph store: stale entries are
// removed and new or changed files indexed. The watcher schedules this
// after rename bursts.
func (c *Coordinator) Reconcile() {
	known, err := c.graph.Checksums()
	if err != nil {
		c.logger.Warn("reconcile: checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := c.vault.List("")
	if err != nil {
		c.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.ID] = m.Checksum
	}

	for id := range known {
		if _, ok := disk[id]; ok {
			continue
		}
		if err := c.RemoveNote(id); err != nil {
			c.logger.Warn("reconcile: remove failed", slog.String("note", id), slog.String("error", err.Error()))
		}
	}

	for _, m := range metas {
		if known[m.ID] == m.Checksum {
			continue
		}
		if err := c.indexFromDisk(m.ID, m.ModifiedAt); err != nil {
			c.logger.Warn("reconcile: index failed", slog.String("note", m.ID), slog.String("error", err.Error()))
		}
	}
}

// Close flushes and releases every store handle. Required before another
// workspace may be opened against the same paths.
func (c *Coordinator) Close() error {
	return errors.Join(c.graph.Close(), c.search.Close(), c.tasks.Close())
}

// candidates builds the resolver input from indexed notes, including the
// not-yet-stored note being indexed, if any.
func (c *Coordinator) candidates(pending *models.Note) ([]resolver.Candidate, error) {
	notes, err := c.graph.ListNotes()
	if err != nil {
		return nil, err
	}
	out := make([]resolver.Candidate, 0, len(notes)+1)
	seen := false
	for _, n := range notes {
		if pending != nil && n.ID == pending.ID {
			out = append(out, resolver.Candidate{ID: pending.ID, Title: pending.Title, Aliases: pending.Aliases})
			seen = true
			continue
		}
		out = append(out, resolver.Candidate{ID: n.ID, Title: n.Title, Aliases: n.Aliases})
	}
	if pending != nil && !seen {
		out = append(out, resolver.Candidate{ID: pending.ID, Title: pending.Title, Aliases: pending.Aliases})
	}
	return out, nil
}

func (c *Coordinator) reresolve(candidates []resolver.Candidate) error {
	return c.graph.ResolveLinks(func(sourceID, raw string) (string, bool) {
		if raw == "" {
			// Same-note block reference.
			return sourceID, true
		}
		return resolver.Resolve(raw, candidates)
	})
}

func resolveLink(l models.Link, candidates []resolver.Candidate) models.Link {
	if l.RawTarget == "" {
		l.TargetID = l.SourceID
		return l
	}
	if id, ok := resolver.Resolve(l.RawTarget, candidates); ok {
		l.TargetID = id
	}
	return l
}

func searchDoc(note models.Note, body string) search.Document {
	return search.Document{
		NoteID:     note.ID,
		Title:      note.Title,
		Path:       note.ID,
		Body:       body,
		Tags:       note.Tags,
		ModifiedAt: note.ModifiedAt,
	}
}
