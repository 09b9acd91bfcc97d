// Package service exposes the workspace-level operations consumed by the
// HTTP API and the MCP server. It owns workspace lifecycle: stores live
// next to the notes under <root>/.ansuz and are opened and closed as a
// unit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/coordinator"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/tasks"
	"github.com/starford/ansuz/internal/vault"
)

// NoteDetail is the full representation of a note. ParseError is set
// when the on-disk frontmatter does not parse: the note is then served
// raw, absent from the indexes, but still editable.
type NoteDetail struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Content     string                  `json:"content"`
	Checksum    string                  `json:"checksum"`
	Type        string                  `json:"type,omitempty"`
	Aliases     []string                `json:"aliases"`
	Tags        []string                `json:"tags"`
	Frontmatter map[string]models.Value `json:"frontmatter,omitempty"`
	Backlinks   []models.Link           `json:"backlinks"`
	ParseError  string                  `json:"parse_error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	ModifiedAt  time.Time               `json:"modified_at"`
}

// workspace bundles everything that lives and dies with one open root.
type workspace struct {
	root  string
	vault *vault.FS
	graph *graph.Store
	tasks *tasks.Store
	coord *coordinator.Coordinator
}

// Service coordinates the vault and the index stores behind a single
// open workspace.
type Service struct {
	logger  *slog.Logger
	dataDir string

	mu sync.RWMutex
	ws *workspace

	search *search.Store
}

// NewService creates a service with no workspace open. dataDir overrides
// where index databases are kept; empty means <root>/.ansuz.
func NewService(logger *slog.Logger, dataDir string) *Service {
	return &Service{logger: logger, dataDir: dataDir}
}

// OpenWorkspace opens the given root, brings up the stores, and kicks
// off a background build of the whole workspace. It returns as soon as
// the stores are ready; queries served before the build finishes see
// partial results.
func (s *Service) OpenWorkspace(_ context.Context, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws != nil {
		return fmt.Errorf("service: workspace %s: %w", s.ws.root, apperr.ErrAlreadyExists)
	}

	dir := s.dataDir
	if dir == "" {
		dir = filepath.Join(root, ".ansuz")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("service: create data dir: %w", err)
	}

	fs, err := vault.NewFS(root)
	if err != nil {
		return err
	}

	g, err := graph.Open(filepath.Join(dir, "graph.db"))
	if err != nil {
		return err
	}
	idx, err := search.Open(filepath.Join(dir, "search.db"))
	if err != nil {
		g.Close() //nolint:errcheck
		return err
	}
	t, err := tasks.Open(filepath.Join(dir, "tasks.db"))
	if err != nil {
		g.Close()   //nolint:errcheck
		idx.Close() //nolint:errcheck
		return err
	}

	coord := coordinator.New(fs, g, idx, t, s.logger)
	s.ws = &workspace{root: root, vault: fs, graph: g, tasks: t, coord: coord}
	s.search = idx

	go coord.BulkIndex(context.Background())
	return nil
}

// CloseWorkspace closes every store. In-flight bulk indexing is not
// cancelled; late writes after close fail and are logged by the build.
func (s *Service) CloseWorkspace() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws == nil {
		return apperr.ErrWorkspaceNotOpen
	}
	err := s.ws.coord.Close()
	s.ws = nil
	s.search = nil
	return err
}

// Root returns the open workspace root, or empty when none is open.
func (s *Service) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ws == nil {
		return ""
	}
	return s.ws.root
}

// Indexing reports whether a bulk build is in progress.
func (s *Service) Indexing() bool {
	ws, err := s.workspace()
	if err != nil {
		return false
	}
	return ws.coord.Indexing()
}

// Reconcile diffs disk state against the stores. Exposed for the file
// watcher.
func (s *Service) Reconcile() {
	ws, err := s.workspace()
	if err != nil {
		return
	}
	ws.coord.Reconcile()
}

// IndexFile runs the index pipeline for one on-disk note. Exposed for
// the file watcher; API writes go through SaveNote instead.
func (s *Service) IndexFile(id string) error {
	ws, err := s.workspace()
	if err != nil {
		return err
	}
	raw, err := ws.vault.Read(id)
	if err != nil {
		return err
	}
	mod := time.Now()
	if fi, err := os.Stat(filepath.Join(ws.root, filepath.FromSlash(id))); err == nil {
		mod = fi.ModTime()
	}
	if err := ws.coord.IndexNote(id, raw, mod); err != nil {
		// An external edit that broke the frontmatter takes the note out
		// of the indexes; the file itself stays untouched.
		if apperr.IsInvalidFrontmatter(err) {
			if rerr := ws.coord.RemoveNote(id); rerr != nil {
				s.logger.Warn("service: deindex after bad frontmatter failed",
					slog.String("note", id), slog.String("error", rerr.Error()))
			}
		}
		return err
	}
	return nil
}

// RemoveFile drops one note from every store. Exposed for the file
// watcher.
func (s *Service) RemoveFile(id string) error {
	ws, err := s.workspace()
	if err != nil {
		return err
	}
	return ws.coord.RemoveNote(id)
}

// ListNotes returns a summary row per indexed note, ordered by path.
func (s *Service) ListNotes(_ context.Context) ([]models.NoteSummary, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.graph.ListNotes()
}

// GetNote reads a note from the vault, parses it, and enriches it with
// backlinks from the graph store.
func (s *Service) GetNote(_ context.Context, id string) (*NoteDetail, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	raw, err := ws.vault.Read(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(ws, id, raw)
}

// CreateNote writes a new note and indexes it. An existing note at the
// same path is an error; SaveNote is the overwrite path.
func (s *Service) CreateNote(_ context.Context, id string, content []byte) (*NoteDetail, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	if _, err := ws.vault.Read(id); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	return s.writeAndIndex(ws, id, content)
}

// SaveNote writes updated content with optimistic concurrency: a
// non-empty ifMatch that differs from the current on-disk checksum is a
// conflict. The stored modification time is always advanced to now.
func (s *Service) SaveNote(_ context.Context, id string, content []byte, ifMatch string) (*NoteDetail, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	existing, err := ws.vault.Read(id)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	return s.writeAndIndex(ws, id, content)
}

// DeleteNote removes a note from the vault and all stores. Inbound link
// rows to it are dropped; the sources still carry the raw targets and
// re-resolve if the note comes back.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	ws, err := s.workspace()
	if err != nil {
		return err
	}
	if err := ws.vault.Delete(id); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return ws.coord.RemoveNote(id)
}

// GetBacklinks returns every resolved link pointing at the note.
func (s *Service) GetBacklinks(_ context.Context, id string) ([]models.Link, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.graph.GetBacklinks(id)
}

// GetGraph returns the full node and edge set.
func (s *Service) GetGraph(_ context.Context) (*models.GraphSnapshot, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.graph.GetGraph()
}

// Search runs a ranked full-text query with optional tag, path, and
// date filters. An empty query text lists recently modified notes.
func (s *Service) Search(_ context.Context, q search.Query) ([]search.Result, error) {
	s.mu.RLock()
	idx := s.search
	s.mu.RUnlock()
	if idx == nil {
		return nil, apperr.ErrWorkspaceNotOpen
	}
	return idx.Search(q)
}

// GetAllTags returns every distinct tag in the workspace.
func (s *Service) GetAllTags(_ context.Context) ([]string, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.graph.GetAllTags()
}

// GetAllTagsWithCounts returns every tag with its note count.
func (s *Service) GetAllTagsWithCounts(_ context.Context) ([]models.TagInfo, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.graph.GetAllTagsWithCounts()
}

// GetTagInfo returns one tag with the notes carrying it.
func (s *Service) GetTagInfo(_ context.Context, name string) (*models.TagInfo, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.graph.GetTagInfo(name)
}

// GetNotesWithTag returns the IDs of notes carrying the tag.
func (s *Service) GetNotesWithTag(_ context.Context, name string) ([]string, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.graph.GetNotesWithTag(name)
}

// GetAllTasks returns tasks across the workspace with filters and
// aggregate counts over the filtered set.
func (s *Service) GetAllTasks(_ context.Context, f tasks.Filter) (*tasks.TaskInfo, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.tasks.GetAllTasks(f)
}

// GetTasksForNote returns the tasks of one note in line order.
func (s *Service) GetTasksForNote(_ context.Context, id string) ([]models.Task, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	return ws.tasks.GetTasksForNote(id)
}

// ToggleTaskInNote flips the checkbox on the given 1-based file line and
// runs the full save path, so completion timestamps and identity follow
// the usual rules.
func (s *Service) ToggleTaskInNote(_ context.Context, id string, line int) (*NoteDetail, error) {
	ws, err := s.workspace()
	if err != nil {
		return nil, err
	}
	raw, err := ws.vault.Read(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	updated, _, err := parser.ToggleTask(raw, line)
	if err != nil {
		return nil, err
	}
	return s.writeAndIndex(ws, id, updated)
}

func (s *Service) workspace() (*workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ws == nil {
		return nil, apperr.ErrWorkspaceNotOpen
	}
	return s.ws, nil
}

func (s *Service) writeAndIndex(ws *workspace, id string, content []byte) (*NoteDetail, error) {
	if err := ws.vault.Write(id, content); err != nil {
		return nil, err
	}
	if err := ws.coord.IndexNote(id, content, time.Now()); err != nil {
		if !apperr.IsInvalidFrontmatter(err) {
			return nil, err
		}
		// The write already landed; drop stale index entries so the note
		// is excluded until its frontmatter parses again.
		if rerr := ws.coord.RemoveNote(id); rerr != nil {
			s.logger.Warn("service: deindex after bad frontmatter failed",
				slog.String("note", id), slog.String("error", rerr.Error()))
		}
	}
	return s.buildNoteDetail(ws, id, content)
}

// buildNoteDetail constructs a NoteDetail from raw content without
// re-reading the file. Malformed frontmatter degrades the result rather
// than hiding the note: the raw content is served with the parse
// failure surfaced so the note can be fixed through the normal edit
// path.
func (s *Service) buildNoteDetail(ws *workspace, id string, raw []byte) (*NoteDetail, error) {
	bl, err := ws.graph.GetBacklinks(id)
	if err != nil {
		return nil, err
	}

	detail := &NoteDetail{
		ID:        id,
		Content:   string(raw),
		Checksum:  checksum.Sum(raw),
		Aliases:   []string{},
		Tags:      []string{},
		Backlinks: nonNilSlice(bl),
	}

	res, perr := parser.Parse(id, raw)
	if perr != nil {
		if !apperr.IsInvalidFrontmatter(perr) {
			return nil, perr
		}
		s.logger.Warn("service: invalid frontmatter, serving raw",
			slog.String("note", id), slog.String("error", perr.Error()))
		detail.Title = strings.TrimSuffix(path.Base(id), ".md")
		detail.ParseError = perr.Error()
		return detail, nil
	}

	detail.Title = res.Note.Title
	detail.Type = res.Note.Type
	detail.Aliases = nonNilSlice(res.Note.Aliases)
	detail.Tags = nonNilSlice(res.Note.Tags)
	detail.Frontmatter = res.Note.Frontmatter
	detail.CreatedAt = res.Note.CreatedAt
	detail.ModifiedAt = res.Note.ModifiedAt
	if stored, err := ws.graph.GetNote(id); err == nil {
		if detail.CreatedAt.IsZero() {
			detail.CreatedAt = stored.CreatedAt
		}
		// The graph row owns the modification time: the save path always
		// advances it past whatever the frontmatter claims.
		detail.ModifiedAt = stored.ModifiedAt
	}
	return detail, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
