package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/tasks"
	"github.com/starford/ansuz/internal/testutil"
)

func testService(t *testing.T) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	svc := NewService(testutil.Logger(), t.TempDir())
	if err := svc.OpenWorkspace(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if svc.Root() != "" {
			svc.CloseWorkspace() //nolint:errcheck
		}
	})
	waitForBulk(t, svc)
	return svc, root
}

func waitForBulk(t *testing.T, svc *Service) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for svc.Indexing() {
		if time.Now().After(deadline) {
			t.Fatal("bulk index did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkspaceNotOpen(t *testing.T) {
	svc := NewService(testutil.Logger(), "")
	if _, err := svc.ListNotes(context.Background()); !errors.Is(err, apperr.ErrWorkspaceNotOpen) {
		t.Errorf("err = %v, want ErrWorkspaceNotOpen", err)
	}
	if _, err := svc.Search(context.Background(), search.Query{}); !errors.Is(err, apperr.ErrWorkspaceNotOpen) {
		t.Errorf("search err = %v", err)
	}
	if err := svc.CloseWorkspace(); !errors.Is(err, apperr.ErrWorkspaceNotOpen) {
		t.Errorf("close err = %v", err)
	}
}

func TestOpenWorkspace_Twice(t *testing.T) {
	svc, _ := testService(t)
	if err := svc.OpenWorkspace(context.Background(), t.TempDir()); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateGetDelete(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	note, err := svc.CreateNote(ctx, "a.md", []byte("---\ntitle: A\ntags: [go]\n---\nbody\n"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if note.Title != "A" || len(note.Tags) != 1 {
		t.Errorf("note = %+v", note)
	}

	if _, err := svc.CreateNote(ctx, "a.md", []byte("again")); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}

	got, err := svc.GetNote(ctx, "a.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Checksum != note.Checksum {
		t.Errorf("checksum mismatch: %q vs %q", got.Checksum, note.Checksum)
	}

	if err := svc.DeleteNote(ctx, "a.md"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetNote(ctx, "a.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
	if err := svc.DeleteNote(ctx, "a.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("double delete err = %v", err)
	}
}

func TestSaveNote_Conflict(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	note, err := svc.CreateNote(ctx, "a.md", []byte("v1\n"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SaveNote(ctx, "a.md", []byte("v2\n"), "bogus-checksum"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}

	updated, err := svc.SaveNote(ctx, "a.md", []byte("v2\n"), note.Checksum)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if updated.Content != "v2\n" {
		t.Errorf("content = %q", updated.Content)
	}
}

func TestSaveNote_ModifiedAlwaysAdvances(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	raw := "---\ntitle: Old\nmodified: 2020-01-01\n---\nbody\n"
	before := time.Now().Add(-time.Second)
	note, err := svc.CreateNote(ctx, "old.md", []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !note.ModifiedAt.After(before) {
		t.Errorf("modified = %v, want after %v", note.ModifiedAt, before)
	}

	// Saving unchanged content still advances the stored time, and the
	// other standard fields stay put.
	time.Sleep(20 * time.Millisecond)
	saved, err := svc.SaveNote(ctx, "old.md", []byte(raw), "")
	if err != nil {
		t.Fatal(err)
	}
	if !saved.ModifiedAt.After(note.ModifiedAt) {
		t.Errorf("modified did not advance: %v -> %v", note.ModifiedAt, saved.ModifiedAt)
	}
	if saved.Title != note.Title || saved.Checksum != note.Checksum {
		t.Errorf("standard fields changed on unchanged save: %+v vs %+v", saved, note)
	}

	got, err := svc.GetNote(ctx, "old.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.ModifiedAt.Year() == 2020 {
		t.Errorf("frontmatter date leaked through: %v", got.ModifiedAt)
	}
}

func TestGetNote_InvalidFrontmatterStillReadable(t *testing.T) {
	svc, root := testService(t)
	ctx := context.Background()

	raw := "---\ntitle: [unclosed\n---\nbody text\n"
	testutil.WriteNote(t, root, "bad.md", raw)

	note, err := svc.GetNote(ctx, "bad.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if note.Content != raw {
		t.Errorf("content = %q", note.Content)
	}
	if note.ParseError == "" {
		t.Error("parse failure not surfaced")
	}
	if note.Title != "bad" {
		t.Errorf("title = %q, want filename stem", note.Title)
	}
}

func TestSaveNote_InvalidFrontmatterExcludedFromIndexes(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "n.md", []byte("---\ntitle: Good\n---\nfine\n")); err != nil {
		t.Fatal(err)
	}

	note, err := svc.SaveNote(ctx, "n.md", []byte("---\ntitle: [broken\n---\nstill here\n"), "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if note.ParseError == "" {
		t.Error("parse failure not surfaced")
	}

	// On disk and readable, but out of every index until fixed.
	if _, err := svc.GetNote(ctx, "n.md"); err != nil {
		t.Errorf("get: %v", err)
	}
	notes, err := svc.ListNotes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("still indexed: %+v", notes)
	}
}

func TestBacklinksAndGraph(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "a.md", []byte("---\ntitle: A\n---\ntext\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "b.md", []byte("see [[A]]\n")); err != nil {
		t.Fatal(err)
	}

	bl, err := svc.GetBacklinks(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(bl) != 1 || bl[0].SourceID != "b.md" {
		t.Errorf("backlinks = %+v", bl)
	}

	snap, err := svc.GetGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 2 || len(snap.Edges) != 1 {
		t.Errorf("graph = %+v", snap)
	}
}

func TestToggleTaskInNote(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	raw := "---\ntitle: T\n---\n- [ ] first\n- [ ] second\n"
	if _, err := svc.CreateNote(ctx, "t.md", []byte(raw)); err != nil {
		t.Fatal(err)
	}

	note, err := svc.ToggleTaskInNote(ctx, "t.md", 4)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !strings.Contains(note.Content, "- [x] first") {
		t.Errorf("content = %q", note.Content)
	}
	if !strings.Contains(note.Content, "- [ ] second") {
		t.Errorf("second task should be untouched: %q", note.Content)
	}

	done := true
	info, err := svc.GetAllTasks(ctx, tasks.Filter{NoteID: "t.md", Completed: &done})
	if err != nil {
		t.Fatal(err)
	}
	if info.TotalCount != 1 || info.Tasks[0].Content != "first" || info.Tasks[0].CompletedAt == nil {
		t.Errorf("tasks = %+v", info)
	}

	if _, err := svc.ToggleTaskInNote(ctx, "t.md", 2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("toggle non-task err = %v", err)
	}
}

func TestBulkIndexOnOpen(t *testing.T) {
	root := t.TempDir()
	testutil.WriteNote(t, root, "pre.md", "---\ntitle: Pre\ntags: [seed]\n---\nexisting note\n")

	svc := NewService(testutil.Logger(), t.TempDir())
	if err := svc.OpenWorkspace(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.CloseWorkspace() }) //nolint:errcheck
	waitForBulk(t, svc)

	deadline := time.Now().Add(5 * time.Second)
	for {
		notes, err := svc.ListNotes(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(notes) == 1 && notes[0].Title == "Pre" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pre-existing note never indexed: %+v", notes)
		}
		time.Sleep(5 * time.Millisecond)
	}

	tags, err := svc.GetAllTags(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0] != "seed" {
		t.Errorf("tags = %v", tags)
	}
}

func TestSaveWhileBulkIndexRunning(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 60; i++ {
		testutil.WriteNote(t, root, fmt.Sprintf("filler-%03d.md", i),
			fmt.Sprintf("---\ntitle: Filler %d\n---\nfiller body %d\n", i, i))
	}
	fresh := "- [x] fresh task\n\nfreshword\n"
	testutil.WriteNote(t, root, "zz-target.md", "- [ ] stale task\n\nstaleword\n")

	svc := NewService(testutil.Logger(), t.TempDir())
	if err := svc.OpenWorkspace(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.CloseWorkspace() }) //nolint:errcheck

	// Save immediately, racing the background build of the whole
	// workspace. Whatever the interleaving, the saved content wins.
	ctx := context.Background()
	if _, err := svc.SaveNote(ctx, "zz-target.md", []byte(fresh), ""); err != nil {
		t.Fatalf("save during build: %v", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for svc.Indexing() {
		if time.Now().After(deadline) {
			t.Fatal("bulk index did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	note, err := svc.GetNote(ctx, "zz-target.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(note.Content, "freshword") {
		t.Errorf("content = %q", note.Content)
	}

	notes, err := svc.ListNotes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var cs string
	for _, n := range notes {
		if n.ID == "zz-target.md" {
			cs = n.Checksum
		}
	}
	if cs != checksum.Sum([]byte(fresh)) {
		t.Errorf("graph row holds stale content: checksum %q", cs)
	}

	results, err := svc.Search(ctx, search.Query{Text: "freshword"})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range results {
		if r.NoteID == "zz-target.md" {
			found = true
		}
	}
	if !found {
		t.Errorf("saved content missing from search: %+v", results)
	}
	results, err = svc.Search(ctx, search.Query{Text: "staleword"})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.NoteID == "zz-target.md" {
			t.Error("stale content still searchable")
		}
	}

	tl, err := svc.GetTasksForNote(ctx, "zz-target.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(tl) != 1 || tl[0].Content != "fresh task" || !tl[0].Completed {
		t.Errorf("tasks = %+v", tl)
	}
}

func TestSearchThroughService(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	if _, err := svc.CreateNote(ctx, "a.md", []byte("alpha content\n")); err != nil {
		t.Fatal(err)
	}
	results, err := svc.Search(ctx, search.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].NoteID != "a.md" {
		t.Errorf("results = %+v", results)
	}
}
