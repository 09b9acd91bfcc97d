package search

import (
	"os"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-search-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func doc(id string, age time.Duration, tags ...string) Document {
	return Document{
		NoteID:     id,
		Title:      "Title " + id,
		Path:       id,
		Body:       "body of " + id,
		Tags:       tags,
		ModifiedAt: time.Now().Add(-age),
	}
}

func TestSearch_EmptyTextOrdersByRecency(t *testing.T) {
	s := testStore(t)
	for _, d := range []Document{
		doc("old.md", 2*time.Hour),
		doc("new.md", 0),
		doc("mid.md", time.Hour),
	} {
		if err := s.IndexNote(d); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.Search(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d", len(results))
	}
	if results[0].NoteID != "new.md" || results[2].NoteID != "old.md" {
		t.Errorf("order = %v %v %v", results[0].NoteID, results[1].NoteID, results[2].NoteID)
	}
}

func TestSearch_TagFilter(t *testing.T) {
	s := testStore(t)
	if err := s.IndexNote(doc("a.md", 0, "go", "notes")); err != nil {
		t.Fatal(err)
	}
	if err := s.IndexNote(doc("b.md", 0, "go")); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(Query{Tags: []string{"go", "notes"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].NoteID != "a.md" {
		t.Errorf("results = %+v", results)
	}
	if len(results[0].Tags) != 2 {
		t.Errorf("tags = %v", results[0].Tags)
	}
}

func TestSearch_PathPrefixFilter(t *testing.T) {
	s := testStore(t)
	if err := s.IndexNote(doc("daily/jan.md", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.IndexNote(doc("topics/go.md", 0)); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(Query{PathPrefix: "daily/"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].NoteID != "daily/jan.md" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearch_DateRangeFilter(t *testing.T) {
	s := testStore(t)
	if err := s.IndexNote(doc("old.md", 48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.IndexNote(doc("new.md", 0)); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(Query{From: time.Now().Add(-24 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].NoteID != "new.md" {
		t.Errorf("results = %+v", results)
	}

	results, err = s.Search(Query{To: time.Now().Add(-24 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].NoteID != "old.md" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearch_Limit(t *testing.T) {
	s := testStore(t)
	for _, id := range []string{"a.md", "b.md", "c.md"} {
		if err := s.IndexNote(doc(id, 0)); err != nil {
			t.Fatal(err)
		}
	}
	results, err := s.Search(Query{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

func TestRemoveNote(t *testing.T) {
	s := testStore(t)
	if err := s.IndexNote(doc("a.md", 0, "go")); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveNote("a.md"); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}

func TestIndexAll_UpsertsWithoutWiping(t *testing.T) {
	s := testStore(t)
	// A note saved mid-build is absent from the bulk set and must survive.
	if err := s.IndexNote(doc("live.md", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.IndexAll([]Document{doc("a.md", time.Hour), doc("b.md", time.Hour)}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("len(results) = %d, want 3: %+v", len(results), results)
	}
	if results[0].NoteID != "live.md" {
		t.Errorf("first = %q", results[0].NoteID)
	}
}

func TestLikePrefixEscaping(t *testing.T) {
	got := likePrefix(`da%ily_\x`)
	want := `da\%ily\_\\x%`
	if got != want {
		t.Errorf("likePrefix = %q, want %q", got, want)
	}
}
