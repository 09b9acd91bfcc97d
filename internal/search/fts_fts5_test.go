//go:build sqlite_fts5

package search

import (
	"testing"
	"time"
)

func TestSearch_BM25Ranking(t *testing.T) {
	s := testStore(t)
	docs := []Document{
		{
			NoteID:     "dense.md",
			Title:      "Gardening",
			Path:       "dense.md",
			Body:       "gardening gardening gardening tips for gardening",
			ModifiedAt: time.Now().Add(-time.Hour),
		},
		{
			NoteID:     "sparse.md",
			Title:      "Weekend plans",
			Path:       "sparse.md",
			Body:       "maybe some gardening, mostly reading a very long text about other things entirely",
			ModifiedAt: time.Now(),
		},
		{
			NoteID:     "none.md",
			Title:      "Cooking",
			Path:       "none.md",
			Body:       "pasta recipes",
			ModifiedAt: time.Now(),
		},
	}
	if err := s.IndexAll(docs); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(Query{Text: "gardening"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d: %+v", len(results), results)
	}
	if results[0].NoteID != "dense.md" {
		t.Errorf("top hit = %q, want dense.md", results[0].NoteID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestSearch_MatchInTags(t *testing.T) {
	s := testStore(t)
	if err := s.IndexNote(Document{
		NoteID: "a.md", Title: "Untitled", Path: "a.md",
		Body: "nothing relevant", Tags: []string{"golang"},
		ModifiedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(Query{Text: "golang"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].NoteID != "a.md" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearch_TextWithFilter(t *testing.T) {
	s := testStore(t)
	if err := s.IndexAll([]Document{
		{NoteID: "daily/a.md", Title: "Standup", Path: "daily/a.md", Body: "project alpha notes", ModifiedAt: time.Now()},
		{NoteID: "topics/b.md", Title: "Alpha", Path: "topics/b.md", Body: "project alpha deep dive", ModifiedAt: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(Query{Text: "alpha", PathPrefix: "daily/"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].NoteID != "daily/a.md" {
		t.Errorf("results = %+v", results)
	}
}
