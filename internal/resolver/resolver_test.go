package resolver

import "testing"

var candidates = []Candidate{
	{ID: "topics/go.md", Title: "Go", Aliases: []string{"golang"}},
	{ID: "daily/2024-01-15.md", Title: "Monday"},
	{ID: "projects.md", Title: "Projects", Aliases: []string{"daily/2024-01-15.md"}},
}

func TestResolve_TitleMatch(t *testing.T) {
	id, ok := Resolve("Go", candidates)
	if !ok || id != "topics/go.md" {
		t.Errorf("got %q %v", id, ok)
	}
}

func TestResolve_AliasMatch(t *testing.T) {
	id, ok := Resolve("golang", candidates)
	if !ok || id != "topics/go.md" {
		t.Errorf("got %q %v", id, ok)
	}
}

func TestResolve_AliasBeatsPath(t *testing.T) {
	// projects.md claims the other note's path as an alias; the alias
	// pass runs before the path pass, so it wins.
	id, ok := Resolve("daily/2024-01-15.md", candidates)
	if !ok || id != "projects.md" {
		t.Errorf("got %q %v, want projects.md", id, ok)
	}
}

func TestResolve_PathForms(t *testing.T) {
	for _, raw := range []string{"topics/go.md", "topics/go", "./topics/go.md"} {
		id, ok := Resolve(raw, candidates)
		if !ok || id != "topics/go.md" {
			t.Errorf("Resolve(%q) = %q %v", raw, id, ok)
		}
	}
}

func TestResolve_Miss(t *testing.T) {
	if _, ok := Resolve("No Such Note", candidates); ok {
		t.Error("expected miss")
	}
	if _, ok := Resolve("  ", candidates); ok {
		t.Error("expected miss on blank target")
	}
}
