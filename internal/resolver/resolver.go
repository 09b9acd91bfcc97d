// Package resolver maps wikilink target strings to concrete note
// identities. The resolver is stateless; the coordinator decides when to
// re-resolve affected links.
package resolver

import "strings"

// Candidate is the minimal note surface the resolver matches against.
type Candidate struct {
	ID      string
	Title   string
	Aliases []string
}

// Resolve matches a literal link target against known notes. The strategy
// order is load-bearing: an exact title match wins over an alias match,
// which wins over a path match, so a note titled after another note's
// path shadows that path. Returns false when nothing matches; callers keep
// the literal target as a broken-link marker.
func Resolve(raw string, candidates []Candidate) (string, bool) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", false
	}

	for _, c := range candidates {
		if c.Title == target {
			return c.ID, true
		}
	}

	for _, c := range candidates {
		for _, alias := range c.Aliases {
			if alias == target {
				return c.ID, true
			}
		}
	}

	normalized := strings.TrimPrefix(target, "./")
	for _, c := range candidates {
		if c.ID == normalized || c.ID == normalized+".md" {
			return c.ID, true
		}
		if strings.TrimSuffix(c.ID, ".md") == normalized {
			return c.ID, true
		}
	}

	return "", false
}
