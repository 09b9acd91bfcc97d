package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`(!?)\[\[([^\[\]]+?)\]\]`)
	mdLinkRe   = regexp.MustCompile(`(^|[^!])\[([^\]]*)\]\(([^)\s]+)\)`)
	// A tag opens at start of line or after whitespace only; anything
	// else (notably the "(" of a Markdown anchor link) is not a tag.
	tagRe       = regexp.MustCompile(`(?:^|\s)#([A-Za-z0-9_/-]+)`)
	codeSpanRe  = regexp.MustCompile("`[^`]*`")
	taskRe      = regexp.MustCompile(`^\s*- \[( |x|X)\] (.*)$`)
	selfwikiRe  = regexp.MustCompile(`\[\[#\^([a-z0-9-]+)\]\]`)
	urlSchemeRe = regexp.MustCompile(`^[a-z][a-z0-9+.-]*:`)
)

// extractLinks collects wikilinks, embeds, block references, and relative
// Markdown links as unresolved Link records. Targets keep their literal
// text; the resolver finishes them later.
func extractLinks(noteID, body string) []models.Link {
	var out []models.Link

	for _, m := range selfwikiRe.FindAllStringSubmatch(body, -1) {
		out = append(out, models.Link{
			SourceID: noteID,
			Kind:     models.LinkBlockRef,
			BlockRef: m[1],
		})
	}

	for _, m := range wikilinkRe.FindAllStringSubmatch(body, -1) {
		embed := m[1] == "!"
		inner := m[2]

		target := inner
		display := ""
		if i := strings.Index(inner, "|"); i >= 0 {
			target, display = inner[:i], inner[i+1:]
		}
		blockRef := ""
		if i := strings.Index(target, "#^"); i >= 0 {
			blockRef = target[i+2:]
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			// Same-note [[#^id]] links were already collected above.
			continue
		}

		kind := models.LinkWiki
		switch {
		case embed:
			kind = models.LinkEmbed
		case blockRef != "":
			kind = models.LinkBlockRef
		}
		out = append(out, models.Link{
			SourceID:  noteID,
			RawTarget: target,
			Display:   strings.TrimSpace(display),
			Kind:      kind,
			BlockRef:  blockRef,
		})
	}

	for _, m := range mdLinkRe.FindAllStringSubmatch(body, -1) {
		target := m[3]
		if urlSchemeRe.MatchString(target) {
			continue
		}
		out = append(out, models.Link{
			SourceID:  noteID,
			RawTarget: target,
			Display:   m[2],
			Kind:      models.LinkMarkdown,
		})
	}

	return out
}

// extractInlineTags collects #tags outside fenced code blocks and inline
// code spans. Tag names are case-sensitive and may nest with slashes.
func extractInlineTags(body string) []string {
	var (
		out     []string
		seen    = make(map[string]struct{})
		inFence bool
	)
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		scrubbed := codeSpanRe.ReplaceAllString(line, "")
		for _, m := range tagRe.FindAllStringSubmatch(scrubbed, -1) {
			name := m[1]
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// extractTasks collects checkbox lines. Line numbers are 1-based over the
// whole raw note, frontmatter included, so ToggleTaskInNote can address
// the source file directly. Frontmatter itself is never scanned.
func extractTasks(noteID, body string, fmLines int) []models.Task {
	var (
		out     []models.Task
		inFence bool
	)
	for i, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := taskRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo := fmLines + i + 1
		content := strings.TrimSpace(stripBlockID(m[2]))
		id := explicitBlockID(m[2])
		if id == "" {
			// Generated identity covers note, line, and text: moving or
			// rewriting an unmarked task starts its history over.
			id = checksum.Short(noteID + ":" + strconv.Itoa(lineNo) + ":" + content)
		}
		out = append(out, models.Task{
			ID:        id,
			NoteID:    noteID,
			NotePath:  noteID,
			Line:      lineNo,
			Content:   content,
			Completed: strings.TrimSpace(m[1]) != "",
		})
	}
	return out
}
