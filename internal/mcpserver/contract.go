package mcpserver

// NoteFormatContract is the canonical note format returned by the
// get_note_contract tool and the ansuz://note-format resource.
const NoteFormatContract = `# Ansuz Note Format

Every note is a UTF-8 Markdown file identified by its path relative to
the workspace root (e.g. ` + "`topics/go.md`" + `).

## Frontmatter

Optional YAML between ` + "`---`" + ` lines at the very top of the file:

` + "```markdown" + `
---
title: Go Concurrency
aliases: [goroutines, "go concurrency"]
type: topic
tags: [golang, concurrency]
created: 2024-01-15
modified: 2024-03-02
---
` + "```" + `

All fields are optional. ` + "`title`" + ` falls back to the first heading,
then to the filename. ` + "`aliases`" + ` accepts a string or a list and
participates in link resolution. Unknown fields are preserved as-is.

## Links

- Wikilinks: ` + "`[[Target Note]]`" + `, with display text ` + "`[[Target|shown]]`" + `,
  targeting a title, an alias, or a path.
- Block references: ` + "`[[Target#^block-id]]`" + ` or same-note ` + "`[[#^block-id]]`" + `.
- Embeds: ` + "`![[Target]]`" + `.
- Standard Markdown links to relative ` + "`.md`" + ` paths also resolve;
  external URLs are ignored.

## Blocks and tags

A trailing ` + "`^block-id`" + ` (lowercase letters, digits, hyphens) names a
block for stable reference. Inline ` + "`#tags`" + ` anywhere outside code are
indexed and merged with frontmatter tags.

## Tasks

` + "`- [ ] text`" + ` and ` + "`- [x] text`" + ` lines are indexed as tasks. A
trailing ` + "`^id`" + ` keeps a task's history stable across edits.
`
