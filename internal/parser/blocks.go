package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
)

var blockIDRe = regexp.MustCompile(`\s\^([a-z0-9-]+)\s*$`)

// stripBlockID removes a trailing ^id token from a line. The raw note
// content keeps the token so explicit IDs round-trip on save; only the
// rendered block content drops it.
func stripBlockID(line string) string {
	return blockIDRe.ReplaceAllString(line, "")
}

// explicitBlockID returns the trailing ^id token of a line, if any.
func explicitBlockID(line string) string {
	m := blockIDRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

type blockBuilder struct {
	kind  models.BlockKind
	level int
	lines []string
	id    string
}

// scanBlocks splits the body into an ordered sequence of blocks. Heading
// markers, list markers, fenced code delimiters, and blockquote markers
// each start a block; blank lines close the current one. Position
// determines the default identity; an explicit ^id on the block's last
// line overrides it.
func scanBlocks(noteID, body string) []models.Block {
	lines := strings.Split(body, "\n")
	var (
		blocks  []models.Block
		cur     *blockBuilder
		inFence bool
		fence   string
		usedIDs = make(map[string]struct{})
	)

	flush := func() {
		if cur == nil || len(cur.lines) == 0 {
			cur = nil
			return
		}
		pos := len(blocks)
		content := strings.Join(cur.lines, "\n")
		id := cur.id
		if id == "" {
			id = checksum.Short(noteID + ":" + strconv.Itoa(pos))
		}
		if _, dup := usedIDs[id]; dup {
			id = checksum.Short(noteID + ":" + strconv.Itoa(pos))
		}
		usedIDs[id] = struct{}{}
		blocks = append(blocks, models.Block{
			ID:       id,
			NoteID:   noteID,
			Kind:     cur.kind,
			Content:  content,
			Level:    cur.level,
			Position: pos,
			Explicit: cur.id != "",
		})
		cur = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, fence) {
				inFence = false
				flush()
				continue
			}
			cur.lines = append(cur.lines, line)
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
			flush()
			inFence = true
			fence = trimmed[:3]
			cur = &blockBuilder{kind: models.BlockCode}

		case trimmed == "":
			flush()

		case isHeadingLine(trimmed):
			flush()
			level := headingLevel(trimmed)
			text := strings.TrimSpace(trimmed[level:])
			cur = &blockBuilder{
				kind:  models.BlockHeading,
				level: level,
				lines: []string{stripBlockID(text)},
				id:    explicitBlockID(text),
			}
			flush()

		case isListLine(line):
			flush()
			indent := countIndent(line)
			marker := strings.TrimSpace(line)
			text := listItemText(marker)
			cur = &blockBuilder{
				kind:  models.BlockList,
				level: indent / 2,
				lines: []string{stripBlockID(text)},
				id:    explicitBlockID(text),
			}

		case strings.HasPrefix(trimmed, ">"):
			text := strings.TrimSpace(strings.TrimPrefix(trimmed, ">"))
			if cur != nil && cur.kind == models.BlockQuote {
				if id := explicitBlockID(text); id != "" {
					cur.id = id
				}
				cur.lines = append(cur.lines, stripBlockID(text))
				continue
			}
			flush()
			cur = &blockBuilder{
				kind:  models.BlockQuote,
				lines: []string{stripBlockID(text)},
				id:    explicitBlockID(text),
			}

		default:
			if cur != nil {
				// Continuation line of an open list item or paragraph.
				if id := explicitBlockID(line); id != "" {
					cur.id = id
				}
				cur.lines = append(cur.lines, stripBlockID(line))
				continue
			}
			cur = &blockBuilder{
				kind:  models.BlockParagraph,
				lines: []string{stripBlockID(line)},
				id:    explicitBlockID(line),
			}
		}
	}
	flush()
	return blocks
}

func isHeadingLine(trimmed string) bool {
	level := headingLevel(trimmed)
	return level > 0 && level <= 6 && len(trimmed) > level &&
		(trimmed[level] == ' ' || trimmed[level] == '\t')
}

func headingLevel(trimmed string) int {
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	return level
}

func isListLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if len(trimmed) >= 2 {
		switch trimmed[0] {
		case '-', '*', '+':
			if trimmed[1] == ' ' || trimmed[1] == '\t' {
				return true
			}
		}
	}
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(trimmed) {
		return false
	}
	if trimmed[i] != '.' && trimmed[i] != ')' {
		return false
	}
	return trimmed[i+1] == ' ' || trimmed[i+1] == '\t'
}

// listItemText returns the item text after its marker.
func listItemText(marker string) string {
	switch marker[0] {
	case '-', '*', '+':
		return strings.TrimLeft(marker[1:], " \t")
	}
	i := 0
	for i < len(marker) && marker[i] >= '0' && marker[i] <= '9' {
		i++
	}
	return strings.TrimLeft(marker[i+1:], " \t")
}

func countIndent(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}
