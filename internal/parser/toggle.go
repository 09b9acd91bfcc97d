package parser

import (
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
)

// ToggleTask flips the checkbox on the given 1-based line of a raw note,
// counting every line of the file including frontmatter. It returns the
// rewritten note and the new completion state. The rest of the file is
// left byte for byte untouched. A line that is not a task returns
// ErrNotFound.
func ToggleTask(raw []byte, line int) ([]byte, bool, error) {
	lines := strings.Split(string(raw), "\n")
	if line < 1 || line > len(lines) {
		return nil, false, fmt.Errorf("parser: toggle line %d: %w", line, apperr.ErrNotFound)
	}

	m := taskRe.FindStringSubmatchIndex(lines[line-1])
	if m == nil {
		return nil, false, fmt.Errorf("parser: line %d is not a task: %w", line, apperr.ErrNotFound)
	}

	// m[2]:m[3] is the checkbox state character.
	s := lines[line-1]
	completed := s[m[2]:m[3]] != " "
	mark := "x"
	if completed {
		mark = " "
	}
	lines[line-1] = s[:m[2]] + mark + s[m[3]:]

	return []byte(strings.Join(lines, "\n")), !completed, nil
}
