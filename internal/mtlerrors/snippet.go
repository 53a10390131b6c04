package mtlerrors

import (
	"fmt"
	"strings"
)

// Snippet is a rendered source excerpt: 2 lines of context around the
// offending line plus a caret pointing at the column, modeled on the
// teacher's EnhancedError (pkg/errors/enhanced.go).
type Snippet struct {
	Filename string
	Line     int // 1-indexed
	Column   int // 1-indexed
	Lines    []string
	Highlight int // index into Lines of the offending line
}

// NewSnippet extracts up to 2 lines of context before/after line (1-indexed)
// from source.
func NewSnippet(filename, source string, line, column int) Snippet {
	var all []string
	if source != "" {
		all = strings.Split(source, "\n")
	}
	lo := line - 3 // 2 lines of context before the 1-indexed line
	if lo < 0 {
		lo = 0
	}
	hi := line + 2
	if hi > len(all) {
		hi = len(all)
	}
	var lines []string
	highlight := 0
	if lo < hi {
		lines = all[lo:hi]
		highlight = (line - 1) - lo
	}
	return Snippet{Filename: filename, Line: line, Column: column, Lines: lines, Highlight: highlight}
}

// Render prints the snippet with line numbers and a caret under column.
func (s Snippet) Render() string {
	if len(s.Lines) == 0 {
		return fmt.Sprintf("%s:%d:%d", s.Filename, s.Line, s.Column)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--> %s:%d:%d\n", s.Filename, s.Line, s.Column)
	firstLineNo := s.Line - s.Highlight
	for i, l := range s.Lines {
		lineNo := firstLineNo + i
		fmt.Fprintf(&b, "%4d | %s\n", lineNo, l)
		if i == s.Highlight {
			col := s.Column
			if col < 1 {
				col = 1
			}
			b.WriteString("     | ")
			b.WriteString(strings.Repeat(" ", col-1))
			b.WriteString("^\n")
		}
	}
	return b.String()
}
