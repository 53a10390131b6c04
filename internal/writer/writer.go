// Package writer implements the buffered output sink with auto-indent at
// line starts used by the interpreter's writer stack (one per nested
// output destination: stdout, an open [file(...)]).
package writer

import (
	"strings"

	"github.com/mtlforge/mtlgen/internal/indent"
)

// Writer is a single-owner, append-only text buffer. It is not safe for
// concurrent use by more than one execution context at a time — the
// execution context that owns a Writer serialises all calls into it.
type Writer struct {
	buf         strings.Builder
	atLineStart bool
	indentation indent.Indentation
}

// New creates a Writer at the given initial indentation. The buffer starts
// empty and at line start.
func New(initial indent.Indentation) *Writer {
	return &Writer{atLineStart: true, indentation: initial}
}

// SetIndentation updates the indentation used for subsequent indent-eligible
// writes.
func (w *Writer) SetIndentation(i indent.Indentation) {
	w.indentation = i
}

// Write appends text to the buffer. If applyIndent is true and the writer
// is currently at the start of a line, the current indentation prefix is
// emitted before text. Empty text is a no-op regardless of applyIndent.
func (w *Writer) Write(text string, applyIndent bool) {
	if text == "" {
		return
	}
	if w.atLineStart && applyIndent {
		w.buf.WriteString(w.indentation.AsString())
	}
	w.buf.WriteString(text)
	w.atLineStart = false
}

// WriteLine is Write followed by a newline; it resets atLineStart to true
// afterwards. An empty text at line start with applyIndent still emits the
// indentation prefix before the newline, preserving trailing blank indented
// lines (see spec Property 2).
func (w *Writer) WriteLine(text string, applyIndent bool) {
	if text == "" && w.atLineStart && applyIndent {
		w.buf.WriteString(w.indentation.AsString())
	} else {
		w.Write(text, applyIndent)
	}
	w.buf.WriteByte('\n')
	w.atLineStart = true
}

// NewLine appends a bare newline. applyIndentNext controls whether the next
// indent-eligible write re-emits the indentation prefix.
func (w *Writer) NewLine(applyIndentNext bool) {
	w.buf.WriteByte('\n')
	w.atLineStart = applyIndentNext
}

// Content returns the buffer's contents without modifying it.
func (w *Writer) Content() string {
	return w.buf.String()
}

// Clear empties the buffer and resets to line start.
func (w *Writer) Clear() {
	w.buf.Reset()
	w.atLineStart = true
}

// AtLineStart reports whether the next indent-eligible write would emit an
// indentation prefix.
func (w *Writer) AtLineStart() bool {
	return w.atLineStart
}
