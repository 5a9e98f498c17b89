// Package output formats command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Writer prints status lines, aligned fields and JSON documents.
// The first write error is kept and reported by Err, so callers can
// print several lines and check once.
type Writer struct {
	out        io.Writer
	fieldWidth int
	err        error
}

// New creates a Writer on out.
func New(out io.Writer) *Writer {
	return &Writer{out: out, fieldWidth: 10}
}

// Err returns the first error hit while writing.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.out, format, args...)
}

// Status prints a message prefixed with icon. An empty icon indents the
// message so it lines up under iconed lines.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		w.printf("   %s\n", msg)
		return
	}
	w.printf("%s %s\n", icon, msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Status("✅", fmt.Sprintf(format, args...))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status("⚠️ ", fmt.Sprintf(format, args...))
}

// Field prints "label: value" with values aligned in one column.
func (w *Writer) Field(label string, value any) {
	pad := w.fieldWidth - len(label)
	if pad < 1 {
		pad = 1
	}
	w.printf("%s:%s%v\n", label, strings.Repeat(" ", pad), value)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) {
	if w.err != nil {
		return
	}
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	w.err = enc.Encode(v)
}
