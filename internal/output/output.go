// Package output formats query answers and short notices for the CLI.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a message with an icon. Write errors are ignored for
// console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a message with a checkmark.
func (w *Writer) Success(msg string) { w.Status("✅", msg) }

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status("⚠️ ", msg) }

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status("❌", msg) }

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Citation prints a numbered source heading:
//
//	[1] Aperture Basics (0.91)
//	    exposure/aperture.md
func (w *Writer) Citation(n int, title, location string, score float32) {
	if title == "" {
		title = "(untitled)"
	}
	_, _ = fmt.Fprintf(w.out, "[%d] %s (%.2f)\n", n, title, score)
	if location != "" {
		_, _ = fmt.Fprintf(w.out, "    %s\n", location)
	}
}

// Block prints text indented under a citation, wrapped at width columns.
// A width of zero or less disables wrapping.
func (w *Writer) Block(text string, width int) {
	for _, para := range strings.Split(strings.TrimSpace(text), "\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, line := range wrap(para, width) {
			_, _ = fmt.Fprintf(w.out, "    %s\n", line)
		}
	}
}

// wrap splits s on word boundaries into lines of at most width runes.
// Words longer than width stay on their own line.
func wrap(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	var (
		lines []string
		cur   strings.Builder
		n     int
	)
	for _, word := range strings.Fields(s) {
		wl := len([]rune(word))
		if n > 0 && n+1+wl > width {
			lines = append(lines, cur.String())
			cur.Reset()
			n = 0
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(word)
		n += wl
	}
	if n > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
