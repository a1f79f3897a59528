package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiGray  = "\033[90m"
	ansiBold  = "\033[1m"
)

var colorEnabled = true

// DisableColors turns off ANSI sequences in Format and Fprint output.
func DisableColors() {
	colorEnabled = false
}

func paint(text string, codes ...string) string {
	if !colorEnabled || len(codes) == 0 {
		return text
	}
	return strings.Join(codes, "") + text + ansiReset
}

// detailWidth is the column at which Detail is wrapped.
const detailWidth = 70

// Format renders the error as a multi-line terminal report: a headline, the
// offending lines of the file at Location, then detail, cause and hint.
func (e *ServeError) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	e.writeHeadline(&b)
	e.writeSnippet(&b)

	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, detailWidth) {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n\n", paint("Cause: ", ansiGray), e.Wrapped.Error())
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", paint("Hint: ", ansiCyan), e.Suggestion)
	}

	return b.String()
}

func (e *ServeError) writeHeadline(b *strings.Builder) {
	label := "ERROR:"
	if e.Code != "" {
		label = "ERROR " + e.Code + ":"
	}
	fmt.Fprintf(b, "%s %s\n\n", paint(label, ansiRed, ansiBold), e.Message)
}

// writeSnippet prints the location and its context lines, marking the
// error line and, when known, the column.
func (e *ServeError) writeSnippet(b *strings.Builder) {
	if e.Location == nil {
		return
	}
	fmt.Fprintf(b, "  %s\n\n", paint(e.Location.String(), ansiCyan))
	if len(e.Context) == 0 {
		return
	}

	first := max(e.Location.Line-2, 1)
	gutter := paint(" │ ", ansiGray)
	for i, line := range e.Context {
		n := first + i
		marker := "  "
		if n == e.Location.Line {
			marker = paint("→ ", ansiRed)
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", marker, n, gutter, line)

		if n == e.Location.Line && e.Location.Column > 0 {
			fmt.Fprintf(b, "       %s%s%s\n",
				paint("│ ", ansiGray),
				strings.Repeat(" ", e.Location.Column-1),
				paint("^", ansiRed))
		}
	}
	b.WriteString("\n")
}

// FormatCompact renders the error on one line for log records:
// "[location: ]code: message[: detail][ (cause)]".
func (e *ServeError) FormatCompact() string {
	var parts []string
	if e.Location != nil {
		parts = append(parts, e.Location.String())
	}
	parts = append(parts, e.Error())

	line := strings.Join(parts, ": ")
	if e.Wrapped != nil {
		line += " (" + e.Wrapped.Error() + ")"
	}
	return line
}

// wrapText breaks text into lines of at most width bytes at word boundaries.
// A single word longer than width gets a line of its own.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	lines := []string{words[0]}
	for _, word := range words[1:] {
		last := &lines[len(lines)-1]
		if len(*last)+1+len(word) > width {
			lines = append(lines, word)
			continue
		}
		*last += " " + word
	}
	return lines
}

// Fprint writes err to w, using Format for a ServeError anywhere in the chain.
func Fprint(w io.Writer, err error) {
	var se *ServeError
	if stderrors.As(err, &se) {
		io.WriteString(w, se.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", paint("ERROR:", ansiRed, ansiBold), err.Error())
}
