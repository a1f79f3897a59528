package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
)

// Category represents the type of error.
type Category string

const (
	CategoryListen Category = "listen"
	CategoryConfig Category = "config"
	CategoryTLS    Category = "tls"
	CategoryWatch  Category = "watch"
)

// Location represents a position inside a file, such as serve.json.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// ServeError is a structured error with an optional file location and suggestion.
type ServeError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the error type (listen, config, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred.
	Location *Location

	// Context contains surrounding lines of the file at Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *ServeError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *ServeError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a ServeError with the same code.
func (e *ServeError) Is(target error) bool {
	t, ok := target.(*ServeError)
	if !ok || e.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// WithLocation adds a file location to the error and reads the lines around it.
func (e *ServeError) WithLocation(file string, line, column int) *ServeError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *ServeError) WithSuggestion(s string) *ServeError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *ServeError) WithDetail(d string) *ServeError {
	e.Detail = d
	return e
}

// WithDetailf adds a formatted detail to the error.
func (e *ServeError) WithDetailf(format string, args ...any) *ServeError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *ServeError) Wrap(err error) *ServeError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a ServeError from a registered error code.
func New(code string) *ServeError {
	template, ok := registry[code]
	if !ok {
		return &ServeError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &ServeError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// FromError returns err unchanged if it already is a ServeError, and
// otherwise wraps it in a new ServeError with code.
func FromError(err error, code string) *ServeError {
	if err == nil {
		return nil
	}
	var se *ServeError
	if stderrors.As(err, &se) {
		return se
	}
	return New(code).Wrap(err)
}

// HasCode reports whether err, or any error it wraps, is a ServeError with code.
func HasCode(err error, code string) bool {
	var se *ServeError
	for err != nil {
		if stderrors.As(err, &se) {
			if se.Code == code {
				return true
			}
			err = se.Wrapped
			continue
		}
		return false
	}
	return false
}
