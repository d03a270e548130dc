package dnf

import (
	"fmt"
	"io"
)

// Logger is a minimal wrapper around an io.Writer, in the same spirit as a
// vendored C logging sink: no levels baked into the type, just a place to
// send lines. Components accept a *Logger (never nil; NewLogger(io.Discard)
// if the caller doesn't want output) rather than reaching for a package-level
// global, so there is no process-wide mutable logging state in the library.
type Logger struct {
	io.Writer
}

// NewLogger returns a new logger which writes to w.
func NewLogger(w io.Writer) *Logger {
	return &Logger{Writer: w}
}

// Logln logs a line.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l, args...)
}

// Logf logs a formatted string.
func (l *Logger) Logf(format string, args ...interface{}) {
	fmt.Fprintf(l, format, args...)
}

// Warnf logs a formatted line, prefixed with "warning: ". Used for the
// non-fatal recoveries the spec calls out explicitly: unknown option keys,
// skip-if-unavailable repo failures, missing variable-substitution values.
func (l *Logger) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(l, "warning: "+format+"\n", args...)
}
