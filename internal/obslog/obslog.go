// Package obslog wires a single process-wide zerolog.Logger the way the
// teacher repo wires a single shared DB/Redis handle through constructors,
// replacing the teacher's fmt.Printf/emoji logging with structured events.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-friendly logger at the given level. level accepts
// zerolog level names ("debug", "info", "warn", "error"); an unrecognized
// name falls back to info.
func New(levelName string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with a "component" field so log
// lines are attributable without string-matching prefixes. The packages in
// this module do not call it; the scan pipeline, scheduler, and server add
// the same field themselves with With().Str("component", ...).
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
