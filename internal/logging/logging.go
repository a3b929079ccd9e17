package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Base builds the process logger on stderr. Stdout is left to command output.
// format: json|console; level: trace|debug|info|warn|error
func Base(app, level, format string) zerolog.Logger {
	return New(os.Stderr, app, level, format)
}

// New is Base with an explicit sink.
func New(w io.Writer, app, level, format string) zerolog.Logger {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		w = zerolog.ConsoleWriter{Out: w, NoColor: w != os.Stderr}
	}

	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Str("app", app).Logger()
}

// ParseLevel maps a level name to zerolog, falling back to info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel
	}

	if lvl, err := zerolog.ParseLevel(s); err == nil {
		return lvl
	}

	return zerolog.InfoLevel
}
