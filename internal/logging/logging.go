// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger at the given level. Development environments get a
// human-readable console writer; everything else logs JSON to stdout.
func New(level, env string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if isDevelopment(env) {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(w, level)
}

// NewWithWriter returns a timestamped logger writing to w. An unparsable level falls back to info.
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func isDevelopment(env string) bool {
	switch strings.ToLower(env) {
	case "local", "development", "dev", "test":
		return true
	}
	return false
}
