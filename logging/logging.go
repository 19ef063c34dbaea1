// Package logging builds the service logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger aliases zerolog.Logger for packages that only pass it along.
type Logger = zerolog.Logger

// New returns a JSON logger on stdout at level. In development it writes
// human readable lines instead and defaults to debug.
func New(level, appEnv string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, appEnv)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer, level, appEnv string) zerolog.Logger {
	dev := IsDevelopment(appEnv)

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
		if dev {
			lvl = zerolog.DebugLevel
		}
	}

	if dev {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// SetGlobal makes l the logger behind github.com/rs/zerolog/log.
func SetGlobal(l zerolog.Logger) {
	log.Logger = l
}

// IsDevelopment reports whether appEnv names a development environment.
func IsDevelopment(appEnv string) bool {
	switch strings.ToLower(appEnv) {
	case "development", "dev", "local":
		return true
	}
	return false
}
