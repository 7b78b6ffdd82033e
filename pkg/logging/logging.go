// Copyright 2025 Worldtree Labs
//
// Shared zerolog logger for the identity coordinator.

package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// Logger returns the process-wide logger.
func Logger() *zerolog.Logger {
	return &logger
}

// SetJSONOutput switches the logger to plain JSON output, which is what we
// want when running under a log collector rather than a terminal.
func SetJSONOutput() {
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// SetLevel configures the global level from a config string. Unknown values
// fall back to info.
func SetLevel(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
