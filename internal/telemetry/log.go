// Package telemetry owns the process-wide observability plumbing: the
// base structured logger and the Prometheus collectors.
package telemetry

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the base JSON logger writing to stderr. The level
// string accepts zerolog level names ("debug", "info", "warn", ...);
// anything unparseable falls back to info rather than failing startup.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
