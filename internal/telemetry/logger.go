// Package telemetry builds the process-wide structured logger.
package telemetry

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON slog logger. Debug mode switches to text output
// at debug level for readable local runs.
func NewLogger(debug bool) *slog.Logger {
	if debug {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
