package utils

import (
	"fmt"

	"golang.org/x/exp/slog"
)

// LogAndReturnError logs msg with err and returns an error carrying both, so callers can still match err.
func LogAndReturnError(msg string, err error) error {
	if err == nil {
		slog.Warn(msg)
		return fmt.Errorf("%s", msg)
	}
	slog.Warn(msg, "error", err)
	return fmt.Errorf("%s: %w", msg, err)
}
