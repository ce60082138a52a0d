package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel returns the level named by LOG_LEVEL, or fallback when the
// variable is unset or unrecognised. Names follow slog ("debug", "warn",
// "info+2"); "warning" is accepted for "warn".
func ParseLogLevel(fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(Get("LOG_LEVEL", ""))
	if raw == "" {
		return fallback
	}
	if strings.EqualFold(raw, "warning") {
		return slog.LevelWarn
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return level
}
