package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
// level overrides the default level when it names a valid slog level.
func Init(level string) {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(level, slog.LevelInfo),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(level, slog.LevelDebug),
		})
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	if s == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return fallback
	}
	return lvl
}

// WithComponent returns a logger tagged with the emitting component (producer, watcher, dashboard).
func WithComponent(component string) *slog.Logger {
	return slog.With("component", component)
}

// WithRoom returns a logger scoped to a single room.
// Use this for everything logged from a room's capture or decision loop.
func WithRoom(logger *slog.Logger, room string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("room", room)
}
