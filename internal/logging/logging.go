package logging

import (
	"log/slog"
	"os"
)

// Init configures the default slog logger. The CLI keeps quiet by default
// so log lines don't tear the terminal UI; LOG_LEVEL overrides.
func Init() {
	initWithDefault(slog.LevelError)
}

// InitServer is Init for the relay binary, where info logging is the
// useful default.
func InitServer() {
	initWithDefault(slog.LevelInfo)
}

func initWithDefault(level slog.Level) {
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}
