package logging

import (
	"log/slog"
	"os"
)

var Logger *slog.Logger

func init() {
	level := slog.LevelInfo
	if os.Getenv("CIPHER_DEBUG") != "" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	Logger = slog.New(handler)
}

func WithComponent(component string) *slog.Logger {
	return Logger.With("component", component)
}
