package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/hearth-core/internal/infrastructure/config"
)

// Logger is a thin wrapper over slog.Logger carrying the service defaults.
// Components derive their own with With("component", ...).
type Logger struct {
	*slog.Logger
}

// New builds the process logger from config. JSON to stdout is the default;
// text format is for watching the control loop in a terminal during
// development.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "hearth"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel accepts debug, info, warn/warning, and error. Anything else
// falls back to info rather than failing startup.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a derived Logger with extra default attributes, typically a
// component tag.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used before the config file has been
// read. JSON, info level, stdout.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
