package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
)

// ServiceName is the value of the "service" field on every entry.
const ServiceName = "rvcbridge"

// Logger wraps slog.Logger with bridge-specific defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from configuration. debug forces the debug level.
//
// The returned close function releases a log file when output is a path; it
// is a no-op for stdout and stderr.
func New(cfg config.LoggingConfig, version string, debug bool) (*Logger, func() error, error) {
	closeFn := func() error { return nil }

	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // operator supplied path
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		output = f
		closeFn = f.Close
	}

	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	return NewWithWriter(output, cfg.Format, level, version), closeFn, nil
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer, format string, level slog.Level, version string) *Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
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

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a logger for use before configuration is loaded.
func Default() *Logger {
	return NewWithWriter(os.Stdout, "json", slog.LevelInfo, "dev")
}
