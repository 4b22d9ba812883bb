package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "smarthouse"

// textTimeLayout keeps text output aligned: millisecond precision, fixed width.
const textTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Logger is the service logger: an slog.Logger carrying the service and
// version fields.
//
// It satisfies the Logger interfaces of powerswitch, thermometer, mqtt
// and api, so those packages never import this one.
//
// Thread Safety: All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the output named in cfg ("stdout" or
// "stderr", default stdout).
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputFor(cfg.Output))
}

// NewWithWriter creates a Logger writing to w. cfg.Output is ignored.
//
// Parameters:
//   - cfg: Level ("debug", "info", "warn", "error") and format ("json", "text")
//   - version: Reported in the version field of every entry
//   - w: Destination of the encoded entries
//
// Returns:
//   - *Logger: Ready to use
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		// Source locations only pay off when chasing a bug.
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		opts.ReplaceAttr = formatTextTime
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler).With(
		slog.String("service", ServiceName),
		slog.String("version", version),
	)}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// formatTextTime renders the top-level timestamp with textTimeLayout.
func formatTextTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.String(slog.TimeKey, a.Value.Time().Format(textTimeLayout))
	}
	return a
}

// parseLevel maps a configured level name to a slog.Level.
// Unknown names mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// With returns a child Logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags entries with the emitting subsystem, e.g. "mqtt".
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Device tags entries with a subsystem and the device it serves:
//
//	log.Device("thermometer", "living-room-thermometer").Info("started")
func (l *Logger) Device(component, deviceID string) *Logger {
	return l.With("component", component, "device_id", deviceID)
}

// Discard returns a Logger that drops everything. Tests use it.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// Default creates a logger for use before configuration is loaded:
// JSON on stdout at info level.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "dev", os.Stdout)
}

// Since formats the time elapsed since start, rounded to milliseconds.
func Since(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
