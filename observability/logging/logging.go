package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tunes the handler returned by Setup. The zero value logs JSON to
// stdout at info level.
type Options struct {
	// Format selects "json" (default) or "text" for colourised console output.
	Format string
	// File routes output through a size-rotated log file instead of stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      slog.Level
	// Output overrides the destination; used by tests.
	Output io.Writer
}

// Setup configures the standard library logger to emit structured logs and
// returns the underlying slog.Logger. All log lines include the service name
// and environment when provided.
func Setup(service, env string, opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
		if path := strings.TrimSpace(opts.File); path != "" {
			out = &lumberjack.Logger{
				Filename:   path,
				MaxSize:    positiveOr(opts.MaxSizeMB, 100),
				MaxBackups: positiveOr(opts.MaxBackups, 5),
				MaxAge:     positiveOr(opts.MaxAgeDays, 28),
				Compress:   true,
			}
		}
	}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "text", "console":
		handler = tint.NewHandler(out, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.RFC3339,
			NoColor:    opts.File != "" || opts.Output != nil,
		})
	default:
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       opts.Level,
			ReplaceAttr: replaceJSONAttr,
		})
	}

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	handler = handler.WithAttrs(attrs)

	base := slog.New(handler)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler, slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func replaceJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		return slog.Attr{Key: "timestamp", Value: attr.Value}
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		return slog.Attr{Key: "message", Value: attr.Value}
	}
	return attr
}

// ParseLevel maps configuration strings onto slog levels.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
