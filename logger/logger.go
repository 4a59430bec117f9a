// Package logger provides structured logging for the Rover mail
// access server. It wraps log/slog and supports console, file, and
// syslog outputs selected from configuration.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"log/syslog"
	"os"
	"runtime"

	"github.com/rovermail/rover/config"
)

var globalLogger *slog.Logger

// syslogHandler adapts a syslog.Writer to slog.Handler.
type syslogHandler struct {
	writer *syslog.Writer
	level  slog.Level
	attrs  []slog.Attr
}

func (h *syslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *syslogHandler) Handle(_ context.Context, r slog.Record) error {
	msg := r.Message
	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		kv := make([]any, 0, len(h.attrs)*2+r.NumAttrs()*2)
		for _, a := range h.attrs {
			kv = append(kv, a.Key, a.Value.Any())
		}
		r.Attrs(func(a slog.Attr) bool {
			kv = append(kv, a.Key, a.Value.Any())
			return true
		})
		msg = fmt.Sprintf("%s %v", msg, kv)
	}
	switch r.Level {
	case slog.LevelDebug:
		return h.writer.Debug(msg)
	case slog.LevelWarn:
		return h.writer.Warning(msg)
	case slog.LevelError:
		return h.writer.Err(msg)
	default:
		return h.writer.Info(msg)
	}
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &syslogHandler{writer: h.writer, level: h.level, attrs: merged}
}

func (h *syslogHandler) WithGroup(string) slog.Handler { return h }

// Initialize sets up the global logger from configuration. When the
// output is a file path the returned *os.File must be closed by the
// caller at shutdown; it is nil for the other outputs.
func Initialize(cfg config.LoggingConfig) (*os.File, error) {
	output := cfg.Output
	if output == "" {
		output = "stderr"
	}
	level := parseLogLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	stderrHandler := func() slog.Handler {
		if cfg.Format == "json" {
			return slog.NewJSONHandler(os.Stderr, opts)
		}
		return slog.NewTextHandler(os.Stderr, opts)
	}

	var handler slog.Handler
	var logFile *os.File

	switch output {
	case "stdout":
		if cfg.Format == "json" {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(os.Stdout, opts)
		}
	case "stderr":
		handler = stderrHandler()
	case "syslog":
		if runtime.GOOS == "windows" {
			fmt.Fprintln(os.Stderr, "WARNING: syslog unsupported on this platform, using stderr")
			handler = stderrHandler()
			break
		}
		w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_MAIL, "rover")
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: syslog unavailable (%v), using stderr\n", err)
			handler = stderrHandler()
			break
		}
		handler = &syslogHandler{writer: w, level: level}
	default:
		// Treat the output as a file path.
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: cannot open log file %s (%v), using stderr\n", output, err)
			handler = stderrHandler()
			break
		}
		logFile = f
		if cfg.Format == "json" {
			handler = slog.NewJSONHandler(f, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
	return logFile, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
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

// Get returns the global logger instance.
func Get() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// Fatal logs at error level and exits.
func Fatal(msg string, args ...any) {
	Get().Error(msg, args...)
	os.Exit(1)
}

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Get().With(args...)
}
