//go:build !tinygo

package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

func defaultLogger() Logger {
	return NewTint(os.Stderr, slog.LevelInfo)
}

// NewTint returns a colorized slog logger writing to w.
func NewTint(w io.Writer, level slog.Level) Logger {
	h := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})
	return NewSlog(slog.New(h))
}

// slogLogger adapts a *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// NewSlog wraps l so that it can be installed with SetLogger.
func NewSlog(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string) { s.l.Debug(msg) }
func (s *slogLogger) Info(msg string)  { s.l.Info(msg) }
func (s *slogLogger) Warn(msg string)  { s.l.Warn(msg) }
func (s *slogLogger) Error(msg string) { s.l.Error(msg) }

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (allowed: debug, info, warn, error)", s)
	}
}
