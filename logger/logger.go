// Package logger holds the process-wide logger used by the node packages.
//
// Messages are plain strings instead of format strings: this keeps fmt out of
// the hot paths and reduces binary size and allocations under TinyGo.
package logger

import (
	"sync/atomic"
)

// Logger defines the logging interface for simple string messages.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type holder struct{ l Logger }

var global atomic.Pointer[holder]

func init() {
	global.Store(&holder{l: defaultLogger()})
}

// SetLogger sets the global logger instance. A nil logger discards everything.
func SetLogger(l Logger) {
	if l == nil {
		l = Nop()
	}
	global.Store(&holder{l: l})
}

// Get returns the current global logger.
func Get() Logger {
	return global.Load().l
}

func Debug(msg string) { Get().Debug(msg) }
func Info(msg string)  { Get().Info(msg) }
func Warn(msg string)  { Get().Warn(msg) }
func Error(msg string) { Get().Error(msg) }

// Nop returns a logger that does nothing.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}
