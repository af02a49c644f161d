// Package klog provides the structured, leveled logging used for
// async-call lifecycle events (setup, teardown, executor state
// transitions, fatal invariant violations). It wraps charmbracelet/log
// the way the rest of the pack wires that library in for CLI and
// service output, giving the kernel side of this module the same
// logging texture.
package klog

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the structured logger used throughout the module. Tests
// and embedders may swap it for one with a different writer/level.
var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "asynccall",
})

// Fatal logs msg and keyvals at error level, then panics with msg. It
// is the only path by which this module panics (spec.md §7 tier 4): a
// panic is always preceded by a log line naming the invariant that
// broke. Unlike log.Logger.Fatal this does not call os.Exit: the panic
// unwinds the calling goroutine (an executor completion task, or
// Teardown's caller) like any other Go panic.
func Fatal(msg string, keyvals ...any) {
	Logger.Error(msg, keyvals...)
	panic(msg)
}

// Error logs msg and keyvals at error level.
func Error(msg string, keyvals ...any) {
	Logger.Error(msg, keyvals...)
}

// Info logs msg and keyvals at info level.
func Info(msg string, keyvals ...any) {
	Logger.Info(msg, keyvals...)
}

// Debug logs msg and keyvals at debug level.
func Debug(msg string, keyvals ...any) {
	Logger.Debug(msg, keyvals...)
}
