// Package cmdlogger is the slog handler used by the depscan CLI, plus
// printf-style helpers that log through the default logger.
//
// Info and debug records go to stdout; warnings and errors go to stderr.
package cmdlogger

import (
	"fmt"
	"log/slog"
)

type CmdLogger interface {
	slog.Handler
	SendEverythingToStderr()
	HasErrored() bool
	HasErroredBecauseInvalidConfig() bool
	Warnings() int
	SetLevel(level slog.Leveler)
}

func Debugf(msg string, args ...any) {
	slog.Debug(fmt.Sprintf(msg, args...))
}

func Infof(msg string, args ...any) {
	slog.Info(fmt.Sprintf(msg, args...))
}

func Warnf(msg string, args ...any) {
	slog.Warn(fmt.Sprintf(msg, args...))
}

func Errorf(msg string, args ...any) {
	slog.Error(fmt.Sprintf(msg, args...))
}

func current() (CmdLogger, bool) {
	l, ok := slog.Default().Handler().(CmdLogger)

	return l, ok
}

// SendEverythingToStderr routes all records to stderr, for when stdout
// carries structured output such as a JSON report.
func SendEverythingToStderr() {
	if l, ok := current(); ok {
		l.SendEverythingToStderr()
	}
}

// HasErrored reports whether an error has been logged through the default
// logger. It is always false when the default handler is not a CmdLogger.
func HasErrored() bool {
	l, ok := current()

	return ok && l.HasErrored()
}

func SetLevel(level slog.Leveler) {
	if l, ok := current(); ok {
		l.SetLevel(level)
	}
}
