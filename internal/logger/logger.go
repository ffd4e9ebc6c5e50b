// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package logger provides a small leveled logger for runner-level
// diagnostics (configuration errors, fatal signal-plane events, fork
// failures) as distinct from per-test output, which flows through
// internal/progress and internal/journal instead.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"go.vmtest.dev/runner/internal/color"
)

// LogLevel is the minimum severity a Logger will emit.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

// Set implements flag.Value so LogLevel can be used directly as a flag.
func (l *LogLevel) Set(s string) error {
	switch s {
	case "debug":
		*l = DebugLevel
	case "info":
		*l = InfoLevel
	case "warn":
		*l = WarnLevel
	case "error":
		*l = ErrorLevel
	case "fatal":
		*l = FatalLevel
	default:
		return fmt.Errorf("unknown log level %q", s)
	}
	return nil
}

const flags = log.Ldate | log.Lmicroseconds

// Logger writes leveled, optionally colorized lines to separate out/err
// streams; Fatal exits the process after logging.
type Logger struct {
	level         LogLevel
	color         *color.Color
	goLogger      *log.Logger
	goErrorLogger *log.Logger
	prefix        string
}

// NewLogger constructs a Logger. out/err may be nil to discard that stream.
func NewLogger(level LogLevel, c *color.Color, out, err io.Writer, prefix string) *Logger {
	if out == nil {
		out = io.Discard
	}
	if err == nil {
		err = io.Discard
	}
	return &Logger{
		level:         level,
		color:         c,
		goLogger:      log.New(out, prefix, flags),
		goErrorLogger: log.New(err, prefix, flags),
		prefix:        prefix,
	}
}

func (l *Logger) SetFlags(f int) {
	l.goLogger.SetFlags(f)
	l.goErrorLogger.SetFlags(f)
}

func (l *Logger) logf(level LogLevel, w *log.Logger, colorize func(string, ...interface{}) string, format string, a ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, a...)
	w.Output(3, colorize("%s: %s", level, msg))
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	l.logf(DebugLevel, l.goLogger, l.color.DefaultColor, format, a...)
}

func (l *Logger) Infof(format string, a ...interface{}) {
	l.logf(InfoLevel, l.goLogger, l.color.Green, format, a...)
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	l.logf(WarnLevel, l.goErrorLogger, l.color.Yellow, format, a...)
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	l.logf(ErrorLevel, l.goErrorLogger, l.color.Red, format, a...)
}

// Fatalf logs at FatalLevel and exits the process with status 1.
func (l *Logger) Fatalf(format string, a ...interface{}) {
	l.logf(FatalLevel, l.goErrorLogger, l.color.Red, format, a...)
	os.Exit(1)
}

type globalLoggerKeyType struct{}

// WithLogger attaches l to ctx for retrieval via FromContext.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, globalLoggerKeyType{}, l)
}

// FromContext returns the Logger attached to ctx, or a default logger
// writing to stderr at InfoLevel if none is attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(globalLoggerKeyType{}).(*Logger); ok && l != nil {
		return l
	}
	return NewLogger(InfoLevel, color.NewColor(color.ColorNever), nil, os.Stderr, "")
}
