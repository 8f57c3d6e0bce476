// Copyright 2019 Lanikai Labs. All rights reserved.

// Package logging provides the leveled, tag-scoped logger used throughout
// this module. Each package derives its own logger with WithTag; verbosity
// is set per tag via the LOGLEVEL environment variable (see levelConfig).
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

const timestampFormat = "15:04:05.000"

var env = parseEnv(os.Getenv("LOGLEVEL"))

var levelColors = map[Level]*color.Color{
	LevelError: color.New(color.FgRed, color.Bold),
	LevelWarn:  color.New(color.FgYellow, color.Bold),
	LevelInfo:  color.New(color.FgGreen),
	LevelDebug: color.New(color.FgCyan),
}

// Logger writes timestamped, level-prefixed lines for one tag. Derived
// loggers share a single mutex so concurrent goroutines never interleave
// partial lines.
type Logger struct {
	Tag string

	level Level
	out   io.Writer
	mu    *sync.Mutex
}

// DefaultLogger writes to stderr at the LOGLEVEL default verbosity.
// Packages derive from it with WithTag rather than using it directly.
var DefaultLogger = &Logger{level: env.fallback, out: os.Stderr, mu: new(sync.Mutex)}

// WithTag derives a logger scoped to tag, at the verbosity LOGLEVEL
// configures for that tag.
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{Tag: tag, level: env.levelFor(tag), out: l.out, mu: l.mu}
}

// SetDestination redirects this logger's output, e.g. into a test buffer.
func (l *Logger) SetDestination(out io.Writer) {
	l.out = out
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level > l.level {
		return
	}

	prefix := levelColors[level].Sprintf("%-5s", level)
	timestamp := time.Now().Format(timestampFormat)
	message := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Tag != "" {
		fmt.Fprintf(l.out, "%s %s [%s] %s\n", timestamp, prefix, l.Tag, message)
	} else {
		fmt.Fprintf(l.out, "%s %s %s\n", timestamp, prefix, message)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}
