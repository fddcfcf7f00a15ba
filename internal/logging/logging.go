// Package logging provides the leveled, stdlib-backed logger used across
// merklesentry. It wraps the standard log package the same way the teacher
// codebase called log.Printf directly, adding only the level filter the
// configuration names (error, warn, info, debug).
package logging

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Level is an ordered verbosity level.
type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// ParseLevel maps a configuration string to a Level, defaulting to Info for
// anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "error":
		return LevelError
	case "warn":
		return LevelWarn
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Logger is a minimal leveled logger. The zero value is not usable; use New.
type Logger struct {
	level atomic.Int32
	std   *log.Logger
}

// New creates a Logger writing to w (os.Stderr in production) at the given
// level. Lower-priority messages are dropped before formatting.
func New(w io.Writer, level Level) *Logger {
	l := &Logger{std: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
	l.level.Store(int32(level))
	return l
}

// Default returns a Logger at LevelInfo writing to stderr, the same
// destination the teacher's main.go logged to via the standard log package.
func Default() *Logger { return New(os.Stderr, LevelInfo) }

// SetLevel changes the active verbosity at runtime.
func (l *Logger) SetLevel(level Level) { l.level.Store(int32(level)) }

func (l *Logger) enabled(level Level) bool { return level <= Level(l.level.Load()) }

func (l *Logger) log(level Level, prefix, format string, args ...interface{}) {
	if !l.enabled(level) {
		return
	}
	l.std.Printf("["+prefix+"] "+format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, "error", format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(LevelWarn, "warn", format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(LevelInfo, "info", format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, "debug", format, args...) }

// With returns a Logger whose messages are prefixed with component, useful
// for per-package loggers (scheduler, sync, ...) sharing one sink and level.
func (l *Logger) With(component string) *Component {
	return &Component{parent: l, component: component}
}

// Component is a Logger scoped to a named subsystem.
type Component struct {
	parent    *Logger
	component string
}

func (c *Component) Errorf(format string, args ...interface{}) {
	c.parent.log(LevelError, "error", "%s: "+format, append([]interface{}{c.component}, args...)...)
}

func (c *Component) Warnf(format string, args ...interface{}) {
	c.parent.log(LevelWarn, "warn", "%s: "+format, append([]interface{}{c.component}, args...)...)
}

func (c *Component) Infof(format string, args ...interface{}) {
	c.parent.log(LevelInfo, "info", "%s: "+format, append([]interface{}{c.component}, args...)...)
}

func (c *Component) Debugf(format string, args ...interface{}) {
	c.parent.log(LevelDebug, "debug", "%s: "+format, append([]interface{}{c.component}, args...)...)
}
