// Package logging provides the leveled line logger shared by all components.
// Loggers are injected at construction; nothing in the pipeline logs through
// a global.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes "TIMESTAMP LEVEL component: message" lines above the
// configured level.
type Logger struct {
	l         *log.Logger
	level     Level
	component string
}

// New creates a Logger writing to w.
func New(w io.Writer, level Level, component string) *Logger {
	return &Logger{l: log.New(w, "", 0), level: level, component: component}
}

// WithComponent returns a Logger sharing the same sink and level under a
// different component name.
func (lg *Logger) WithComponent(component string) *Logger {
	return &Logger{l: lg.l, level: lg.level, component: component}
}

func (lg *Logger) Debugf(format string, args ...any) { lg.logf(LevelDebug, format, args...) }
func (lg *Logger) Infof(format string, args ...any)  { lg.logf(LevelInfo, format, args...) }
func (lg *Logger) Warnf(format string, args ...any)  { lg.logf(LevelWarn, format, args...) }
func (lg *Logger) Errorf(format string, args ...any) { lg.logf(LevelError, format, args...) }

func (lg *Logger) logf(level Level, format string, args ...any) {
	if level < lg.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	lg.l.Printf("%s %s %s: %s", time.Now().Format(time.RFC3339), level, lg.component, msg)
}
