// Package log provides leveled, categorized key=value logging for the
// hub. Disabled by default; enabled via --debug or AISH_DEBUG.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Category groups related log lines.
type Category string

const (
	CatEngine   Category = "engine"
	CatSched    Category = "sched"
	CatFilter   Category = "filter"
	CatCoverage Category = "coverage"
	CatProvider Category = "provider"
	CatCache    Category = "cache"
	CatWatch    Category = "watch"
	CatConfig   Category = "config"
)

type logger struct {
	mu       sync.Mutex
	writer   io.Writer
	enabled  bool
	minLevel Level
}

var std = &logger{writer: os.Stderr, minLevel: LevelDebug}

// SetEnabled toggles logging globally.
func SetEnabled(enabled bool) {
	std.mu.Lock()
	std.enabled = enabled
	std.mu.Unlock()
}

// SetOutput redirects log lines, e.g. to a file for the watch command.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.writer = w
	std.mu.Unlock()
}

// SetMinLevel raises the logging floor.
func SetMinLevel(level Level) {
	std.mu.Lock()
	std.minLevel = level
	std.mu.Unlock()
}

func Debug(cat Category, msg string, fields ...any) { write(LevelDebug, cat, msg, fields...) }
func Info(cat Category, msg string, fields ...any)  { write(LevelInfo, cat, msg, fields...) }
func Warn(cat Category, msg string, fields ...any)  { write(LevelWarn, cat, msg, fields...) }
func Error(cat Category, msg string, fields ...any) { write(LevelError, cat, msg, fields...) }

// ErrorErr logs an error with the error value attached.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	write(LevelError, cat, msg, fields...)
}

func write(level Level, cat Category, msg string, fields ...any) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if !std.enabled || level < std.minLevel || std.writer == nil {
		return
	}

	// 2026-01-02T15:04:05 [INFO] [sched] message key=value
	entry := fmt.Sprintf("%s [%s] [%s] %s",
		time.Now().Format("2006-01-02T15:04:05"), level, cat, msg)
	for i := 0; i+1 < len(fields); i += 2 {
		entry += fmt.Sprintf(" %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		entry += fmt.Sprintf(" %v=<missing>", fields[len(fields)-1])
	}
	fmt.Fprintln(std.writer, entry)
}
