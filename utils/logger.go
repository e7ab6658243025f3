package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Level is the minimum severity a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	infoTag  = color.New(color.FgGreen).Sprint("INFO ")
	warnTag  = color.New(color.FgYellow).Sprint("WARN ")
	errorTag = color.New(color.FgRed).Sprint("ERROR")
	debugTag = color.New(color.FgCyan).Sprint("DEBUG")
)

// Logger provides structured, leveled logging throughout the application.
type Logger struct {
	level Level
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	debug *log.Logger
}

// NewLogger creates a new Logger writing to stdout/stderr at info level.
func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, os.Stderr, LevelInfo)
}

// NewLoggerTo creates a Logger with explicit writers and minimum level.
func NewLoggerTo(out, errOut io.Writer, level Level) *Logger {
	flags := 0
	return &Logger{
		level: level,
		info:  log.New(out, "", flags),
		warn:  log.New(out, "", flags),
		err:   log.New(errOut, "", flags),
		debug: log.New(out, "", flags),
	}
}

// NewDiscardLogger returns a Logger that drops everything. Used by tests.
func NewDiscardLogger() *Logger {
	return NewLoggerTo(io.Discard, io.Discard, LevelError+1)
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) write(dst *log.Logger, min Level, tag, format string, args ...any) {
	if l.level > min {
		return
	}
	dst.Printf("[%s] %s %s", l.timestamp(), tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.write(l.info, LevelInfo, infoTag, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.write(l.warn, LevelWarn, warnTag, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.write(l.err, LevelError, errorTag, format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.write(l.debug, LevelDebug, debugTag, format, args...)
}
