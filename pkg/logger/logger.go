// Package logger is a small leveled wrapper over the standard logger.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// Level is the logging level.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Off
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "OFF"
	}
}

// Logger writes "[ts] [LEVEL] msg" lines at or above its level.
type Logger struct {
	level  Level
	logger *log.Logger
	closer io.Closer
}

var global atomic.Pointer[Logger]

func init() {
	global.Store(New(os.Stderr, Info))
}

// New returns a logger writing to w.
func New(w io.Writer, level Level) *Logger {
	return &Logger{level: level, logger: log.New(w, "", 0)}
}

// Init configures the global logger. Logs go to stderr unless a file is
// given; console additionally mirrors file output to stderr. Stdout is
// left for command output.
func Init(levelStr, logFile string, console bool) error {
	level := ParseLevel(levelStr)
	var writers []io.Writer
	var closer io.Closer

	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	if console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	l := New(io.MultiWriter(writers...), level)
	l.closer = closer
	if prev := global.Swap(l); prev != nil && prev.closer != nil {
		prev.closer.Close()
	}
	return nil
}

// SetDefault replaces the global logger.
func SetDefault(l *Logger) {
	global.Store(l)
}

// Default returns the global logger.
func Default() *Logger {
	return global.Load()
}

// ParseLevel maps a level name to a Level, defaulting to Info.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return Debug
	case "info", "":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	case "off", "none", "quiet":
		return Off
	default:
		return Info
	}
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.level && l.level != Off
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Printf("[%s] [%s] %s", ts, level, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(Debug, format, args...) }

// Infof logs an info message.
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(Info, format, args...) }

// Warnf logs a warning.
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(Warn, format, args...) }

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(Error, format, args...) }

// Debugf logs a debug message to the global logger.
func Debugf(format string, args ...interface{}) { Default().logf(Debug, format, args...) }

// Infof logs an info message to the global logger.
func Infof(format string, args ...interface{}) { Default().logf(Info, format, args...) }

// Warnf logs a warning to the global logger.
func Warnf(format string, args ...interface{}) { Default().logf(Warn, format, args...) }

// Errorf logs an error message to the global logger.
func Errorf(format string, args ...interface{}) { Default().logf(Error, format, args...) }
