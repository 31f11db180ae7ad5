package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel orders messages by severity; lower is more verbose.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l LogLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("unknown(%d)", int(l))
}

func (l LogLevel) tag() string {
	return "[" + strings.ToUpper(l.String()) + "] "
}

// ParseLevel accepts the LOG_LEVEL names, case-insensitively. Empty means
// info; so does an unknown name, which is also reported as an error.
func ParseLevel(s string) (LogLevel, error) {
	switch name := strings.ToLower(strings.TrimSpace(s)); name {
	case "":
		return LevelInfo, nil
	case "warning":
		return LevelWarn, nil
	default:
		for l, n := range levelNames {
			if n == name {
				return LogLevel(l), nil
			}
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

var (
	level     atomic.Int32
	levelInit sync.Once
)

// envLevel reads DEBUG, which wins when truthy, then LOG_LEVEL.
func envLevel() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	l, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	return l
}

// GetLevel returns the active level, read from the environment on first use.
func GetLevel() LogLevel {
	levelInit.Do(func() { level.Store(int32(envLevel())) })
	return LogLevel(level.Load())
}

// SetLevel replaces the level from the environment.
func SetLevel(l LogLevel) {
	levelInit.Do(func() {})
	level.Store(int32(l))
}

func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logAt(l LogLevel, prefix, format string, args []any) {
	if GetLevel() > l {
		return
	}
	log.Printf(l.tag()+prefix+format, args...)
}

func Debug(format string, args ...any) { logAt(LevelDebug, "", format, args) }
func Info(format string, args ...any)  { logAt(LevelInfo, "", format, args) }
func Warn(format string, args ...any)  { logAt(LevelWarn, "", format, args) }
func Error(format string, args ...any) { logAt(LevelError, "", format, args) }

// Fatal logs regardless of level and exits with status 1.
func Fatal(format string, args ...any) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf logs without a level tag, regardless of level.
func Printf(format string, args ...any) {
	log.Printf(format, args...)
}

// Logger tags every message with a component, e.g. "[batch:exif]".
type Logger struct {
	prefix string
}

// Named returns the Logger for component.
func Named(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) Debug(format string, args ...any) { logAt(LevelDebug, l.prefix, format, args) }
func (l *Logger) Info(format string, args ...any)  { logAt(LevelInfo, l.prefix, format, args) }
func (l *Logger) Warn(format string, args ...any)  { logAt(LevelWarn, l.prefix, format, args) }
func (l *Logger) Error(format string, args ...any) { logAt(LevelError, l.prefix, format, args) }

// Printf logs at info level, so a Logger can back cron.PrintfLogger.
func (l *Logger) Printf(format string, args ...any) {
	logAt(LevelInfo, l.prefix, format, args)
}
