package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
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

// ParseLevel maps a config value to a Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	name   string
	level  Level
	mu     sync.Mutex
	writer io.Writer
}

var (
	registryMu sync.Mutex
	registry   []*Logger
)

func NewLogger(name string, level string, writer io.Writer) *Logger {
	if writer == nil {
		writer = os.Stdout
	}
	l := &Logger{
		name:   name,
		level:  ParseLevel(level),
		writer: writer,
	}
	registryMu.Lock()
	registry = append(registry, l)
	registryMu.Unlock()
	return l
}

// Configure applies level and writer to every logger created so far.
func Configure(level string, writer io.Writer) {
	registryMu.Lock()
	loggers := append([]*Logger(nil), registry...)
	registryMu.Unlock()
	for _, l := range loggers {
		l.SetLevel(level)
		l.SetOutput(writer)
	}
}

func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	l.level = ParseLevel(level)
	l.mu.Unlock()
}

func (l *Logger) SetOutput(writer io.Writer) {
	if writer == nil {
		writer = os.Stdout
	}
	l.mu.Lock()
	l.writer = writer
	l.mu.Unlock()
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	_, _ = fmt.Fprintf(l.writer, "[%s][%s][%s] %s\n", ts, level, l.name, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }
