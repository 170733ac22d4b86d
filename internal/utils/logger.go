package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents an enumeration of log levels
type LogLevel int

const (
	Critical LogLevel = 50
	Error    LogLevel = 40
	Warning  LogLevel = 30
	Info     LogLevel = 20
	Debug    LogLevel = 10
	NotSet   LogLevel = 0
)

var (
	defaultLevel  LogLevel  = Warning
	defaultOutput io.Writer = os.Stdout
	defaultsMutex sync.RWMutex
)

// SetDefaultLogLevel sets the level used by loggers created afterwards.
func SetDefaultLogLevel(level LogLevel) {
	defaultsMutex.Lock()
	defer defaultsMutex.Unlock()
	defaultLevel = level
}

// SetDefaultOutput redirects loggers created afterwards.
func SetDefaultOutput(w io.Writer) {
	defaultsMutex.Lock()
	defer defaultsMutex.Unlock()
	defaultOutput = w
}

// ParseLogLevel maps a level name (debug, info, warn, error, critical) to a
// LogLevel. Unknown names return Warning and false.
func ParseLogLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return Debug, true
	case "info":
		return Info, true
	case "warn", "warning":
		return Warning, true
	case "error":
		return Error, true
	case "critical", "fatal":
		return Critical, true
	}
	return Warning, false
}

// Logger provides structured logging with context
type Logger struct {
	prefix   string
	logger   *log.Logger
	logLevel LogLevel
	mu       sync.RWMutex
}

// NewLogger creates a new logger with a given prefix
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	defaultsMutex.RLock()
	level, out := defaultLevel, defaultOutput
	defaultsMutex.RUnlock()

	if len(logLevel) > 0 {
		level = logLevel[0]
	}
	return &Logger{
		prefix:   prefix,
		logger:   log.New(out, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		logLevel: level,
	}
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logLevel = logLevel
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(Info, "INFO", msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(Error, "ERROR", msg, keyvals...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(Warning, "WARN", msg, keyvals...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(Debug, "DEBUG", msg, keyvals...)
}

func (l *Logger) log(level LogLevel, label, msg string, keyvals ...interface{}) {
	l.mu.RLock()
	enabled := l.logLevel <= level
	l.mu.RUnlock()
	if !enabled {
		return
	}
	l.logger.Println(formatMessage(label, msg, keyvals...))
}

// formatMessage formats a message with key-value pairs
func formatMessage(level, msg string, keyvals ...interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	return b.String()
}
