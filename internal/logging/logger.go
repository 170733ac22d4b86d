package logging

import (
	"log"
	"os"
	"strings"
	"sync"

	"unified_gateway/internal/utils"
)

const (
	Critical = 50
	Fatal    = Critical
	Error    = 40
	Warning  = 30
	Info     = 20
	Debug    = 10
	NotSet   = 0
)

var (
	logLevel      int = Warning
	logLevelMutex sync.RWMutex
)

func init() {
	localEnv := os.Getenv("LOCAL")
	if strings.ToLower(localEnv) == "true" || localEnv == "1" {
		SetLogLevel(Debug)
	}
	if level, ok := utils.ParseLogLevel(os.Getenv("LOG_LEVEL")); ok {
		SetLogLevel(int(level))
	}
}

// SetLogLevel sets the package level and the default for component loggers
// created through utils.NewLogger.
func SetLogLevel(level int) {
	logLevelMutex.Lock()
	logLevel = level
	logLevelMutex.Unlock()
	utils.SetDefaultLogLevel(utils.LogLevel(level))
}

// LogLevel returns the current package level.
func LogLevel() int {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return logLevel
}

func logf(level int, label, format string, v ...interface{}) {
	if LogLevel() <= level {
		log.Printf("["+label+"] "+format, v...)
	}
}

func Debugf(format string, v ...interface{}) {
	logf(Debug, "DEBUG", format, v...)
}

func Infof(format string, v ...interface{}) {
	logf(Info, "INFO", format, v...)
}

func Warningf(format string, v ...interface{}) {
	logf(Warning, "WARN", format, v...)
}

func Errorf(format string, v ...interface{}) {
	logf(Error, "ERROR", format, v...)
}

func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
