package utils

import (
	"fmt"
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

// Logger provides structured logging with a component prefix
type Logger struct {
	prefix        string
	logger        *log.Logger
	logLevel      LogLevel
	logLevelMutex sync.Mutex
}

// NewLogger creates a new logger with a given prefix
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	logLevelValue := Info
	if len(logLevel) > 0 {
		logLevelValue = logLevel[0]
	}
	return &Logger{
		prefix:   prefix,
		logger:   log.New(os.Stdout, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		logLevel: logLevelValue,
	}
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.logLevelMutex.Lock()
	defer l.logLevelMutex.Unlock()
	l.logLevel = logLevel
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.logAt(Debug, "DEBUG", msg, keyvals...)
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.logAt(Info, "INFO", msg, keyvals...)
}

// Warning logs a warning message
func (l *Logger) Warning(msg string, keyvals ...interface{}) {
	l.logAt(Warning, "WARN", msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.logAt(Error, "ERROR", msg, keyvals...)
}

// Critical logs a critical message
func (l *Logger) Critical(msg string, keyvals ...interface{}) {
	l.logAt(Critical, "CRITICAL", msg, keyvals...)
}

func (l *Logger) logAt(level LogLevel, tag string, msg string, keyvals ...interface{}) {
	l.logLevelMutex.Lock()
	defer l.logLevelMutex.Unlock()
	if l.logLevel > level {
		return
	}
	l.logger.Println(l.formatMessage(tag, msg, keyvals...))
}

func (l *Logger) formatMessage(tag string, msg string, keyvals ...interface{}) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", tag, msg))
	for i := 0; i+1 < len(keyvals); i += 2 {
		b.WriteString(fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1]))
	}
	if len(keyvals)%2 == 1 {
		b.WriteString(fmt.Sprintf(" %v", keyvals[len(keyvals)-1]))
	}
	return b.String()
}
