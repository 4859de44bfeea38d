// Package logger provides the level-filtered logging used across the FMM
// engine and its CLI driver.
package logger

import (
	"fmt"
	"log"
	"os"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Logger provides structured logging. tag is prepended to every line, used
// by the distributed engine to stamp log output with a peer rank.
type Logger struct {
	level  LogLevel
	tag    string
	logger *log.Logger
}

var defaultLogger *Logger

func init() {
	defaultLogger = New(INFO)
}

// New creates a new logger instance
func New(level LogLevel) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// WithTag returns a copy of the logger that prefixes every message with tag,
// e.g. logger.New(logger.INFO).WithTag(fmt.Sprintf("peer%d", rank)).
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{level: l.level, tag: tag, logger: l.logger}
}

// Tag returns the logger's prefix, or "" if it has none.
func (l *Logger) Tag() string { return l.tag }

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	defaultLogger.level = level
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log("DEBUG", format, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level <= INFO {
		l.log("INFO", format, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level <= WARN {
		l.log("WARN", format, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.level <= ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *Logger) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.tag != "" {
		l.logger.Output(3, fmt.Sprintf("[%s] [%s] %s", level, l.tag, msg))
		return
	}
	l.logger.Output(3, fmt.Sprintf("[%s] %s", level, msg))
}