package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity levels
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a string to a Level
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Logger is a structured logger backed by zerolog. Loggers are immutable;
// the With* methods return derived copies.
type Logger struct {
	zl    zerolog.Logger
	level Level
}

// Config holds logger configuration
type Config struct {
	Level       string `json:"level"`
	Output      string `json:"output"` // "stdout", "stderr", or file path
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"` // Include file and line number
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
	once          sync.Once
)

// New creates a new logger with the given configuration
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout

	if cfg.Output == "stderr" {
		output = os.Stderr
	} else if cfg.Output != "" && cfg.Output != "stdout" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = file
		}
	}

	return NewWithWriter(cfg, output)
}

// NewWithWriter creates a logger that writes to w regardless of cfg.Output.
func NewWithWriter(cfg *Config, w io.Writer) *Logger {
	if !cfg.JSONFormat {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level := ParseLevel(cfg.Level)
	zctx := zerolog.New(w).Level(level.zerolog()).With().Timestamp()
	if cfg.Component != "" {
		zctx = zctx.Str("component", cfg.Component)
	}
	if cfg.IncludeFile {
		// Info -> log -> Msg
		zctx = zctx.CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2)
	}

	return &Logger{zl: zctx.Logger(), level: level}
}

// Default returns the default logger instance
func Default() *Logger {
	once.Do(func() {
		defaultMu.Lock()
		defaultLogger = New(&Config{
			Level:      "INFO",
			Output:     "stdout",
			Component:  "app",
			JSONFormat: true,
		})
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	once.Do(func() {})
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Level returns the minimum level this logger emits.
func (l *Logger) Level() Level {
	return l.level
}

// WithComponent returns a new logger with the specified component
func (l *Logger) WithComponent(component string) *Logger {
	return l.derive(l.zl.With().Str("component", component))
}

// WithTraceID returns a new logger with the specified trace ID
func (l *Logger) WithTraceID(traceID string) *Logger {
	return l.derive(l.zl.With().Str("trace_id", traceID))
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.zl.With().Interface(key, value))
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(l.zl.With().Fields(fields))
}

// WithError returns a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.derive(l.zl.With().Err(err))
}

// WithDuration returns a new logger with duration field
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.derive(l.zl.With().Str("duration", d.String()))
}

func (l *Logger) derive(zctx zerolog.Context) *Logger {
	return &Logger{zl: zctx.Logger(), level: l.level}
}

// log writes a log entry. args are either key/value pairs (even count,
// string keys) or printf arguments for msg.
func (l *Logger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	e := l.zl.WithLevel(level.zerolog())
	if e == nil {
		return
	}

	if len(args) > 0 {
		if isKeyValues(args) {
			for i := 0; i < len(args); i += 2 {
				addField(e, args[i].(string), args[i+1])
			}
		} else {
			msg = fmt.Sprintf(msg, args...)
		}
	}

	e.Msg(msg)
}

func isKeyValues(args []interface{}) bool {
	if len(args) < 2 || len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); !ok {
			return false
		}
	}
	return true
}

func addField(e *zerolog.Event, key string, value interface{}) {
	switch v := value.(type) {
	case error:
		e.AnErr(key, v)
	case string:
		e.Str(key, v)
	case int:
		e.Int(key, v)
	case int64:
		e.Int64(key, v)
	case float64:
		e.Float64(key, v)
	case bool:
		e.Bool(key, v)
	case time.Duration:
		e.Str(key, v.String())
	case time.Time:
		e.Time(key, v)
	case fmt.Stringer:
		e.Stringer(key, v)
	default:
		e.Interface(key, v)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, msg, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(FATAL, msg, args...)
	os.Exit(1)
}

// Package-level functions for default logger

// Debug logs a debug message using the default logger
func Debug(msg string, args ...interface{}) {
	Default().Debug(msg, args...)
}

// Info logs an info message using the default logger
func Info(msg string, args ...interface{}) {
	Default().Info(msg, args...)
}

// Warn logs a warning message using the default logger
func Warn(msg string, args ...interface{}) {
	Default().Warn(msg, args...)
}

// Error logs an error message using the default logger
func Error(msg string, args ...interface{}) {
	Default().Error(msg, args...)
}

// Fatal logs a fatal message using the default logger
func Fatal(msg string, args ...interface{}) {
	Default().Fatal(msg, args...)
}

// WithComponent returns a new logger with the specified component
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}

// WithField returns a new logger with an additional field
func WithField(key string, value interface{}) *Logger {
	return Default().WithField(key, value)
}

// WithFields returns a new logger with additional fields
func WithFields(fields map[string]interface{}) *Logger {
	return Default().WithFields(fields)
}

// WithError returns a new logger with an error field
func WithError(err error) *Logger {
	return Default().WithError(err)
}
