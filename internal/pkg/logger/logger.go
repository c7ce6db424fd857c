// Package logger provides structured logging with optional PII redaction.
//
// Call sites use the package-level helpers with alternating key/value pairs:
//
//	logger.Info("batch finished", "batch_id", id, "sent", n)
//
// Output is written through zerolog: JSON lines on stderr by default, or a
// human-friendly console writer when Configure is called with console=true.
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string { return levelNames[l] }

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a config string to a Level, falling back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger wraps a zerolog.Logger with PII redaction of field values.
type Logger struct {
	mu        sync.RWMutex
	zl        zerolog.Logger
	redactPII bool
}

var defaultLogger = New(os.Stderr, INFO, true)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorFieldName = "err"
}

// New creates a JSON logger writing to w.
func New(w io.Writer, level Level, redactPII bool) *Logger {
	return &Logger{
		zl:        zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger(),
		redactPII: redactPII,
	}
}

// Default returns the process-wide logger used by the package helpers.
func Default() *Logger { return defaultLogger }

// Configure rebuilds the default logger. console selects zerolog's
// ConsoleWriter instead of JSON output.
func Configure(level string, console bool, redactPII bool) {
	var w io.Writer = os.Stderr
	if console {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	}
	SetOutput(w)
	SetLevel(ParseLevel(level))
	SetRedactPII(redactPII)
}

// SetOutput redirects the default logger (used by tests).
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	lvl := defaultLogger.zl.GetLevel()
	defaultLogger.zl = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	defaultLogger.mu.Unlock()
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) {
	defaultLogger.mu.Lock()
	defaultLogger.zl = defaultLogger.zl.Level(l.zerolog())
	defaultLogger.mu.Unlock()
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactPII = r
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.Log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.Log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.Log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.Log(ERROR, msg, fields...) }

// Log writes one entry. fields are alternating key/value pairs; a trailing
// key without a value is dropped.
func (l *Logger) Log(level Level, msg string, fields ...interface{}) {
	l.mu.RLock()
	zl := l.zl
	redact := l.redactPII
	l.mu.RUnlock()

	e := zl.WithLevel(level.zerolog())
	if e == nil {
		return
	}
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case error:
			if v != nil {
				e.Str(key, redactIf(redact, key, v.Error()))
			}
		case int:
			e.Int(key, v)
		case int64:
			e.Int64(key, v)
		case bool:
			e.Bool(key, v)
		case float64:
			e.Float64(key, v)
		case time.Duration:
			e.Dur(key, v)
		default:
			e.Str(key, redactIf(redact, key, fmt.Sprintf("%v", v)))
		}
	}
	e.Msg(msg)
}

func redactIf(enabled bool, key, val string) string {
	if !enabled {
		return val
	}
	return redactPIIValue(key, val)
}

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRegex = regexp.MustCompile(`\+?\d[\d\-\s().]{8,}\d`)
)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "phone") {
		return RedactPhone(val)
	}
	if strings.Contains(key, "email") {
		return RedactEmail(val)
	}
	// Redact any embedded emails/phone numbers in generic fields
	val = emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	return phoneRegex.ReplaceAllStringFunc(val, RedactPhone)
}
