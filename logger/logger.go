package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	switch l {
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "info"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case TraceLevel:
		return zerolog.TraceLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLogLevel parses a string to LogLevel. Unknown values fall back to info.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error", "err":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// OutputFormat represents the output format
type OutputFormat int

const (
	DefaultFormat OutputFormat = iota
	JSONFormat
)

func (o OutputFormat) String() string {
	if o == JSONFormat {
		return "json"
	}
	return "default"
}

// ParseOutputFormat parses a string to OutputFormat
func ParseOutputFormat(format string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return JSONFormat
	}
	return DefaultFormat
}

// TypedField represents a type-safe field for structured logging
type TypedField interface {
	apply(ctx zerolog.Context) zerolog.Context
	applyEvent(event *zerolog.Event) *zerolog.Event
}

type (
	stringField struct {
		key   string
		value string
	}
	intField struct {
		key   string
		value int
	}
	int64Field struct {
		key   string
		value int64
	}
	boolField struct {
		key   string
		value bool
	}
	durationField struct {
		key   string
		value time.Duration
	}
	timeField struct {
		key   string
		value time.Time
	}
	errorField struct {
		value error
	}
	stringsField struct {
		key   string
		value []string
	}
	anyField struct {
		key   string
		value any
	}
)

func String(key, value string) TypedField { return stringField{key, value} }

func Int(key string, value int) TypedField { return intField{key, value} }

func Int64(key string, value int64) TypedField { return int64Field{key, value} }

func Bool(key string, value bool) TypedField { return boolField{key, value} }

func Duration(key string, value time.Duration) TypedField { return durationField{key, value} }

func Time(key string, value time.Time) TypedField { return timeField{key, value} }

func Strings(key string, value []string) TypedField { return stringsField{key, value} }

func Err(value error) TypedField { return errorField{value} }

func Any(key string, value any) TypedField { return anyField{key, value} }

func (f stringField) apply(c zerolog.Context) zerolog.Context { return c.Str(f.key, f.value) }
func (f stringField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Str(f.key, f.value) }

func (f intField) apply(c zerolog.Context) zerolog.Context { return c.Int(f.key, f.value) }
func (f intField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Int(f.key, f.value) }

func (f int64Field) apply(c zerolog.Context) zerolog.Context { return c.Int64(f.key, f.value) }
func (f int64Field) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Int64(f.key, f.value) }

func (f boolField) apply(c zerolog.Context) zerolog.Context { return c.Bool(f.key, f.value) }
func (f boolField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Bool(f.key, f.value) }

func (f durationField) apply(c zerolog.Context) zerolog.Context { return c.Dur(f.key, f.value) }
func (f durationField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Dur(f.key, f.value) }

func (f timeField) apply(c zerolog.Context) zerolog.Context { return c.Time(f.key, f.value) }
func (f timeField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Time(f.key, f.value) }

func (f stringsField) apply(c zerolog.Context) zerolog.Context { return c.Strs(f.key, f.value) }
func (f stringsField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Strs(f.key, f.value) }

func (f errorField) apply(c zerolog.Context) zerolog.Context { return c.Err(f.value) }
func (f errorField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Err(f.value) }

func (f anyField) apply(c zerolog.Context) zerolog.Context { return c.Interface(f.key, f.value) }
func (f anyField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Interface(f.key, f.value) }

// Logger defines the public interface for logging
type Logger interface {
	Trace(msg string, fields ...TypedField)
	Debug(msg string, fields ...TypedField)
	Info(msg string, fields ...TypedField)
	Warn(msg string, fields ...TypedField)
	Error(msg string, fields ...TypedField)
	Fatal(msg string, fields ...TypedField)

	Infof(format string, args ...any)
	Errorf(format string, args ...any)

	// WithSubsystem returns a child logger whose module name is nested under
	// the current one ("storage" -> "storage.postgres").
	WithSubsystem(name string) Logger

	// WithSystem returns a child logger with the module name replaced.
	WithSystem(name string) Logger

	WithFields(fields ...TypedField) Logger

	IsLevelEnabled(level LogLevel) bool

	Close() error
}

// NewNopLogger returns a Logger that discards everything. Mostly for tests.
func NewNopLogger() Logger {
	nop := zerolog.Nop()
	return &ZerologLogger{logger: nop, root: nop, config: &Config{Level: FatalLevel}}
}
