// Package logger provides JSON structured logging for the playlist screen service.
//
// Every entry is one JSON object per line carrying:
//   - time, level and message
//   - the service name
//   - persistent fields attached with WithFields
//   - request and trace IDs pulled from a context with WithContext
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	// DebugLevel for debug messages.
	DebugLevel Level = iota
	// InfoLevel for informational messages.
	InfoLevel
	// WarnLevel for warning messages.
	WarnLevel
	// ErrorLevel for error messages.
	ErrorLevel
	// FatalLevel for fatal messages (calls os.Exit(1)).
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config value such as "debug" or "WARN" to a Level.
// Unknown values fall back to InfoLevel and return an error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is the logging interface injected into every layer.
type Logger interface {
	SetLevel(level Level)
	GetLevel() Level

	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	WithContext(ctx context.Context) Logger
	WithFields(fields ...Field) Logger
}

// Entry represents a single log line.
type Entry struct {
	Time    string                 `json:"time"`
	Level   string                 `json:"level"`
	Service string                 `json:"service,omitempty"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Caller  string                 `json:"caller,omitempty"`
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	Service    string
	Output     io.Writer
	TimeFormat string
	Caller     bool // Include caller information
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		Output:     os.Stdout,
		TimeFormat: time.RFC3339,
		Caller:     true,
	}
}

// jsonLogger writes entries as JSON lines. Loggers derived through
// WithFields share the level and the output lock of their root.
type jsonLogger struct {
	core   *core
	fields []Field
}

type core struct {
	mu         sync.Mutex
	level      Level
	service    string
	output     io.Writer
	timeFormat string
	caller     bool
}

// New creates a new logger with the given configuration.
func New(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	return &jsonLogger{
		core: &core{
			level:      cfg.Level,
			service:    cfg.Service,
			output:     cfg.Output,
			timeFormat: cfg.TimeFormat,
			caller:     cfg.Caller,
		},
	}
}

// Default returns a logger with default configuration.
func Default() Logger {
	return New(DefaultConfig())
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return New(&Config{Level: FatalLevel + 1, Output: io.Discard})
}

// SetLevel sets the minimum log level.
func (l *jsonLogger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// GetLevel returns the current log level.
func (l *jsonLogger) GetLevel() Level {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.level
}

func (l *jsonLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *jsonLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *jsonLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *jsonLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// Fatal logs a fatal message and exits.
func (l *jsonLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

// WithContext returns a logger carrying the request and trace IDs stored in ctx.
func (l *jsonLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(extractContextFields(ctx)...)
}

// WithFields returns a logger with additional persistent fields.
func (l *jsonLogger) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &jsonLogger{core: l.core, fields: merged}
}

func (l *jsonLogger) log(level Level, msg string, fields []Field) {
	if level < l.GetLevel() {
		return
	}

	entry := Entry{
		Time:    time.Now().Format(l.core.timeFormat),
		Level:   level.String(),
		Service: l.core.service,
		Message: msg,
	}

	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]interface{}, n)
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	if l.core.caller {
		entry.Caller = caller(3)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	data = append(data, '\n')

	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	_, _ = l.core.output.Write(data)
}

// caller returns "file.go:line" of the logging call site.
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
)

func extractContextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, String("request_id", requestID))
	}
	if traceID, ok := ctx.Value(traceIDKey).(string); ok && traceID != "" {
		fields = append(fields, String("trace_id", traceID))
	}
	return fields
}

// WithRequestID adds a request ID to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithTraceID adds a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field rendered as a string.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Error creates an "error" field.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
