// Package logging provides structured JSON logging with trace IDs for the
// sync engine. Every detection pass and resolution carries a trace ID so the
// audit trail and the log stream can be correlated.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging interface used across the engine.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	DebugContext(ctx context.Context, msg string, fields ...any)
	InfoContext(ctx context.Context, msg string, fields ...any)
	WarnContext(ctx context.Context, msg string, fields ...any)
	ErrorContext(ctx context.Context, msg string, fields ...any)

	WithComponent(component string) Logger
	WithTraceID(traceID string) Logger
}

// Level represents logging levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type contextKey string

// traceIDKey carries the trace ID through context.
const traceIDKey contextKey = "trace_id"

// entry is one structured log line.
type entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	TraceID   string         `json:"trace_id,omitempty"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// jsonLogger writes JSON lines to stderr.
type jsonLogger struct {
	level     Level
	traceID   string
	component string
}

// NewLogger creates a structured JSON logger at the given level.
func NewLogger(level Level) Logger {
	return &jsonLogger{level: level}
}

func (l *jsonLogger) WithComponent(component string) Logger {
	return &jsonLogger{level: l.level, traceID: l.traceID, component: component}
}

func (l *jsonLogger) WithTraceID(traceID string) Logger {
	return &jsonLogger{level: l.level, traceID: traceID, component: l.component}
}

func (l *jsonLogger) Debug(msg string, fields ...any) { l.log(LevelDebug, "DEBUG", "", msg, fields) }
func (l *jsonLogger) Info(msg string, fields ...any)  { l.log(LevelInfo, "INFO", "", msg, fields) }
func (l *jsonLogger) Warn(msg string, fields ...any)  { l.log(LevelWarn, "WARN", "", msg, fields) }
func (l *jsonLogger) Error(msg string, fields ...any) { l.log(LevelError, "ERROR", "", msg, fields) }

func (l *jsonLogger) DebugContext(ctx context.Context, msg string, fields ...any) {
	l.log(LevelDebug, "DEBUG", TraceID(ctx), msg, fields)
}

func (l *jsonLogger) InfoContext(ctx context.Context, msg string, fields ...any) {
	l.log(LevelInfo, "INFO", TraceID(ctx), msg, fields)
}

func (l *jsonLogger) WarnContext(ctx context.Context, msg string, fields ...any) {
	l.log(LevelWarn, "WARN", TraceID(ctx), msg, fields)
}

func (l *jsonLogger) ErrorContext(ctx context.Context, msg string, fields ...any) {
	l.log(LevelError, "ERROR", TraceID(ctx), msg, fields)
}

func (l *jsonLogger) log(level Level, name, contextTraceID, msg string, fields []any) {
	if level < l.level {
		return
	}

	traceID := l.traceID
	if contextTraceID != "" {
		traceID = contextTraceID
	}

	// Fields arrive as alternating key/value pairs.
	fieldMap := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		fieldMap[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     name,
		Message:   msg,
		TraceID:   traceID,
		Component: l.component,
		Fields:    fieldMap,
	}

	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}

// NewTraceID generates a fresh trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to the context, generating one if empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from the context, if any.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}
