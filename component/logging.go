package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// LogLevel is the severity carried in a LogEntry
type LogLevel string

// Levels published in LogEntry records
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

var slogLevels = map[LogLevel]slog.Level{
	LogLevelDebug: slog.LevelDebug,
	LogLevelInfo:  slog.LevelInfo,
	LogLevelWarn:  slog.LevelWarn,
	LogLevelError: slog.LevelError,
}

// LogEntry is one lifecycle record as published on LogSubject
type LogEntry struct {
	Timestamp string   `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Component string   `json:"component"`
	Instance  string   `json:"instance"`
	State     string   `json:"state,omitempty"`
	Message   string   `json:"message"`
	Stack     string   `json:"stack,omitempty"`
}

// LogSubject is "rtc.logs.<instance>.<component>"
func LogSubject(instance, component string) string {
	return "rtc.logs." + instance + "." + component
}

// Logger records lifecycle events of one component. Every event goes to
// the slog logger; when a NATS connection is present it is also published
// as a LogEntry so remote tools can follow state changes.
type Logger struct {
	component string
	instance  string
	subject   string
	nc        *nats.Conn
	logger    *slog.Logger
}

// NewLogger creates a component logger. nc may be nil.
func NewLogger(componentName, instance string, nc *nats.Conn, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		component: componentName,
		instance:  instance,
		subject:   LogSubject(instance, componentName),
		nc:        nc,
		logger:    logger.With("component", componentName),
	}
}

// Debug logs msg at debug level
func (cl *Logger) Debug(msg string, state State) { cl.log(LogLevelDebug, msg, state, nil) }

// Info logs msg at info level
func (cl *Logger) Info(msg string, state State) { cl.log(LogLevelInfo, msg, state, nil) }

// Warn logs msg at warn level
func (cl *Logger) Warn(msg string, state State) { cl.log(LogLevelWarn, msg, state, nil) }

// Error logs msg at error level; the published entry carries err as its stack
func (cl *Logger) Error(msg string, state State, err error) { cl.log(LogLevelError, msg, state, err) }

func (cl *Logger) log(level LogLevel, msg string, state State, err error) {
	attrs := []any{"state", state.String()}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	cl.logger.Log(context.Background(), slogLevels[level], msg, attrs...)

	if cl.nc == nil {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: cl.component,
		Instance:  cl.instance,
		State:     state.String(),
		Message:   msg,
	}
	if err != nil {
		entry.Stack = fmt.Sprintf("%+v", err)
	}
	data, merr := json.Marshal(entry)
	if merr != nil {
		cl.logger.Error("Failed to marshal log entry", "error", merr)
		return
	}
	if perr := cl.nc.Publish(cl.subject, data); perr != nil {
		cl.logger.Warn("Failed to publish log entry", "subject", cl.subject, "error", perr)
	}
}
