// Package log provides the structured logging interface used by mlpipe.
//
// The Logger interface is slog-compatible: messages take alternating
// key/value fields, and the keys in attributes.go keep field names consistent
// across the pipeline stages and estimators. The default backend is zerolog
// (see NewZerologProvider); components that are not given a logger use
// NewNopLogger.
//
// Example:
//
//	provider := log.NewZerologProvider(log.LevelInfo, os.Stderr)
//	logger := provider.GetLoggerWithName("pipeline").With(log.RunIDKey, runID)
//	logger.Info("stage finished",
//	    log.StageKey, "ingestion",
//	    log.SamplesKey, 1000,
//	)
package log

import (
	"context"
	"fmt"
	"strings"
)

// Logger is a structured logger with slog-style key/value fields.
type Logger interface {
	// Debug logs detailed diagnostic information.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	Info(msg string, fields ...any)

	// Warn logs a recoverable problem.
	Warn(msg string, fields ...any)

	// Error logs an error condition. When the first field is an error value
	// it is logged under ErrAttrKey together with its stack trace.
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every message.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at level.
	Enabled(ctx context.Context, level Level) bool
}

// Level is a logging level. Values match slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the upper-case name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts "debug", "info", "warn" or "error" into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %q", level)
	}
}

// ToLogLevel is like ParseLevel but panics on an unknown level name.
func ToLogLevel(level string) Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(err)
	}
	return l
}

// LoggerProvider creates loggers that share one backend and level.
type LoggerProvider interface {
	// GetLogger returns the root logger.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for all loggers of this provider.
	SetLevel(level Level)
}

// splitError separates a leading error value from the key/value fields.
func splitError(fields []any) (error, []any) {
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			return err, fields[1:]
		}
	}
	return nil, fields
}
