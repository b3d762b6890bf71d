// Package log provides the structured logging interface used across the
// classifier library and the exoplanet service.
//
// The interface is slog-shaped so that callers never depend on a concrete
// backend. The production backend is zerolog (see zerolog.go); tests use
// TestLogger, which captures JSON lines in memory.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("trainer").With(
//	    log.ModelNameKey, "random_forest",
//	)
//	logger.Info("Training started",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 240,
//	    log.FeaturesKey, 12,
//	)
package log

import (
	"context"
)

// Logger is a structured logger. Fields are alternating key/value pairs.
// If the first field of an Error call is an error value it is recorded under
// the "error" key together with its stack trace.
type Logger interface {
	// Debug logs detailed diagnostic information.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	//
	//	logger.Info("Model training completed",
	//	    log.DurationMsKey, 5432,
	//	    log.AccuracyKey, 0.95,
	//	)
	Info(msg string, fields ...any)

	// Warn logs conditions that do not stop the current operation.
	Warn(msg string, fields ...any)

	// Error logs failures.
	//
	//	logger.Error("Model training failed",
	//	    err,
	//	    log.OperationKey, log.OperationFit,
	//	)
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether records at level would be emitted.
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

// String returns the upper-case level name.
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

// LoggerProvider creates loggers and controls their minimum level.
type LoggerProvider interface {
	// GetLogger returns the root logger.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for all loggers from this provider.
	SetLevel(level Level)
}
