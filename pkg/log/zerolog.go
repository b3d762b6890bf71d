package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	perrors "github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// Config controls the zerolog backend.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Output io.Writer

	// File enables an additional rotating JSON log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel converts a level name into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.Newf("invalid log level: %s", level)
	}
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ZerologProvider is a LoggerProvider backed by zerolog.
type ZerologProvider struct {
	root  zerolog.Logger
	level *levelVar
	file  io.Closer
}

type levelVar struct {
	mu    sync.RWMutex
	level Level
}

func (v *levelVar) get() Level {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.level
}

func (v *levelVar) set(l Level) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.level = l
}

// NewZerologProvider builds a provider from cfg.
func NewZerologProvider(cfg Config) (*ZerologProvider, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	p := &ZerologProvider{level: &levelVar{level: level}}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		p.file = lj
		out = zerolog.MultiLevelWriter(out, lj)
	}

	p.root = zerolog.New(out).With().Timestamp().Logger()
	return p, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.root, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: p.root.With().Str(ComponentKey, name).Logger(), level: p.level}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.set(level)
}

// Close flushes and closes the rotating file, if any.
func (p *ZerologProvider) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

type zerologLogger struct {
	zl    zerolog.Logger
	level *levelVar
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.emit(LevelDebug, msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.emit(LevelInfo, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.emit(LevelWarn, msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.emit(LevelError, msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	err, fields := splitLeadingError(fields)
	if err != nil {
		ctx = ctx.Str(ErrorKey, err.Error())
	}
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fieldValue(fields[i+1]))
	}
	return &zerologLogger{zl: ctx.Logger(), level: l.level}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= l.level.get()
}

func (l *zerologLogger) emit(level Level, msg string, fields []any) {
	if level < l.level.get() {
		return
	}
	ev := l.zl.WithLevel(toZerologLevel(level))
	err, fields := splitLeadingError(fields)
	if err != nil {
		addError(ev, err)
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			ev = ev.Str(key, v.Error())
		case zerolog.LogObjectMarshaler:
			ev = ev.Object(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

func splitLeadingError(fields []any) (error, []any) {
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			return err, fields[1:]
		}
	}
	return nil, fields
}

func fieldValue(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

// addError records err, its structured fields when available, and its stack trace.
func addError(ev *zerolog.Event, err error) {
	ev.Str(ErrorKey, err.Error())
	var m zerolog.LogObjectMarshaler
	if errors.As(err, &m) {
		ev.Object("error_detail", m)
	}
	if st := extractStacktrace(err); st != "" {
		ev.Str(StacktraceKey, st)
	}
}

func extractStacktrace(err error) string {
	details := errors.GetSafeDetails(err).SafeDetails
	if len(details) > 0 {
		return details[0]
	}
	return ""
}

var (
	globalMu       sync.RWMutex
	globalProvider LoggerProvider
)

func init() {
	p, _ := NewZerologProvider(Config{Level: "info", Format: "json"})
	SetProvider(p)
}

// SetProvider replaces the process-wide provider and routes library warnings to it.
func SetProvider(p LoggerProvider) {
	globalMu.Lock()
	globalProvider = p
	globalMu.Unlock()

	warnLogger := p.GetLoggerWithName("warnings")
	perrors.SetZerologWarnFunc(func(w error) {
		warnLogger.Warn(w.Error(), ErrorTypeKey, fmt.Sprintf("%T", w))
	})
}

// GetLogger returns the root logger of the current provider.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider.GetLogger()
}

// GetLoggerWithName returns a component logger from the current provider.
func GetLoggerWithName(name string) Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider.GetLoggerWithName(name)
}
