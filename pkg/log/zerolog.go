package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ZerologProvider is a LoggerProvider backed by zerolog. All loggers it
// creates share one writer and one level.
type ZerologProvider struct {
	base  zerolog.Logger
	level *atomic.Int32
}

// NewZerologProvider creates a provider writing JSON lines to w. A nil
// writer means os.Stderr.
func NewZerologProvider(level Level, w io.Writer) *ZerologProvider {
	if w == nil {
		w = os.Stderr
	}
	lv := &atomic.Int32{}
	lv.Store(int32(level))
	return &ZerologProvider{
		base:  zerolog.New(w).With().Timestamp().Logger(),
		level: lv,
	}
}

// NewConsoleProvider creates a provider with zerolog's human-readable
// console output, used by the command line tool.
func NewConsoleProvider(level Level, w io.Writer) *ZerologProvider {
	if w == nil {
		w = os.Stderr
	}
	return NewZerologProvider(level, zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly})
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{logger: p.base, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{logger: p.base.With().Str(ComponentKey, name).Logger(), level: p.level}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int32(level))
}

type zerologLogger struct {
	logger zerolog.Logger
	level  *atomic.Int32
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.log(LevelDebug, msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.log(LevelInfo, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.log(LevelWarn, msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.log(LevelError, msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fieldValue(fields[i+1]))
	}
	return &zerologLogger{logger: ctx.Logger(), level: l.level}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= Level(l.level.Load())
}

func (l *zerologLogger) log(level Level, msg string, fields []any) {
	if !l.Enabled(context.Background(), level) {
		return
	}
	var event *zerolog.Event
	switch level {
	case LevelDebug:
		event = l.logger.Debug()
	case LevelInfo:
		event = l.logger.Info()
	case LevelWarn:
		event = l.logger.Warn()
	default:
		event = l.logger.Error()
	}

	err, kv := splitError(fields)
	if err != nil {
		addError(event, ErrAttrKey, err)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if e, ok := kv[i+1].(error); ok {
			addError(event, key, e)
			continue
		}
		event = event.Interface(key, kv[i+1])
	}
	event.Msg(msg)
}

// addError logs err's message and, when err carries one, its stack trace.
// Errors that know how to marshal themselves are added as objects as well.
func addError(event *zerolog.Event, key string, err error) {
	event.Str(key, err.Error())
	var obj zerolog.LogObjectMarshaler
	if errors.As(err, &obj) {
		event.Object(key+".details", obj)
	}
	if st := extractStacktrace(err); st != "" {
		event.Str(StacktraceKey, st)
	}
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

func fieldValue(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}
