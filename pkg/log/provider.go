// Package log provides the default logger providers for GlassBox.
//
// Two LoggerProvider implementations are available: a slog-backed provider
// emitting structured JSON (the library default), and a zerolog-backed
// provider with console formatting intended for CLI use. The package-level
// GetLogger/GetLoggerWithName functions delegate to a swappable global
// provider so applications can change the backend in one place.

package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

var (
	providerMu      sync.RWMutex
	defaultProvider LoggerProvider
)

func init() {
	defaultProvider = NewSlogProvider(LevelInfo, os.Stderr)
}

// SetProvider replaces the global logger provider.
// Passing nil restores the slog-backed default.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	if p == nil {
		p = NewSlogProvider(LevelInfo, os.Stderr)
	}
	defaultProvider = p
}

// GetLogger returns the default logger from the global provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLogger()
}

// GetLoggerWithName returns a component-scoped logger from the global provider.
//
// Example:
//
//	logger := log.GetLoggerWithName("ensemble.forest")
//	logger.Info("training started", log.SamplesKey, n)
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLoggerWithName(name)
}

// SetLevel sets the minimum level on the global provider.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	defaultProvider.SetLevel(level)
}

// SlogProvider is the default LoggerProvider backed by log/slog.
// Records pass through ErrFmtHandler so errors carrying cockroachdb
// stack traces are emitted with a stacktrace attribute.
type SlogProvider struct {
	level   *slog.LevelVar
	handler slog.Handler
}

// NewSlogProvider creates a provider writing JSON records to w.
func NewSlogProvider(level Level, w io.Writer) *SlogProvider {
	lv := &slog.LevelVar{}
	lv.Set(slog.Level(level))
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})
	return &SlogProvider{
		level:   lv,
		handler: WrapByErrFmtHandler(handler),
	}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *SlogProvider) GetLogger() Logger {
	return &slogLogger{l: slog.New(p.handler)}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	return p.GetLogger().With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *SlogProvider) SetLevel(level Level) {
	p.level.Set(slog.Level(level))
}

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, fields...) }

func (s *slogLogger) Error(msg string, fields ...any) {
	// A leading bare error is rewrapped so ErrFmtHandler can find it.
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			rest := fields[1:]
			args := make([]any, 0, len(rest)+1)
			args = append(args, ErrAttr(err))
			args = append(args, rest...)
			s.l.Error(msg, args...)
			return
		}
	}
	s.l.Error(msg, fields...)
}

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(fields...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

// ZerologProvider is a LoggerProvider backed by rs/zerolog.
// It is used by the CLI for human-readable console output.
type ZerologProvider struct {
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewZerologProvider creates a provider around an existing zerolog logger.
func NewZerologProvider(l zerolog.Logger) *ZerologProvider {
	return &ZerologProvider{logger: l}
}

// NewConsoleProvider creates a zerolog provider with console formatting on w.
func NewConsoleProvider(level Level, w io.Writer) *ZerologProvider {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	l := zerolog.New(console).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &ZerologProvider{logger: l}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &zerologLogger{l: p.logger}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return p.GetLogger().With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = p.logger.Level(toZerologLevel(level))
}

// RouteWarnings installs the provider's logger as the sink for library
// warnings raised through pkg/errors.Warn. Warning types implementing
// zerolog.LogObjectMarshaler are embedded as structured fields.
func (p *ZerologProvider) RouteWarnings() {
	p.mu.Lock()
	l := p.logger
	p.mu.Unlock()
	errors.SetZerologWarnFunc(func(warning error) {
		ev := l.Warn()
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev = ev.EmbedObject(obj)
		}
		ev.Msg(warning.Error())
	})
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// zerologLogger adapts zerolog.Logger to the Logger interface.
type zerologLogger struct {
	l zerolog.Logger
}

func (z *zerologLogger) Debug(msg string, fields ...any) { z.emit(z.l.Debug(), msg, fields) }
func (z *zerologLogger) Info(msg string, fields ...any)  { z.emit(z.l.Info(), msg, fields) }
func (z *zerologLogger) Warn(msg string, fields ...any)  { z.emit(z.l.Warn(), msg, fields) }
func (z *zerologLogger) Error(msg string, fields ...any) { z.emit(z.l.Error(), msg, fields) }

func (z *zerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	// A leading bare error without a key still gets recorded.
	if len(fields) == 1 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err)
		}
	}
	ev.Msg(msg)
}

func (z *zerologLogger) With(fields ...any) Logger {
	ctx := z.l.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{l: ctx.Logger()}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= z.l.GetLevel()
}
