// Package serverlog wraps go.uber.org/zap behind the Session-scoped logger
// shape used throughout cloudfoundry-gorouter's logger package, modernized
// to zap's current (v2-style) API: structured fields, a named component
// per logger, and Session to derive a child logger for a connection or
// operation without losing the parent's fields.
package serverlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface the rest of the module depends on, so callers and
// tests can substitute another implementation (NewNop discards everything).
// Its methods take zap.Field values, so implementations still import zap.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Session(component string) Logger
	SessionName() string
}

type logger struct {
	source string
	base   *zap.Logger
}

// New returns a JSON logger named component, writing at level (or
// zapcore.InfoLevel if level is zero-valued and unspecified by the
// caller's config).
func New(component string, level zapcore.Level) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "log_level"

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	return &logger{source: component, base: base.With(zap.String("source", component))}
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	return &logger{source: "nop", base: zap.NewNop()}
}

func (l *logger) Debug(msg string, fields ...zap.Field) { l.base.Debug(msg, fields...) }
func (l *logger) Info(msg string, fields ...zap.Field)  { l.base.Info(msg, fields...) }
func (l *logger) Warn(msg string, fields ...zap.Field)  { l.base.Warn(msg, fields...) }
func (l *logger) Error(msg string, fields ...zap.Field) { l.base.Error(msg, fields...) }

func (l *logger) With(fields ...zap.Field) Logger {
	return &logger{source: l.source, base: l.base.With(fields...)}
}

func (l *logger) Session(component string) Logger {
	name := l.source + "." + component
	return &logger{source: name, base: l.base.With(zap.String("source", name))}
}

func (l *logger) SessionName() string { return l.source }
