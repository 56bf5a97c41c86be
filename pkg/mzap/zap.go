// Package mzap adapts go.uber.org/zap to the mlog.Logger interface.
package mzap

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tracseq/lims-core/pkg/mlog"
)

// Logger wraps a zap.SugaredLogger so it satisfies mlog.Logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a production zap logger at the given level.
func New(level mlog.Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = toZapLevel(level)

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{sugar: base.Sugar()}, nil
}

func toZapLevel(l mlog.Level) zap.AtomicLevel {
	switch l {
	case mlog.ErrorLevel:
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	case mlog.WarnLevel:
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case mlog.DebugLevel:
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

func (l *Logger) Info(args ...any)                  { l.sugar.Info(args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Error(args ...any)                 { l.sugar.Error(args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *Logger) Warn(args ...any)                  { l.sugar.Warn(args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Debug(args ...any)                 { l.sugar.Debug(args...) }
func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

// WithFields returns a new logger enriched with structured key/value pairs.
//
//nolint:ireturn
func (l *Logger) WithFields(fields ...any) mlog.Logger {
	return &Logger{sugar: l.sugar.With(fields...)}
}

func (l *Logger) Sync() error { return l.sugar.Sync() }

// WithSpanFields enriches the logger with the active span's trace/span ids,
// if a span is recording on the context, so log lines can be correlated
// back to a trace. No package in this module calls it; it is exported for
// callers that wrap a unit of work in a span.
//
//nolint:ireturn
func WithSpanFields(ctx context.Context, logger mlog.Logger) mlog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}

	return logger.WithFields(
		"trace_id", span.SpanContext().TraceID().String(),
		"span_id", span.SpanContext().SpanID().String(),
	)
}
