package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextLogger stamps trace identity from the context onto log lines
// so bridge command logs correlate with their spans.
type ContextLogger struct {
	logger *zap.Logger
}

func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext adds the active span's trace and span ids, when any.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.Logger {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return cl.logger
	}
	return cl.logger.With(
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)
}

// WithFields adds custom fields to logger
func (cl *ContextLogger) WithFields(fields ...zapcore.Field) *zap.Logger {
	return cl.logger.With(fields...)
}

// WithError adds error to logger
func (cl *ContextLogger) WithError(err error) *zap.Logger {
	return cl.logger.With(zap.Error(err))
}

// LogCommand logs one bridge command round trip with context.
func (cl *ContextLogger) LogCommand(ctx context.Context, command string, durationMs int64, err error) {
	logger := cl.WithContext(ctx)
	fields := []zapcore.Field{
		zap.String("command", command),
		zap.Int64("duration_ms", durationMs),
	}
	if err != nil {
		logger.Warn("bridge_command", append(fields, zap.Error(err))...)
		return
	}
	logger.Debug("bridge_command", fields...)
}
