// Package logging wraps zap with the service's base fields and an OTLP log exporter.
// Card numbers, CVVs and OTPs must never be passed to these loggers unmasked.
package logging

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures InitLogger
type Options struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	Development  bool
}

// logger starts as a no-op so packages can log before InitLogger runs (tests, tools)
var (
	logger         = zap.NewNop()
	loggerProvider *sdklog.LoggerProvider
)

// InitLogger builds the process logger. Every entry carries the service and environment
// fields. An unreachable collector leaves logging on stdout only.
func InitLogger(opts Options) error {
	config := zap.NewProductionConfig()
	if opts.Development {
		config = zap.NewDevelopmentConfig()
	}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "msg"
	config.EncoderConfig.LevelKey = "level"

	built, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	SetLogger(built.With(
		zap.String("service", opts.ServiceName),
		zap.String("environment", opts.Environment),
	))

	endpoint := opts.OTLPEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return nil
	}

	ctx := context.Background()
	exporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		logger.Warn("Failed to create OTLP log exporter, logs will only go to stdout", zap.Error(err))
		return nil
	}

	res, err := resource.New(ctx, resource.WithFromEnv(), resource.WithProcess())
	if err != nil {
		logger.Warn("Failed to create log resource", zap.Error(err))
		return nil
	}

	loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)
	logger.Info("OTLP logging configured", zap.String("endpoint", endpoint))
	return nil
}

// SetLogger replaces the global logger
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	return logger
}

// WithTraceContext returns a logger tagged with the span's trace and span ids
func WithTraceContext(span trace.Span) *zap.Logger {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// FromContext returns a logger carrying the trace context of the span in ctx
func FromContext(ctx context.Context) *zap.Logger {
	return WithTraceContext(trace.SpanFromContext(ctx))
}

// Info logs on the global logger
func Info(msg string, fields ...zap.Field) { logger.Info(msg, fields...) }

// Warn logs on the global logger
func Warn(msg string, fields ...zap.Field) { logger.Warn(msg, fields...) }

// Error logs on the global logger
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

// Fatal logs and exits the process
func Fatal(msg string, fields ...zap.Field) { logger.Fatal(msg, fields...) }

// Sync flushes any buffered log entries
func Sync() error {
	return logger.Sync()
}

// Shutdown flushes and stops the OTLP log pipeline
func Shutdown(ctx context.Context) error {
	if loggerProvider != nil {
		return loggerProvider.Shutdown(ctx)
	}
	return nil
}
