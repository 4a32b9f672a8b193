package logger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cryptoSignalBot/internal/adapters/tracing"
	"cryptoSignalBot/internal/ports"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements ports.Logger on a zap.Logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: l}
}

// BuildZap builds a production zap logger with the given level and encoding
// ("json" or "console").
func BuildZap(level, format string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		l = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(l)
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "", "json":
		config.Encoding = "json"
	case "console":
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	return config.Build()
}

// New builds the ports.Logger for the configured level and format. The "plain"
// format uses the standard library logger.
func New(level, format string) (ports.Logger, func(), error) {
	if format == "plain" {
		return NewStdLogger(ParseLevel(level), nil), func() {}, nil
	}
	zl, err := BuildZap(level, format)
	if err != nil {
		return nil, nil, err
	}
	return NewZapLogger(zl), func() { _ = zl.Sync() }, nil
}

func (l *ZapLogger) fields(ctx context.Context, fields []map[string]interface{}) []zap.Field {
	merged := mergeFields(fields)
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys)+2)
	for _, k := range keys {
		out = append(out, zap.Any(k, merged[k]))
	}
	if traceID, spanID, ok := tracing.TraceFields(ctx); ok {
		out = append(out, zap.String("traceId", traceID), zap.String("spanId", spanID))
	}
	return out
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logger.Debug(msg, l.fields(ctx, fields)...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logger.Info(msg, l.fields(ctx, fields)...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logger.Warn(msg, l.fields(ctx, fields)...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.logger.Error(msg, append(l.fields(ctx, fields), zap.Error(err))...)
}
