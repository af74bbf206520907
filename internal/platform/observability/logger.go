package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/product-studio/internal/platform/requestctx"
)

const serviceName = "product-studio"

// NewLogger builds the JSON logger used by the studio. Entries use the Cloud Logging field names
// and carry the service name and the Cloud Run revision when one is set.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	for _, key := range []string{"STUDIO_LOG_LEVEL", "LOG_LEVEL"} {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err == nil {
				break
			}
		}
	}

	fields := map[string]any{"service": serviceName}
	if revision := strings.TrimSpace(os.Getenv("K_REVISION")); revision != "" {
		fields["revision"] = revision
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			TimeKey:        "timestamp",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
		InitialFields:     fields,
	}
	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// WithRequestFields augments the logger with standard request-scoped fields.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}
