// Package logging provides structured logging utilities with error context
// integration.
package logging

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meshai-dev/mcp-edge/internal/errors"
)

// WithError adds error context to logger fields.
func WithError(err error) []zap.Field {
	if err == nil {
		return []zap.Field{}
	}

	fields := []zap.Field{
		zap.Error(err),
	}

	var gatewayErr *errors.GatewayError
	if stderrors.As(err, &gatewayErr) {
		fields = append(fields,
			zap.String("error_type", string(gatewayErr.Type)),
			zap.String("component", gatewayErr.Component),
			zap.String("operation", gatewayErr.Operation),
			zap.String("severity", string(gatewayErr.Severity)),
			zap.Bool("retryable", gatewayErr.Retryable),
		)

		if len(gatewayErr.Context) > 0 {
			fields = append(fields, zap.Any("error_context", gatewayErr.Context))
		}
	}

	return fields
}

// WithRequestContext adds request context to logger fields.
func WithRequestContext(ctx context.Context) []zap.Field {
	fields := []zap.Field{}

	contextKeys := []struct {
		key   loggingContextKey
		field string
	}{
		{loggingContextKeyRequestID, "request_id"},
		{loggingContextKeyTraceID, "trace_id"},
		{loggingContextKeyUserID, "user_id"},
		{loggingContextKeyTenantID, "tenant_id"},
		{loggingContextKeyMethod, "method"},
		{loggingContextKeyClientIP, "client_ip"},
	}

	for _, ck := range contextKeys {
		if value := extractStringFromContext(ctx, ck.key); value != "" {
			fields = append(fields, zap.String(ck.field, value))
		}
	}

	return fields
}

func extractStringFromContext(ctx context.Context, key loggingContextKey) string {
	if value := ctx.Value(key); value != nil {
		if str, ok := value.(string); ok {
			return str
		}
	}

	return ""
}

// LogError logs an error with full context at a level derived from its
// severity.
func LogError(ctx context.Context, logger *zap.Logger, msg string, err error, additionalFields ...zap.Field) {
	fields := WithError(err)
	fields = append(fields, WithRequestContext(ctx)...)
	fields = append(fields, additionalFields...)

	switch level := levelForError(err); level {
	case zapcore.WarnLevel:
		logger.Warn(msg, fields...)
	default:
		logger.Error(msg, fields...)
	}
}

func levelForError(err error) zapcore.Level {
	var gatewayErr *errors.GatewayError
	if !stderrors.As(err, &gatewayErr) {
		return zapcore.ErrorLevel
	}

	if gatewayErr.Severity == errors.SeverityLow {
		return zapcore.WarnLevel
	}

	return zapcore.ErrorLevel
}
