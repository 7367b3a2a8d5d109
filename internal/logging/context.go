package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// loggingContextKey is a type for logging-specific context keys.
type loggingContextKey string

const (
	traceIDSize   = 16 // bytes for trace ID
	requestIDSize = 8  // bytes for request ID

	loggingContextKeyTraceID   loggingContextKey = "trace_id"
	loggingContextKeyRequestID loggingContextKey = "request_id"
	loggingContextKeyUserID    loggingContextKey = "user_id"
	loggingContextKeyTenantID  loggingContextKey = "tenant_id"
	loggingContextKeyMethod    loggingContextKey = "method"
	loggingContextKeyClientIP  loggingContextKey = "client_ip"
)

// GenerateTraceID generates a unique trace ID.
func GenerateTraceID() string {
	b := make([]byte, traceIDSize)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("trace_%d", time.Now().UnixNano())
	}

	return hex.EncodeToString(b)
}

// GenerateRequestID generates a unique request ID.
func GenerateRequestID() string {
	b := make([]byte, requestIDSize)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}

	return hex.EncodeToString(b)
}

// ContextWithTracing adds trace and request IDs to context.
func ContextWithTracing(ctx context.Context, traceID, requestID string) context.Context {
	ctx = context.WithValue(ctx, loggingContextKeyTraceID, traceID)
	ctx = context.WithValue(ctx, loggingContextKeyRequestID, requestID)

	return ctx
}

// ContextWithUserInfo adds user and tenant IDs to context.
func ContextWithUserInfo(ctx context.Context, userID, tenantID string) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, loggingContextKeyUserID, userID)
	}

	if tenantID != "" {
		ctx = context.WithValue(ctx, loggingContextKeyTenantID, tenantID)
	}

	return ctx
}

// ContextWithMethod adds the MCP method name to context.
func ContextWithMethod(ctx context.Context, method string) context.Context {
	if method != "" {
		ctx = context.WithValue(ctx, loggingContextKeyMethod, method)
	}

	return ctx
}

// ContextWithClientIP adds the caller address to context.
func ContextWithClientIP(ctx context.Context, clientIP string) context.Context {
	if clientIP != "" {
		ctx = context.WithValue(ctx, loggingContextKeyClientIP, clientIP)
	}

	return ctx
}

// RequestIDFromContext returns the request ID stored in context, if any.
func RequestIDFromContext(ctx context.Context) string {
	return extractStringFromContext(ctx, loggingContextKeyRequestID)
}
