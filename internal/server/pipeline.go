package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	customerrors "github.com/meshai-dev/mcp-edge/internal/errors"
	"github.com/meshai-dev/mcp-edge/internal/logging"
	"github.com/meshai-dev/mcp-edge/internal/mcp"
)

// mcpPermissions gate access to the MCP endpoint. Holding any one of them
// (or the admin wildcard) is enough; fine-grained authorization happens
// downstream in the orchestration gateway.
var mcpPermissions = []string{"mcp:read", "mcp:execute", "mcp:admin", "execute:mcp"}

// handleMCP is the JSON-RPC translation pipeline. The caller is already
// authenticated and rate limited by the middleware.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	method := "unknown"
	var id interface{}

	// Any panic past this point still answers with a JSON-RPC error rather
	// than a dropped connection.
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in request pipeline",
				zap.Any("panic", rec),
				zap.String("method", method),
				zap.Stack("stack"))
			s.writeRPCError(w, method, mcp.ErrorCodeInternalError, fmt.Sprintf("Internal error: %v", rec), id)
		}
	}()

	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	s.metrics.RequestsInFlight.Inc()
	defer s.metrics.RequestsInFlight.Dec()
	start := time.Now()

	maxBytes := s.cfg.Server.MaxRequestBytes
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		s.writeRPCError(w, method, mcp.ErrorCodeInvalidParams, "Failed to read request body", nil)
		return
	}
	if int64(len(body)) > maxBytes {
		s.writeRPCError(w, method, mcp.ErrorCodeInvalidParams, "Request too large", nil)
		return
	}

	msg, err := mcp.Decode(body)
	if err != nil {
		s.writeRPCError(w, method, mcp.ErrorCodeInvalidParams, "Invalid JSON-RPC message: "+userMessage(err), nil)
		return
	}
	id, _ = msg.ID()
	if err := msg.Validate(); err != nil {
		s.writeRPCError(w, method, mcp.ErrorCodeInvalidParams, userMessage(err), id)
		return
	}

	method = msg.Method()
	requestID := uuid.NewString()
	ctx := logging.ContextWithMethod(r.Context(), method)
	ctx = logging.ContextWithTracing(ctx, logging.GenerateTraceID(), requestID)

	if msg.IsNotification() {
		s.metrics.NotificationsTotal.WithLabelValues(method).Inc()
		if mcp.IsRecognizedNotification(method) {
			s.logger.Info("notification received", logging.WithRequestContext(ctx)...)
		} else {
			s.logger.Warn("unrecognized notification", logging.WithRequestContext(ctx)...)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if user.TenantID == nil {
		s.writeRPCError(w, method, mcp.ErrorCodeAccessDenied, "Tenant access required for MCP operations", id)
		return
	}
	if !user.HasAnyPermission(mcpPermissions...) {
		s.writeRPCError(w, method, mcp.ErrorCodeAccessDenied, "Insufficient permissions for MCP operations", id)
		return
	}

	params := msg.EnsureParams()
	params["_request_metadata"] = map[string]interface{}{
		"request_id":    requestID,
		"user_id":       user.UserID.String(),
		"tenant_id":     user.TenantID.String(),
		"client_ip":     clientIP(r),
		"user_agent":    r.UserAgent(),
		"public_server": true,
	}

	healthCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Gateway.HealthTimeoutSeconds)*time.Second)
	healthy := s.forward.HealthCheck(healthCtx)
	cancel()
	if !healthy {
		s.metrics.ForwardsTotal.WithLabelValues("unhealthy").Inc()
		s.writeRPCError(w, method, mcp.ErrorCodeInternalError, "Gateway service unavailable", id)
		return
	}

	res, err := s.forward.Forward(ctx, user, msg, requestID)
	s.metrics.RequestDuration.WithLabelValues(mcp.OperationType(method)).Observe(time.Since(start).Seconds())
	s.metrics.CircuitBreakerState.Set(float64(s.forward.CircuitState()))

	if err != nil {
		s.metrics.ForwardsTotal.WithLabelValues("error").Inc()
		logging.LogError(ctx, s.logger, "forward failed", err)
		s.writeRPCError(w, method, mcp.ErrorCodeInternalError, "Internal error: "+userMessage(err), id)
		return
	}

	// The normalized downstream result is re-wrapped as a JSON-RPC response
	// carrying the original request id; only its result or error reach the
	// caller.
	if !res.Success {
		s.metrics.ForwardsTotal.WithLabelValues("error").Inc()
		code := mcp.ErrorCodeInternalError
		message := "Gateway error"
		if res.Error != nil {
			code = res.Error.Code
			message = res.Error.Message
		}
		s.writeRPCError(w, method, code, message, id)
		return
	}

	s.metrics.ForwardsTotal.WithLabelValues("success").Inc()
	s.metrics.RequestsTotal.WithLabelValues(method, "ok").Inc()
	s.logger.Info("request forwarded",
		append(logging.WithRequestContext(ctx), zap.Duration("duration", time.Since(start)))...)
	writeJSON(w, http.StatusOK, mcp.NewResponse(res.Result, id))
}

// userMessage returns the caller-safe text of an error, without the internal
// classification prefix a GatewayError carries.
func userMessage(err error) string {
	var ge *customerrors.GatewayError
	if errors.As(err, &ge) {
		return ge.Message
	}
	return err.Error()
}

// writeRPCError writes a JSON-RPC error response with HTTP 200, matching
// JSON-RPC over HTTP semantics once a message reaches the pipeline.
func (s *Server) writeRPCError(w http.ResponseWriter, method string, code int, message string, id interface{}) {
	s.metrics.RequestsTotal.WithLabelValues(method, "error").Inc()
	writeJSON(w, http.StatusOK, mcp.NewErrorResponse(code, message, id))
}
