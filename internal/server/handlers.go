package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	customerrors "github.com/meshai-dev/mcp-edge/internal/errors"
	"github.com/meshai-dev/mcp-edge/internal/mcp"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeDetail(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":  "mcp-edge",
		"version":  s.version,
		"protocol": "JSON-RPC 2.0",
		"endpoints": map[string]string{
			"mcp":       "/v1/mcp",
			"user_info": "/v1/user/info",
			"tools":     "/v1/tools",
			"resources": "/v1/resources",
			"workflows": "/v1/workflows",
			"health":    "/health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithHealthTimeout(r, s.cfg.Gateway.HealthTimeoutSeconds)
	defer cancel()

	gatewayHealthy := s.forward.HealthCheck(ctx)
	authHealthy := s.auth.HealthCheck(ctx)

	status := "healthy"
	if !gatewayHealthy || !authHealthy {
		status = "degraded"
	}

	body := map[string]interface{}{
		"status": status,
		"components": map[string]bool{
			"gateway":      gatewayHealthy,
			"auth_service": authHealthy,
		},
		"gateway_stats": s.forward.Stats(),
	}
	if info := s.forward.ServiceInfo(ctx); info != nil {
		body["gateway_info"] = info
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	body := map[string]interface{}{
		"user_id":     user.UserID.String(),
		"permissions": user.Permissions,
		"rate_limit":  user.RateLimit,
	}
	if user.TenantID != nil {
		body["tenant_id"] = user.TenantID.String()
	}
	if info, ok := rateInfoFromContext(r.Context()); ok {
		body["usage"] = map[string]interface{}{
			"limit":          info.Limit,
			"remaining":      info.Remaining,
			"reset_time":     info.ResetTime.Unix(),
			"window_seconds": info.Window,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.forwardRead(w, r, "tools/list")
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	s.forwardRead(w, r, "resources/list")
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	s.forwardRead(w, r, "workflows/list")
}

// forwardRead serves the REST convenience endpoints by synthesizing a
// JSON-RPC request and forwarding it like any other message.
func (s *Server) forwardRead(w http.ResponseWriter, r *http.Request, method string) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if user.TenantID == nil {
		gwErr := customerrors.NewForbiddenError("Tenant access required for MCP operations")
		writeDetail(w, customerrors.GetHTTPStatus(gwErr), gwErr.Message)
		return
	}
	if !user.HasAnyPermission(mcpPermissions...) {
		gwErr := customerrors.NewForbiddenError("Insufficient permissions for MCP operations")
		writeDetail(w, customerrors.GetHTTPStatus(gwErr), gwErr.Message)
		return
	}

	requestID := uuid.NewString()
	msg := mcp.Message{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      requestID,
	}

	res, err := s.forward.Forward(r.Context(), user, msg, requestID)
	if err != nil {
		writeDetail(w, http.StatusBadGateway, "Gateway communication error")
		return
	}
	if !res.Success {
		code := mcp.ErrorCodeInternalError
		message := "Gateway error"
		if res.Error != nil {
			code = res.Error.Code
			message = res.Error.Message
		}
		writeJSON(w, http.StatusOK, mcp.NewErrorResponse(code, message, requestID))
		return
	}
	writeJSON(w, http.StatusOK, mcp.NewResponse(res.Result, requestID))
}

func contextWithHealthTimeout(r *http.Request, seconds int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), time.Duration(seconds)*time.Second)
}
