package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meshai-dev/mcp-edge/internal/auth"
	"github.com/meshai-dev/mcp-edge/internal/circuit"
	"github.com/meshai-dev/mcp-edge/internal/config"
	"github.com/meshai-dev/mcp-edge/internal/gateway"
	"github.com/meshai-dev/mcp-edge/internal/mcp"
	"github.com/meshai-dev/mcp-edge/internal/metrics"
	"github.com/meshai-dev/mcp-edge/internal/ratelimit"
)

type stubValidator struct {
	result  auth.TokenValidation
	healthy bool
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) auth.TokenValidation {
	if token == "" {
		return auth.Invalid(auth.ErrMissingToken, "no authentication token provided")
	}
	return s.result
}

func (s *stubValidator) HealthCheck(context.Context) bool { return s.healthy }
func (s *stubValidator) ClearCache()                      {}
func (s *stubValidator) Close() error                     { return nil }

type stubForwarder struct {
	healthy   bool
	result    *gateway.ForwardResult
	err       error
	panicWith interface{}
	lastMsg   mcp.Message
	lastUser  *auth.UserContext
	callCount int
}

func (s *stubForwarder) Forward(_ context.Context, user *auth.UserContext, msg mcp.Message, _ string) (*gateway.ForwardResult, error) {
	s.callCount++
	s.lastMsg = msg
	s.lastUser = user
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubForwarder) HealthCheck(context.Context) bool { return s.healthy }

func (s *stubForwarder) ServiceInfo(context.Context) map[string]interface{} {
	if !s.healthy {
		return nil
	}
	return map[string]interface{}{"status": "healthy", "version": "1.0.0"}
}
func (s *stubForwarder) Stats() gateway.Stats             { return gateway.Stats{CircuitState: "closed"} }
func (s *stubForwarder) CircuitState() circuit.State      { return circuit.Closed }

func validToken() auth.TokenValidation {
	userID := uuid.New()
	tenantID := uuid.New()
	return auth.TokenValidation{
		Valid:       true,
		UserID:      &userID,
		TenantID:    &tenantID,
		Permissions: []string{"mcp:execute"},
	}
}

func testConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

type testEnv struct {
	server    *Server
	handler   http.Handler
	validator *stubValidator
	forwarder *stubForwarder
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	validator := &stubValidator{result: validToken(), healthy: true}
	forwarder := &stubForwarder{
		healthy: true,
		result: &gateway.ForwardResult{
			Success:       true,
			Result:        map[string]interface{}{"tools": []interface{}{}},
			UsageRecorded: true,
		},
	}
	srv := New(cfg, zaptest.NewLogger(t), validator, ratelimit.NewMemoryUserLimiter(), forwarder, metrics.New(), nil, "test")
	return &testEnv{server: srv, handler: srv.Handler(), validator: validator, forwarder: forwarder}
}

func postMCP(t *testing.T, handler http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/mcp", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func rpcErrorCode(t *testing.T, body map[string]interface{}) float64 {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error object, got %v", body)
	return errObj["code"].(float64)
}

func TestMCPHappyPath(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// The downstream result is re-wrapped as a JSON-RPC response with the
	// original id; the transport envelope never leaks through.
	body := decodeBody(t, rec)
	assert.Equal(t, "2.0", body["jsonrpc"])
	assert.Equal(t, float64(1), body["id"])
	result, ok := body["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, result, "tools")
	assert.Nil(t, body["error"])
	assert.NotContains(t, body, "success")
	assert.NotContains(t, body, "usage_recorded")

	// Rate limit headers are present on authenticated responses.
	assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "999", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	// The forwarded message carries the enriched metadata.
	params, ok := env.forwarder.lastMsg["params"].(map[string]interface{})
	require.True(t, ok)
	meta, ok := params["_request_metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, env.forwarder.lastUser.UserID.String(), meta["user_id"])
	assert.Equal(t, true, meta["public_server"])
	assert.NotEmpty(t, meta["request_id"])
}

func TestMCPMissingToken(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := postMCP(t, env.handler, "", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "token")
}

func TestMCPInvalidToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.validator.result = auth.Invalid(auth.ErrInvalidToken, "token rejected by auth service")

	rec := postMCP(t, env.handler, "sk-bad", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMCPAuthServiceDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.validator.result = auth.Invalid(auth.ErrServiceUnavailable, "auth service unreachable")

	rec := postMCP(t, env.handler, "sk-any", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMCPTokenWithoutBearerPrefix(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	req.Header.Set("Authorization", "sk-raw")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMCPUserRateLimitExceeded(t *testing.T) {
	env := newTestEnv(t, nil)
	limit := 2
	result := validToken()
	result.RateLimit = &limit
	env.validator.result = result

	for i := 0; i < 2; i++ {
		rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestMCPAttemptLockout(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Auth.Attempts.MaxAttempts = 2
	})
	env.validator.result = auth.Invalid(auth.ErrInvalidToken, "bad token")

	for i := 0; i < 2; i++ {
		rec := postMCP(t, env.handler, "sk-bad", `{}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := postMCP(t, env.handler, "sk-bad", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "authentication attempts")
}

func TestMCPParseError(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := postMCP(t, env.handler, "sk-good", `{not json`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(mcp.ErrorCodeInvalidParams), rpcErrorCode(t, decodeBody(t, rec)))
}

func TestMCPMissingMethod(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","id":1}`)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(mcp.ErrorCodeInvalidParams), rpcErrorCode(t, body))
	assert.Equal(t, float64(1), body["id"])

	// The caller sees the plain message, not the internal classification.
	assert.Equal(t, "missing required field: method", body["error"].(map[string]interface{})["message"])
}

func TestMCPRequestTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Server.MaxRequestBytes = 128
	})
	big := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/list","id":1,"params":{"pad":%q}}`, strings.Repeat("x", 256))

	rec := postMCP(t, env.handler, "sk-good", big)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(mcp.ErrorCodeInvalidParams), rpcErrorCode(t, body))
	assert.Equal(t, "Request too large", body["error"].(map[string]interface{})["message"])
}

func TestMCPNotification(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, 0, env.forwarder.callCount)
}

func TestMCPNotificationNullIDIsRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":null}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.forwarder.callCount)
}

func TestMCPNoTenant(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := uuid.New()
	env.validator.result = auth.TokenValidation{
		Valid:       true,
		UserID:      &userID,
		Permissions: []string{"mcp:execute"},
	}

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(mcp.ErrorCodeAccessDenied), rpcErrorCode(t, body))
	assert.Contains(t, body["error"].(map[string]interface{})["message"], "Tenant access required")
}

func TestMCPInsufficientPermissions(t *testing.T) {
	env := newTestEnv(t, nil)
	result := validToken()
	result.Permissions = []string{"read:tools"}
	env.validator.result = result

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(mcp.ErrorCodeAccessDenied), rpcErrorCode(t, body))
	assert.Contains(t, body["error"].(map[string]interface{})["message"], "Insufficient permissions")
}

func TestMCPAdminWildcardPasses(t *testing.T) {
	env := newTestEnv(t, nil)
	result := validToken()
	result.Permissions = []string{"admin:all"}
	env.validator.result = result

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.Equal(t, 1, env.forwarder.callCount)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMCPGatewayUnhealthy(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.healthy = false

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(mcp.ErrorCodeInternalError), rpcErrorCode(t, body))
	assert.Contains(t, body["error"].(map[string]interface{})["message"], "Gateway service unavailable")
	assert.Equal(t, 0, env.forwarder.callCount)
}

func TestMCPForwardErrorMapped(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.result = &gateway.ForwardResult{
		Success: false,
		Error:   &mcp.Error{Code: mcp.ErrorCodeAccessDenied, Message: "Access denied"},
	}

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/call","id":7}`)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(mcp.ErrorCodeAccessDenied), rpcErrorCode(t, body))
	assert.Equal(t, float64(7), body["id"])
}

func TestMCPDownstreamErrorRewrapped(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.result = &gateway.ForwardResult{
		Success:       false,
		Error:         &mcp.Error{Code: -32000, Message: "tool failed"},
		UsageRecorded: true,
	}

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/call","id":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "2.0", body["jsonrpc"])
	assert.Equal(t, float64(3), body["id"])
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, float64(-32000), errObj["code"])
	assert.Equal(t, "tool failed", errObj["message"])
	assert.NotContains(t, body, "success")
	assert.NotContains(t, body, "usage_recorded")
}

func TestMCPPanicRecovered(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.panicWith = "boom"

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(mcp.ErrorCodeInternalError), rpcErrorCode(t, body))
	assert.Contains(t, body["error"].(map[string]interface{})["message"], "Internal error")
	assert.Equal(t, float64(9), body["id"])
}

func TestMCPForwardInternalError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.err = fmt.Errorf("boom")

	rec := postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(mcp.ErrorCodeInternalError), rpcErrorCode(t, body))
	assert.Contains(t, body["error"].(map[string]interface{})["message"], "Internal error")
}

func TestHealthPublic(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])

	info := body["gateway_info"].(map[string]interface{})
	assert.Equal(t, "1.0.0", info["version"])
}

func TestHealthDegraded(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.healthy = false

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, false, components["gateway"])
	assert.Equal(t, true, components["auth_service"])
}

func TestRootPublic(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "mcp-edge", body["service"])
	assert.Equal(t, "JSON-RPC 2.0", body["protocol"])
}

func TestRootUnknownPath(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("Authorization", "Bearer sk-good")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/user/info", nil)
	req.Header.Set("Authorization", "Bearer sk-good")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, env.validator.result.UserID.String(), body["user_id"])
	assert.Equal(t, env.validator.result.TenantID.String(), body["tenant_id"])
	usage := body["usage"].(map[string]interface{})
	assert.Equal(t, float64(1000), usage["limit"])
}

func TestListToolsForwarded(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer sk-good")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.forwarder.callCount)
	assert.Equal(t, "tools/list", env.forwarder.lastMsg.Method())

	body := decodeBody(t, rec)
	assert.Equal(t, "2.0", body["jsonrpc"])
	assert.NotNil(t, body["result"])
}

func TestListToolsRequiresPermission(t *testing.T) {
	env := newTestEnv(t, nil)
	result := validToken()
	result.Permissions = []string{"read:tools"}
	env.validator.result = result

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer sk-good")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "Insufficient permissions")
	assert.Equal(t, 0, env.forwarder.callCount)
}

func TestListToolsDownstreamError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.result = &gateway.ForwardResult{
		Success: false,
		Error:   &mcp.Error{Code: mcp.ErrorCodeRateLimitExceeded, Message: "Rate limit exceeded"},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer sk-good")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(mcp.ErrorCodeRateLimitExceeded), rpcErrorCode(t, decodeBody(t, rec)))
}

func TestOptionsBypassesAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/v1/mcp", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusUnauthorized, rec.Code)
}

func TestMCPMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/mcp", nil)
	req.Header.Set("Authorization", "Bearer sk-good")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsCounters(t *testing.T) {
	env := newTestEnv(t, nil)

	postMCP(t, env.handler, "sk-good", `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(env.server.metrics.RequestsTotal.WithLabelValues("tools/list", "ok")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(env.server.metrics.ForwardsTotal.WithLabelValues("success")))

	env.validator.result = auth.Invalid(auth.ErrInvalidToken, "bad token")
	postMCP(t, env.handler, "sk-bad", `{}`)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(env.server.metrics.AuthFailuresTotal.WithLabelValues("invalid_token")))
}

func TestGracefulShutdown(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Server.Port = 0
	})
	assert.NoError(t, env.server.Shutdown(context.Background()))

	req := httptest.NewRequest(http.MethodPost, "/v1/mcp", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
