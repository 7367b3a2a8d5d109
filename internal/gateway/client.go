// Package gateway implements the HTTP client that forwards MCP messages to
// the downstream orchestration gateway, guarded by a circuit breaker.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshai-dev/mcp-edge/internal/auth"
	"github.com/meshai-dev/mcp-edge/internal/circuit"
	"github.com/meshai-dev/mcp-edge/internal/config"
	customerrors "github.com/meshai-dev/mcp-edge/internal/errors"
	"github.com/meshai-dev/mcp-edge/internal/logging"
	"github.com/meshai-dev/mcp-edge/internal/mcp"
)

// ForwardResult is the normalized outcome of a downstream call. Every
// downstream status and transport failure is folded into this shape; it is
// never written to the caller verbatim. The pipeline re-wraps it as a
// JSON-RPC response carrying the original request id.
type ForwardResult struct {
	Success        bool                   `json:"success"`
	Result         map[string]interface{} `json:"result,omitempty"`
	Error          *mcp.Error             `json:"error,omitempty"`
	UsageRecorded  bool                   `json:"usage_recorded"`
	QuotaRemaining map[string]interface{} `json:"quota_remaining,omitempty"`
	ProcessingTime float64                `json:"processing_time"`
}

func failResult(code int, message string) *ForwardResult {
	return &ForwardResult{
		Success: false,
		Error:   &mcp.Error{Code: code, Message: message},
	}
}

// Stats is a snapshot of client counters for the info endpoints.
type Stats struct {
	ActiveRequests  int64   `json:"active_requests"`
	TotalRequests   int64   `json:"total_requests"`
	TotalFailures   int64   `json:"total_failures"`
	SuccessRate     float64 `json:"success_rate"`
	CircuitState    string  `json:"circuit_state"`
	CircuitFailures int     `json:"circuit_failures"`
}

// Client forwards MCP messages to the orchestration gateway.
type Client struct {
	cfg          config.GatewayConfig
	httpClient   *http.Client
	healthClient *http.Client
	breaker      *circuit.Breaker
	logger       *zap.Logger

	started        atomic.Bool
	activeRequests atomic.Int64
	totalRequests  atomic.Int64
	totalFailures  atomic.Int64
}

// NewClient creates a gateway client. Start must be called before use.
func NewClient(cfg config.GatewayConfig, cb config.CircuitBreakerConfig, logger *zap.Logger) *Client {
	c := &Client{cfg: cfg, logger: logger}
	if cb.Enabled {
		c.breaker = circuit.NewBreaker(cb.FailureThreshold, time.Duration(cb.RecoveryTimeoutSeconds)*time.Second)
	}
	return c
}

// Start initializes the HTTP transports.
func (c *Client) Start(_ context.Context) error {
	c.httpClient = &http.Client{Timeout: time.Duration(c.cfg.TimeoutSeconds) * time.Second}
	c.healthClient = &http.Client{Timeout: time.Duration(c.cfg.HealthTimeoutSeconds) * time.Second}
	c.started.Store(true)
	c.logger.Info("gateway client started", zap.String("url", c.cfg.URL))
	return nil
}

// Stop shuts the client down. Forward calls after Stop fail fast.
func (c *Client) Stop(_ context.Context) error {
	c.started.Store(false)
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	if c.healthClient != nil {
		c.healthClient.CloseIdleConnections()
	}
	c.logger.Info("gateway client stopped")
	return nil
}

type forwardPayload struct {
	UserContext map[string]interface{} `json:"user_context"`
	MCPMessage  mcp.Message            `json:"mcp_message"`
	RequestID   string                 `json:"request_id"`
}

// Forward sends the message downstream and returns the normalized result.
// Transport failures are retried with exponential backoff; mapped HTTP error
// statuses are terminal and become an embedded JSON-RPC error. The error
// return covers only local preconditions, never downstream outcomes.
func (c *Client) Forward(ctx context.Context, user *auth.UserContext, msg mcp.Message, requestID string) (*ForwardResult, error) {
	if !c.started.Load() {
		return nil, customerrors.NewInternalError("gateway client not initialized").WithComponent("gateway")
	}

	if c.breaker != nil && !c.breaker.CanExecute() {
		return failResult(mcp.ErrorCodeInternalError, "Gateway service temporarily unavailable"), nil
	}

	c.totalRequests.Add(1)
	c.activeRequests.Add(1)
	defer c.activeRequests.Add(-1)

	metadata := make(map[string]interface{}, len(user.Metadata)+1)
	for k, v := range user.Metadata {
		metadata[k] = v
	}
	metadata["forwarded_from"] = "public_mcp_server"
	userContext := map[string]interface{}{
		"user_id":     user.UserID.String(),
		"permissions": user.Permissions,
		"rate_limit":  user.RateLimit,
		"metadata":    metadata,
	}
	if user.TenantID != nil {
		userContext["tenant_id"] = user.TenantID.String()
	}

	body, err := json.Marshal(forwardPayload{
		UserContext: userContext,
		MCPMessage:  msg,
		RequestID:   requestID,
	})
	if err != nil {
		return nil, customerrors.Wrap(err, "failed to marshal forward payload").WithComponent("gateway")
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(c.cfg.RetryDelaySeconds*math.Pow(2, float64(attempt-1))*1000) * time.Millisecond
			select {
			case <-ctx.Done():
				c.recordFailure()
				return failResult(mcp.ErrorCodeInternalError, "Gateway communication error: "+ctx.Err().Error()), nil
			case <-time.After(delay):
			}
		}

		resp, err := c.doForward(ctx, body)
		if err != nil {
			gwErr := classifyTransport(err)
			c.logger.Warn("gateway request failed",
				append(logging.WithError(gwErr),
					zap.Int("attempt", attempt+1),
					zap.String("request_id", requestID))...)
			if !customerrors.IsRetryable(gwErr) {
				c.recordFailure()
				return failResult(mcp.ErrorCodeInternalError, "Gateway communication error: "+err.Error()), nil
			}
			lastErr = err
			continue
		}
		// Unmapped statuses count as transport failures and are retried.
		if !mappedStatus(resp.status) {
			lastErr = fmt.Errorf("unexpected status %d", resp.status)
			c.logger.Warn("gateway returned unexpected status",
				zap.Int("status", resp.status),
				zap.Int("attempt", attempt+1),
				zap.String("request_id", requestID))
			continue
		}
		result, err := c.handleResponse(resp)
		if err != nil {
			lastErr = err
			continue
		}
		c.recordSuccess()
		return result, nil
	}

	c.recordFailure()
	details := "no response"
	if lastErr != nil {
		details = lastErr.Error()
	}
	return failResult(mcp.ErrorCodeInternalError, "Gateway communication error: "+details), nil
}

type forwardResponse struct {
	status int
	body   []byte
}

func (c *Client) doForward(ctx context.Context, body []byte) (*forwardResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+c.cfg.ExecutePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	return &forwardResponse{status: resp.StatusCode, body: data}, nil
}

// classifyTransport tags a transport failure for retry policy and logging.
func classifyTransport(err error) *customerrors.GatewayError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return customerrors.WrapWithType(err, customerrors.TypeTimeout, "gateway request timed out").
			WithComponent("gateway")
	}
	return customerrors.WrapWithType(err, customerrors.TypeUnavailable, "gateway unreachable").
		WithComponent("gateway")
}

func mappedStatus(status int) bool {
	switch status {
	case http.StatusOK, http.StatusBadRequest, http.StatusUnauthorized,
		http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// handleResponse folds a mapped downstream status into a ForwardResult. A
// malformed 200 body is returned as an error so the caller retries it like
// any other transport failure.
func (c *Client) handleResponse(resp *forwardResponse) (*ForwardResult, error) {
	switch resp.status {
	case http.StatusOK:
		var result ForwardResult
		if err := json.Unmarshal(resp.body, &result); err != nil {
			return nil, fmt.Errorf("malformed gateway response: %w", err)
		}
		return &result, nil
	case http.StatusBadRequest:
		detail := "Invalid request"
		var parsed struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(resp.body, &parsed); err == nil && parsed.Detail != "" {
			detail = parsed.Detail
		}
		return failResult(mcp.ErrorCodeInvalidParams, detail), nil
	case http.StatusUnauthorized:
		return failResult(mcp.ErrorCodeAuthFailed, "Authentication failed"), nil
	case http.StatusForbidden:
		return failResult(mcp.ErrorCodeAccessDenied, "Access denied"), nil
	case http.StatusTooManyRequests:
		return failResult(mcp.ErrorCodeRateLimitExceeded, "Rate limit exceeded"), nil
	default:
		// Unreachable: callers filter on mappedStatus first.
		return nil, fmt.Errorf("unexpected status %d", resp.status)
	}
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}

func (c *Client) recordFailure() {
	c.totalFailures.Add(1)
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

// HealthCheck probes the gateway health endpoint and reports whether it
// declares itself healthy.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if !c.started.Load() {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.healthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return false
	}
	return body.Status == "healthy"
}

// ServiceInfo fetches the gateway's health body for the edge health
// endpoint's detail section. Returns nil when the gateway is unreachable.
func (c *Client) ServiceInfo(ctx context.Context) map[string]interface{} {
	if !c.started.Load() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return nil
	}
	resp, err := c.healthClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var info map[string]interface{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return nil
	}
	return info
}

// Stats returns a snapshot of client counters.
func (c *Client) Stats() Stats {
	s := Stats{
		ActiveRequests: c.activeRequests.Load(),
		TotalRequests:  c.totalRequests.Load(),
		TotalFailures:  c.totalFailures.Load(),
		CircuitState:   "disabled",
	}
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.TotalRequests-s.TotalFailures) / float64(s.TotalRequests)
	}
	if c.breaker != nil {
		state, failures := c.breaker.Snapshot()
		s.CircuitState = state.String()
		s.CircuitFailures = failures
	}
	return s
}

// CircuitState returns the breaker state, or Closed when the breaker is
// disabled.
func (c *Client) CircuitState() circuit.State {
	if c.breaker == nil {
		return circuit.Closed
	}
	state, _ := c.breaker.Snapshot()
	return state
}
