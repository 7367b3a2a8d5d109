package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshai-dev/mcp-edge/internal/config"
	customerrors "github.com/meshai-dev/mcp-edge/internal/errors"
	"github.com/meshai-dev/mcp-edge/internal/logging"
)

// DevToken is a fixed development token accepted only when
// auth.allow_dev_token is enabled. It maps to a well-known user with full
// permissions and must never be enabled in production.
const DevToken = "dev_test123"

var devUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Validator validates bearer tokens and reports auth service health.
type Validator interface {
	ValidateToken(ctx context.Context, token string) TokenValidation
	HealthCheck(ctx context.Context) bool
	ClearCache()
	Close() error
}

// Client validates tokens against the platform auth service over HTTP.
type Client struct {
	cfg        config.AuthConfig
	httpClient *http.Client
	cache      *TokenCache
	logger     *zap.Logger

	validateURL string
	healthURL   string
}

// NewClient creates a remote auth client from the given configuration.
func NewClient(cfg config.AuthConfig, logger *zap.Logger) *Client {
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger:      logger,
		validateURL: cfg.ServiceURL + cfg.ValidateEndpoint,
		healthURL:   cfg.ServiceURL + "/health",
	}
	if cfg.CacheEnabled {
		c.cache = NewTokenCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	}
	return c
}

type validateResponse struct {
	Valid bool `json:"valid"`
	User  struct {
		ID       string `json:"id"`
		TenantID string `json:"tenant_id"`
	} `json:"user"`
	Permissions interface{} `json:"permissions"`
	RateLimit   *int        `json:"rate_limit"`
}

// ValidateToken checks the token against the auth service. Successful
// validations are cached for the configured TTL. Transport failures are
// retried with exponential backoff before giving up as service_unavailable.
func (c *Client) ValidateToken(ctx context.Context, token string) TokenValidation {
	if token == "" {
		return Invalid(ErrMissingToken, "no authentication token provided")
	}

	if c.cfg.AllowDevToken && token == DevToken {
		userID := devUserID
		return TokenValidation{
			Valid:       true,
			UserID:      &userID,
			Permissions: []string{"admin:all"},
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(token); ok {
			return cached
		}
	}

	result := c.validateRemote(ctx, token)
	if result.Valid && c.cache != nil {
		c.cache.Put(token, result)
	}
	return result
}

// validateRemote calls the auth service, retrying transport failures only.
// Any response status, mapped or not, is terminal for the attempt loop.
func (c *Client) validateRemote(ctx context.Context, token string) TokenValidation {
	var lastErr error

	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(c.cfg.RetryDelaySeconds*math.Pow(2, float64(attempt-1))*1000) * time.Millisecond
			select {
			case <-ctx.Done():
				return Invalid(ErrServiceUnavailable, "validation cancelled: "+ctx.Err().Error())
			case <-time.After(delay):
			}
		}

		resp, err := c.doValidate(ctx, token)
		if err != nil {
			lastErr = err
			gwErr := customerrors.WrapWithType(err, customerrors.TypeUnavailable, "auth service request failed").
				WithComponent("auth").
				WithOperation("validate_token").
				WithContext("attempt", attempt+1)
			logging.LogError(ctx, c.logger, "auth service request failed", gwErr)
			continue
		}

		switch {
		case resp.status == http.StatusOK && resp.body.Valid:
			return c.buildValidation(resp.body)
		case resp.status == http.StatusOK, resp.status == http.StatusUnauthorized:
			return Invalid(ErrInvalidToken, "token rejected by auth service")
		case resp.status == http.StatusTooManyRequests:
			return Invalid(ErrRateLimitExceeded, "auth service rate limit exceeded")
		default:
			c.logger.Warn("auth service returned unexpected status",
				zap.Int("status", resp.status))
			return Invalid(ErrServiceUnavailable, fmt.Sprintf("auth service returned status %d", resp.status))
		}
	}

	msg := "auth service unreachable"
	if lastErr != nil {
		msg = "auth service unavailable: " + lastErr.Error()
	}
	return Invalid(ErrServiceUnavailable, msg)
}

type validateResult struct {
	status int
	body   validateResponse
}

func (c *Client) doValidate(ctx context.Context, token string) (*validateResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.validateURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &validateResult{status: resp.StatusCode}
	if resp.StatusCode == http.StatusOK {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read validation response: %w", err)
		}
		if err := json.Unmarshal(data, &result.body); err != nil {
			return nil, fmt.Errorf("failed to decode validation response: %w", err)
		}
	}
	return result, nil
}

func (c *Client) buildValidation(body validateResponse) TokenValidation {
	v := TokenValidation{Valid: true, RateLimit: body.RateLimit}

	if body.User.ID != "" {
		if id, err := uuid.Parse(body.User.ID); err == nil {
			v.UserID = &id
		} else {
			c.logger.Warn("auth service returned malformed user id", zap.String("user_id", body.User.ID))
		}
	}
	if body.User.TenantID != "" {
		if id, err := uuid.Parse(body.User.TenantID); err == nil {
			v.TenantID = &id
		} else {
			c.logger.Warn("auth service returned malformed tenant id", zap.String("tenant_id", body.User.TenantID))
		}
	}

	perms, err := parsePermissions(body.Permissions)
	if err != nil {
		c.logger.Warn("failed to parse permissions, applying defaults", zap.Error(err))
		perms = DefaultPermissions()
	}
	v.Permissions = perms
	return v
}

// HealthCheck probes the auth service health endpoint.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode == http.StatusOK
}

// ClearCache drops all cached token validations.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// Close releases client resources.
func (c *Client) Close() error {
	if c.cache != nil {
		c.cache.Close()
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
