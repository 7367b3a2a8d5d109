package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshai-dev/mcp-edge/internal/config"
)

// Claims are the JWT claims recognized by the local validator. Subject
// carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	TenantID  string   `json:"tenant_id,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	RateLimit *int     `json:"rate_limit,omitempty"`
}

// JWTValidator validates HMAC-signed tokens locally without calling the
// auth service. Used for self-hosted deployments where the edge shares a
// signing secret with the identity provider.
type JWTValidator struct {
	cfg    config.JWTConfig
	secret []byte
	logger *zap.Logger
}

// NewJWTValidator builds a local validator, reading the signing secret from
// the environment variable named by the configuration.
func NewJWTValidator(cfg config.JWTConfig, logger *zap.Logger) (*JWTValidator, error) {
	secret := os.Getenv(cfg.SecretKeyEnv)
	if secret == "" {
		return nil, fmt.Errorf("jwt secret environment variable %s is not set", cfg.SecretKeyEnv)
	}
	return &JWTValidator{cfg: cfg, secret: []byte(secret), logger: logger}, nil
}

// ValidateToken parses and verifies the token signature and standard claims.
func (v *JWTValidator) ValidateToken(_ context.Context, token string) TokenValidation {
	if token == "" {
		return Invalid(ErrMissingToken, "no authentication token provided")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Invalid(ErrExpiredToken, "token has expired")
		}
		return Invalid(ErrInvalidToken, "token verification failed: "+err.Error())
	}
	if !parsed.Valid {
		return Invalid(ErrInvalidToken, "token is not valid")
	}

	result := TokenValidation{Valid: true, RateLimit: claims.RateLimit}

	if claims.Subject != "" {
		if id, err := uuid.Parse(claims.Subject); err == nil {
			result.UserID = &id
		} else {
			return Invalid(ErrInvalidToken, "token subject is not a valid user id")
		}
	}
	if claims.TenantID != "" {
		if id, err := uuid.Parse(claims.TenantID); err == nil {
			result.TenantID = &id
		} else {
			return Invalid(ErrInvalidToken, "token tenant_id is not a valid tenant id")
		}
	}

	if len(claims.Scopes) > 0 {
		result.Permissions = claims.Scopes
	} else {
		result.Permissions = DefaultPermissions()
	}
	return result
}

// HealthCheck always succeeds for the local validator.
func (v *JWTValidator) HealthCheck(_ context.Context) bool { return true }

// ClearCache is a no-op for the local validator.
func (v *JWTValidator) ClearCache() {}

// Close releases validator resources.
func (v *JWTValidator) Close() error { return nil }
