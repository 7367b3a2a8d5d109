// Package auth implements token validation against the platform auth
// service, with result caching, retry, and a local JWT mode.
package auth

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies authentication failures.
type ErrorKind string

const (
	ErrMissingToken            ErrorKind = "missing_token"
	ErrInvalidToken            ErrorKind = "invalid_token"
	ErrExpiredToken            ErrorKind = "expired_token"
	ErrInsufficientPermissions ErrorKind = "insufficient_permissions"
	ErrRateLimitExceeded       ErrorKind = "rate_limit_exceeded"
	ErrServiceUnavailable      ErrorKind = "service_unavailable"
)

// AuthError is a classified authentication failure.
type AuthError struct {
	Kind    ErrorKind
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewAuthError constructs an AuthError with the given kind and message.
func NewAuthError(kind ErrorKind, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

// TokenValidation is the outcome of validating a bearer token. When Valid is
// false, Err carries the classified failure.
type TokenValidation struct {
	Valid       bool
	UserID      *uuid.UUID
	TenantID    *uuid.UUID
	Permissions []string
	RateLimit   *int
	Err         *AuthError
}

// Invalid builds a failed validation result with the given error kind.
func Invalid(kind ErrorKind, message string) TokenValidation {
	return TokenValidation{Valid: false, Err: NewAuthError(kind, message)}
}

// UserContext is the authenticated caller identity attached to a request
// after successful token validation.
type UserContext struct {
	UserID      uuid.UUID
	TenantID    *uuid.UUID
	Permissions []string
	RateLimit   int
	Metadata    map[string]interface{}
}

// NewUserContext builds a UserContext from a successful validation,
// substituting the default rate limit when the validation carries none.
func NewUserContext(v TokenValidation, defaultRateLimit int) *UserContext {
	limit := defaultRateLimit
	if v.RateLimit != nil {
		limit = *v.RateLimit
	}
	var userID uuid.UUID
	if v.UserID != nil {
		userID = *v.UserID
	}
	return &UserContext{
		UserID:      userID,
		TenantID:    v.TenantID,
		Permissions: v.Permissions,
		RateLimit:   limit,
		Metadata:    map[string]interface{}{},
	}
}

// HasPermission reports whether the user holds the exact permission or the
// admin:all wildcard.
func (u *UserContext) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm || p == "admin:all" {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the user holds at least one of the
// given permissions.
func (u *UserContext) HasAnyPermission(perms ...string) bool {
	for _, p := range perms {
		if u.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every given permission.
func (u *UserContext) HasAllPermissions(perms ...string) bool {
	for _, p := range perms {
		if !u.HasPermission(p) {
			return false
		}
	}
	return true
}
