// Package errors provides error classification and context management for the
// edge gateway.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	TypeValidation   ErrorType = "VALIDATION"
	TypeUnauthorized ErrorType = "UNAUTHORIZED"
	TypeForbidden    ErrorType = "FORBIDDEN"
	TypeRateLimit    ErrorType = "RATE_LIMIT"
	TypeTimeout      ErrorType = "TIMEOUT"
	TypeUnavailable  ErrorType = "UNAVAILABLE"
	TypeInternal     ErrorType = "INTERNAL"
)

// Severity levels used to pick the log level for an error.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// GatewayError is the base error type for all gateway errors.
type GatewayError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Severity   Severity               `json:"severity"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"http_status,omitempty"`
	Component  string                 `json:"component,omitempty"`
	Operation  string                 `json:"operation,omitempty"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	var b strings.Builder

	if e.Component != "" {
		b.WriteString("[")
		b.WriteString(e.Component)
		b.WriteString("] ")
	}

	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}

	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause of the error.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *GatewayError) WithContext(key string, value interface{}) *GatewayError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}

	e.Context[key] = value

	return e
}

// WithComponent sets the component that generated the error.
func (e *GatewayError) WithComponent(component string) *GatewayError {
	e.Component = component

	return e
}

// WithOperation sets the operation that caused the error.
func (e *GatewayError) WithOperation(operation string) *GatewayError {
	e.Operation = operation

	return e
}

// WithHTTPStatus sets the HTTP status code for the error.
func (e *GatewayError) WithHTTPStatus(status int) *GatewayError {
	e.HTTPStatus = status

	return e
}

// New creates a new GatewayError.
func New(errType ErrorType, message string) *GatewayError {
	return &GatewayError{
		Type:      errType,
		Message:   message,
		Severity:  severityForType(errType),
		Retryable: retryableType(errType),
	}
}

// Wrap wraps an existing error, preserving classification when the error is
// already a GatewayError.
func Wrap(err error, message string) *GatewayError {
	if err == nil {
		return nil
	}

	var ge *GatewayError
	if errors.As(err, &ge) {
		return &GatewayError{
			Type:       ge.Type,
			Message:    message,
			Cause:      ge,
			Context:    ge.Context,
			Severity:   ge.Severity,
			Retryable:  ge.Retryable,
			HTTPStatus: ge.HTTPStatus,
			Component:  ge.Component,
			Operation:  ge.Operation,
		}
	}

	return &GatewayError{
		Type:      TypeInternal,
		Message:   message,
		Cause:     err,
		Severity:  SeverityMedium,
		Retryable: false,
	}
}

// WrapWithType wraps an error with an explicit type.
func WrapWithType(err error, errType ErrorType, message string) *GatewayError {
	if err == nil {
		return nil
	}

	return &GatewayError{
		Type:      errType,
		Message:   message,
		Cause:     err,
		Severity:  severityForType(errType),
		Retryable: retryableType(errType),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *GatewayError {
	if err == nil {
		return nil
	}

	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Type == errType
	}

	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return false
}

// GetHTTPStatus returns the appropriate HTTP status code for an error.
func GetHTTPStatus(err error) int {
	var ge *GatewayError
	if errors.As(err, &ge) && ge.HTTPStatus > 0 {
		return ge.HTTPStatus
	}

	switch {
	case IsType(err, TypeValidation):
		return http.StatusBadRequest
	case IsType(err, TypeUnauthorized):
		return http.StatusUnauthorized
	case IsType(err, TypeForbidden):
		return http.StatusForbidden
	case IsType(err, TypeRateLimit):
		return http.StatusTooManyRequests
	case IsType(err, TypeTimeout):
		return http.StatusRequestTimeout
	case IsType(err, TypeUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func severityForType(errType ErrorType) Severity {
	switch errType {
	case TypeInternal:
		return SeverityHigh
	case TypeUnauthorized, TypeForbidden, TypeTimeout, TypeUnavailable:
		return SeverityMedium
	case TypeValidation, TypeRateLimit:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

func retryableType(errType ErrorType) bool {
	switch errType {
	case TypeTimeout, TypeUnavailable, TypeRateLimit:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(message string) *GatewayError {
	return New(TypeValidation, message).WithHTTPStatus(http.StatusBadRequest)
}

func NewUnauthorizedError(message string) *GatewayError {
	return New(TypeUnauthorized, message).WithHTTPStatus(http.StatusUnauthorized)
}

func NewForbiddenError(message string) *GatewayError {
	return New(TypeForbidden, message).WithHTTPStatus(http.StatusForbidden)
}

func NewRateLimitError(message string) *GatewayError {
	return New(TypeRateLimit, message).WithHTTPStatus(http.StatusTooManyRequests)
}

func NewUnavailableError(service string) *GatewayError {
	return New(TypeUnavailable, "service "+service+" is unavailable").
		WithHTTPStatus(http.StatusServiceUnavailable)
}

func NewInternalError(message string) *GatewayError {
	return New(TypeInternal, message).WithHTTPStatus(http.StatusInternalServerError)
}
