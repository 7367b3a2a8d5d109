package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayErrorMessage(t *testing.T) {
	err := New(TypeValidation, "bad input")
	assert.Equal(t, "VALIDATION: bad input", err.Error())
	assert.Equal(t, "bad input", err.Message)
	assert.Equal(t, TypeValidation, err.Type)

	err = err.WithComponent("pipeline").WithOperation("decode")
	assert.Equal(t, "[pipeline] decode: VALIDATION: bad input", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("underlying")
	err := Wrap(cause, "context added")

	assert.Contains(t, err.Error(), "context added")
	assert.True(t, stderrors.Is(err, cause))
}

func TestIsType(t *testing.T) {
	err := NewRateLimitError("slow down")
	assert.True(t, IsType(err, TypeRateLimit))
	assert.False(t, IsType(err, TypeValidation))
	assert.False(t, IsType(stderrors.New("plain"), TypeRateLimit))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewUnavailableError("down")))
	assert.False(t, IsRetryable(NewValidationError("bad")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestGetHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, GetHTTPStatus(NewUnauthorizedError("no")))
	assert.Equal(t, http.StatusTooManyRequests, GetHTTPStatus(NewRateLimitError("slow")))
	assert.Equal(t, http.StatusServiceUnavailable, GetHTTPStatus(NewUnavailableError("down")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(stderrors.New("plain")))
}

func TestWithContext(t *testing.T) {
	err := NewValidationError("bad").
		WithContext("field", "method").
		WithComponent("pipeline").
		WithOperation("decode")

	require.NotNil(t, err.Context)
	assert.Equal(t, "method", err.Context["field"])
	assert.Equal(t, "pipeline", err.Component)
	assert.Equal(t, "decode", err.Operation)
}
