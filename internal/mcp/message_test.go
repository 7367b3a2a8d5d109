package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValid(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	require.NoError(t, err)
	assert.Equal(t, "tools/list", msg.Method())

	id, present := msg.ID()
	assert.True(t, present)
	assert.Equal(t, float64(1), id)
	assert.False(t, msg.IsNotification())
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{broken`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"jsonrpc":"2.0","method":"tools/list","id":1}`, false},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, true},
		{"empty method", `{"jsonrpc":"2.0","method":"","id":1}`, true},
		{"non-string method", `{"jsonrpc":"2.0","method":5,"id":1}`, true},
		{"params not object", `{"jsonrpc":"2.0","method":"m","params":[1],"id":1}`, true},
		{"params object", `{"jsonrpc":"2.0","method":"m","params":{"a":1},"id":1}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			if tt.wantErr {
				assert.Error(t, msg.Validate())
			} else {
				assert.NoError(t, msg.Validate())
			}
		})
	}
}

func TestNotificationDetection(t *testing.T) {
	// Absent id makes a notification.
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.True(t, msg.IsNotification())
	_, present := msg.ID()
	assert.False(t, present)

	// An explicit null id is still a request.
	msg, err = Decode([]byte(`{"jsonrpc":"2.0","method":"tools/list","id":null}`))
	require.NoError(t, err)
	assert.False(t, msg.IsNotification())
	id, present := msg.ID()
	assert.True(t, present)
	assert.Nil(t, id)
}

func TestIsRecognizedNotification(t *testing.T) {
	assert.True(t, IsRecognizedNotification("notifications/initialized"))
	assert.True(t, IsRecognizedNotification("notifications/roots/list_changed"))
	assert.False(t, IsRecognizedNotification("notifications/other"))
}

func TestEnsureParams(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"m","id":1}`))
	require.NoError(t, err)

	params := msg.EnsureParams()
	params["key"] = "value"

	got, ok := msg["params"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", got["key"])

	// Existing params are returned in place.
	msg2, err := Decode([]byte(`{"jsonrpc":"2.0","method":"m","params":{"a":1},"id":1}`))
	require.NoError(t, err)
	params2 := msg2.EnsureParams()
	assert.Equal(t, float64(1), params2["a"])
}

func TestOperationType(t *testing.T) {
	assert.Equal(t, "read", OperationType("tools/list"))
	assert.Equal(t, "read", OperationType("resources/read"))
	assert.Equal(t, "execute", OperationType("tools/call"))
	assert.Equal(t, "unknown", OperationType("something/else"))
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(ErrorCodeInvalidParams, "bad params", float64(3))
	assert.Equal(t, "2.0", resp.JSONRPC)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorCodeInvalidParams, resp.Error.Code)
	assert.Equal(t, float64(3), resp.ID)
}
