// Package mcp defines the JSON-RPC 2.0 message types spoken by the edge
// gateway, along with the error codes used across the request pipeline.
package mcp

import "strings"

// Request represents an MCP request message.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	ID      interface{}            `json:"id,omitempty"`
}

// Response represents an MCP response message.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603

	// Gateway-specific error codes.
	ErrorCodeAuthFailed        = -32001
	ErrorCodeAccessDenied      = -32002
	ErrorCodeRateLimitExceeded = -32003
)

// Recognized notification methods. Unrecognized notification methods are
// still acknowledged; the distinction only affects logging.
const (
	NotificationInitialized      = "notifications/initialized"
	NotificationRootsListChanged = "notifications/roots/list_changed"
)

// NewResponse creates a successful MCP response.
func NewResponse(result, id interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an MCP error response.
func NewErrorResponse(code int, message string, id interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// IsRecognizedNotification reports whether the method is a notification
// method the gateway knows about.
func IsRecognizedNotification(method string) bool {
	return method == NotificationInitialized || method == NotificationRootsListChanged
}

// OperationType categorizes a method name for logging and metrics labels.
func OperationType(method string) string {
	switch {
	case strings.HasSuffix(method, "/list"), strings.HasSuffix(method, "/read"),
		strings.HasPrefix(method, "list_"), strings.HasPrefix(method, "read_"):
		return "read"
	case strings.HasSuffix(method, "/call"), strings.HasPrefix(method, "tool_"),
		strings.HasPrefix(method, "workflow_"):
		return "execute"
	case strings.HasPrefix(method, "agent_"):
		return "manage"
	default:
		return "unknown"
	}
}
