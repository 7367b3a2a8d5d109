package mcp

import (
	"encoding/json"

	customerrors "github.com/meshai-dev/mcp-edge/internal/errors"
)

// Message is the raw wire form of an inbound JSON-RPC message. It is kept as
// a map so that the pipeline can distinguish an absent id (notification) from
// a null one, and so that metadata enrichment preserves unknown fields when
// the message is forwarded downstream.
type Message map[string]interface{}

// Decode parses a JSON body into a Message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, customerrors.WrapWithType(err, customerrors.TypeValidation, "malformed JSON-RPC message").
			WithComponent("mcp")
	}

	return msg, nil
}

// Validate checks the structural requirements of a JSON-RPC envelope:
// a non-empty string method, and params (if present) being an object.
func (m Message) Validate() error {
	rawMethod, ok := m["method"]
	if !ok {
		return customerrors.NewValidationError("missing required field: method").
			WithComponent("mcp")
	}

	method, ok := rawMethod.(string)
	if !ok || method == "" {
		return customerrors.NewValidationError("method must be a non-empty string").
			WithComponent("mcp")
	}

	if rawParams, present := m["params"]; present && rawParams != nil {
		if _, ok := rawParams.(map[string]interface{}); !ok {
			return customerrors.NewValidationError("params must be an object").
				WithComponent("mcp")
		}
	}

	return nil
}

// Method returns the method name, or "" if absent or malformed.
func (m Message) Method() string {
	method, _ := m["method"].(string)

	return method
}

// ID returns the request id and whether the id field is present. A message
// without an id is a notification and must not receive a response.
func (m Message) ID() (interface{}, bool) {
	id, ok := m["id"]

	return id, ok
}

// IsNotification reports whether the message carries no id.
func (m Message) IsNotification() bool {
	_, ok := m["id"]

	return !ok
}

// EnsureParams returns the params object, creating it if absent.
func (m Message) EnsureParams() map[string]interface{} {
	if params, ok := m["params"].(map[string]interface{}); ok {
		return params
	}

	params := make(map[string]interface{})
	m["params"] = params

	return params
}
