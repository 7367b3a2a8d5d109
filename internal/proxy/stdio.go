// Package proxy implements the stdio bridge that lets desktop MCP clients
// speak to the edge gateway. It reads JSON-RPC messages line by line from
// stdin, answers protocol handshake methods locally, and forwards
// everything else over HTTP with a static bearer token.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/meshai-dev/mcp-edge/internal/mcp"
)

const protocolVersion = "2024-11-05"

// Config configures the stdio bridge.
type Config struct {
	ServerURL      string
	Token          string
	TimeoutSeconds int
	Version        string
}

// ToolCallParams are the parameters of a tools/call request.
type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type handlerFunc func(ctx context.Context, msg mcp.Message) (interface{}, error)

// Bridge proxies JSON-RPC between a stdio client and the edge gateway.
type Bridge struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	in         io.Reader
	out        io.Writer

	handlers map[string]handlerFunc
}

// NewBridge creates a bridge reading from in and writing to out.
func NewBridge(cfg Config, logger *zap.Logger, in io.Reader, out io.Writer) *Bridge {
	b := &Bridge{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:     logger,
		in:         in,
		out:        out,
	}
	b.handlers = map[string]handlerFunc{
		"initialize": b.handleInitialize,
		"ping":       b.handlePing,
		"tools/call": b.handleToolCall,
	}
	return b
}

// Run processes messages until stdin closes or the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(b.in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(b.out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := b.handleLine(ctx, line)
		if resp == nil {
			continue
		}
		data, err := json.Marshal(resp)
		if err != nil {
			b.logger.Error("failed to marshal response", zap.Error(err))
			continue
		}
		writer.Write(data)
		writer.WriteByte('\n')
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read failed: %w", err)
	}
	return nil
}

// handleLine parses and dispatches one message. Returns nil when no
// response must be written, which is the case for notifications.
func (b *Bridge) handleLine(ctx context.Context, line []byte) interface{} {
	msg, err := mcp.Decode(line)
	if err != nil {
		return mcp.NewErrorResponse(mcp.ErrorCodeParseError, "Parse error: "+err.Error(), nil)
	}
	if err := msg.Validate(); err != nil {
		id, _ := msg.ID()
		return mcp.NewErrorResponse(mcp.ErrorCodeInvalidRequest, err.Error(), id)
	}

	method := msg.Method()
	id, _ := msg.ID()

	if msg.IsNotification() {
		b.logger.Debug("notification received", zap.String("method", method))
		if !mcp.IsRecognizedNotification(method) {
			b.logger.Warn("unrecognized notification", zap.String("method", method))
		}
		return nil
	}

	handler, ok := b.handlers[method]
	if !ok {
		handler = b.forward
	}
	resp, err := handler(ctx, msg)
	if err != nil {
		b.logger.Error("request failed", zap.String("method", method), zap.Error(err))
		return mcp.NewErrorResponse(mcp.ErrorCodeInternalError, err.Error(), id)
	}
	return resp
}

// handleInitialize answers the protocol handshake locally so the client
// can start without a gateway round trip.
func (b *Bridge) handleInitialize(_ context.Context, msg mcp.Message) (interface{}, error) {
	id, _ := msg.ID()
	return mcp.Message{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools":     map[string]interface{}{},
				"resources": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "mcp-edge-proxy",
				"version": b.cfg.Version,
			},
		},
	}, nil
}

func (b *Bridge) handlePing(_ context.Context, msg mcp.Message) (interface{}, error) {
	id, _ := msg.ID()
	return mcp.Message{"jsonrpc": "2.0", "id": id, "result": map[string]interface{}{}}, nil
}

// handleToolCall validates tool call parameters before forwarding.
func (b *Bridge) handleToolCall(ctx context.Context, msg mcp.Message) (interface{}, error) {
	id, _ := msg.ID()
	raw := msg["params"]

	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewErrorResponse(mcp.ErrorCodeInvalidParams, "invalid tool call params", id), nil
	}
	var params ToolCallParams
	if err := json.Unmarshal(data, &params); err != nil {
		return mcp.NewErrorResponse(mcp.ErrorCodeInvalidParams, "invalid tool call params: "+err.Error(), id), nil
	}
	if params.Name == "" {
		return mcp.NewErrorResponse(mcp.ErrorCodeInvalidParams, "tool name is required", id), nil
	}
	return b.forward(ctx, msg)
}

// forward sends the message to the edge gateway and returns its response.
func (b *Bridge) forward(ctx context.Context, msg mcp.Message) (interface{}, error) {
	id, _ := msg.ID()

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.ServerURL+"/v1/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.Token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return mcp.NewErrorResponse(mcp.ErrorCodeInternalError, "Edge server unreachable: "+err.Error(), id), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var out mcp.Message
		if err := json.Unmarshal(data, &out); err != nil {
			return mcp.NewErrorResponse(mcp.ErrorCodeInternalError, "Malformed edge server response", id), nil
		}
		return out, nil
	case http.StatusUnauthorized:
		return mcp.NewErrorResponse(mcp.ErrorCodeAuthFailed, "Authentication failed", id), nil
	case http.StatusTooManyRequests:
		return mcp.NewErrorResponse(mcp.ErrorCodeRateLimitExceeded, "Rate limit exceeded", id), nil
	default:
		return mcp.NewErrorResponse(mcp.ErrorCodeInternalError,
			fmt.Sprintf("Edge server returned status %d", resp.StatusCode), id), nil
	}
}
