// Package server implements the public HTTP surface of the edge gateway:
// the JSON-RPC endpoint, authenticated info endpoints, and health checks.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/meshai-dev/mcp-edge/internal/auth"
	"github.com/meshai-dev/mcp-edge/internal/circuit"
	"github.com/meshai-dev/mcp-edge/internal/config"
	"github.com/meshai-dev/mcp-edge/internal/gateway"
	"github.com/meshai-dev/mcp-edge/internal/mcp"
	"github.com/meshai-dev/mcp-edge/internal/metrics"
	"github.com/meshai-dev/mcp-edge/internal/ratelimit"
	"github.com/meshai-dev/mcp-edge/internal/tracing"
)

// Forwarder is the downstream gateway surface the server depends on.
type Forwarder interface {
	Forward(ctx context.Context, user *auth.UserContext, msg mcp.Message, requestID string) (*gateway.ForwardResult, error)
	HealthCheck(ctx context.Context) bool
	ServiceInfo(ctx context.Context) map[string]interface{}
	Stats() gateway.Stats
	CircuitState() circuit.State
}

// Server is the public edge gateway HTTP server.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	auth     auth.Validator
	limiter  ratelimit.UserLimiter
	attempts *ratelimit.AttemptLimiter
	forward  Forwarder
	metrics  *metrics.Registry
	tracer   *tracing.Provider

	version    string
	httpServer *http.Server
}

// New creates a server wired to the given components.
func New(cfg *config.Config, logger *zap.Logger, validator auth.Validator, limiter ratelimit.UserLimiter, fwd Forwarder, reg *metrics.Registry, tracer *tracing.Provider, version string) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		auth:    validator,
		limiter: limiter,
		attempts: ratelimit.NewAttemptLimiter(
			cfg.Auth.Attempts.MaxAttempts,
			time.Duration(cfg.Auth.Attempts.WindowSeconds)*time.Second,
		),
		forward: fwd,
		metrics: reg,
		tracer:  tracer,
		version: version,
	}
}

// Handler builds the full request handler including authentication
// middleware and tracing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/mcp", s.handleMCP)
	mux.HandleFunc("/v1/user/info", s.handleUserInfo)
	mux.HandleFunc("/v1/tools", s.handleListTools)
	mux.HandleFunc("/v1/resources", s.handleListResources)
	mux.HandleFunc("/v1/workflows", s.handleListWorkflows)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	handler := s.authMiddleware(mux)
	return s.tracer.WrapHandler(handler, "mcp-edge")
}

// Start runs the HTTP server until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeout) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("edge server listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeDetail writes a FastAPI style error body, used for HTTP level
// failures before a JSON-RPC response can be shaped.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
