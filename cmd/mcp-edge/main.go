// Command mcp-edge runs the public MCP edge gateway. The proxy subcommand
// runs the stdio bridge for desktop clients.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meshai-dev/mcp-edge/internal/auth"
	"github.com/meshai-dev/mcp-edge/internal/config"
	"github.com/meshai-dev/mcp-edge/internal/gateway"
	"github.com/meshai-dev/mcp-edge/internal/metrics"
	"github.com/meshai-dev/mcp-edge/internal/ratelimit"
	"github.com/meshai-dev/mcp-edge/internal/server"
	"github.com/meshai-dev/mcp-edge/internal/tracing"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	var logLevel string

	cmd := &cobra.Command{
		Use:     "mcp-edge",
		Short:   "Public MCP edge gateway",
		Long:    "mcp-edge terminates JSON-RPC 2.0 MCP traffic, authenticates callers, enforces rate limits, and forwards messages to the orchestration gateway.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configFile, logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	cmd.AddCommand(newProxyCmd())
	return cmd
}

func runServer(configFile, logLevel string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	validator, err := auth.NewValidator(cfg.Auth, logger)
	if err != nil {
		return err
	}
	defer validator.Close()

	limiter, err := ratelimit.NewUserLimiter(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	defer limiter.Close()

	gw := gateway.NewClient(cfg.Gateway, cfg.CircuitBreaker, logger)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway client: %w", err)
	}
	defer gw.Stop(context.Background())

	reg := metrics.New()
	srv := server.New(cfg, logger, validator, limiter, gw, reg, tracer, version)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start(ctx) }()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics, reg, logger, errCh)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	logger.Info("shutdown complete")
	return nil
}

func startMetricsServer(cfg config.MetricsConfig, reg *metrics.Registry, logger *zap.Logger, errCh chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, reg.Handler())
	srv := &http.Server{
		Addr:    net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)),
		Handler: mux,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server failed: %w", err)
		}
	}()
	return srv
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
