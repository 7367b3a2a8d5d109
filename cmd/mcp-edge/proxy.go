package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meshai-dev/mcp-edge/internal/proxy"
)

func newProxyCmd() *cobra.Command {
	var serverURL string
	var token string
	var timeout int

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the stdio bridge for desktop MCP clients",
		Long:  "proxy reads JSON-RPC messages from stdin and forwards them to the edge gateway over HTTP, writing responses to stdout. Logs go to stderr so stdout stays a clean protocol stream.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("MCP_EDGE_PROXY_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("no token provided: set --token or MCP_EDGE_PROXY_TOKEN")
			}
			return runProxy(serverURL, token, timeout)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8080", "edge gateway base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for the edge gateway")
	cmd.Flags().IntVar(&timeout, "timeout", 60, "request timeout in seconds")
	return cmd
}

func runProxy(serverURL, token string, timeout int) error {
	// stdout carries the protocol stream, so the logger writes to stderr.
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge := proxy.NewBridge(proxy.Config{
		ServerURL:      serverURL,
		Token:          token,
		TimeoutSeconds: timeout,
		Version:        version,
	}, logger, os.Stdin, os.Stdout)

	logger.Info("stdio bridge started", zap.String("server_url", serverURL))
	return bridge.Run(ctx)
}
