package auth

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/meshai-dev/mcp-edge/internal/config"
)

// NewValidator constructs the token validator selected by the configuration.
func NewValidator(cfg config.AuthConfig, logger *zap.Logger) (Validator, error) {
	switch cfg.Provider {
	case "remote":
		return NewClient(cfg, logger), nil
	case "jwt":
		return NewJWTValidator(cfg.JWT, logger)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}
