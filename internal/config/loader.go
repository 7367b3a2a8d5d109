package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	customerrors "github.com/meshai-dev/mcp-edge/internal/errors"
)

// Load reads configuration from the given file (optional) and environment
// variables prefixed with MCP_EDGE_. Nested keys use underscores, so
// auth.service_url becomes MCP_EDGE_AUTH_SERVICE_URL.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MCP_EDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, customerrors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, customerrors.Wrap(err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, customerrors.WrapWithType(err, customerrors.TypeValidation, "invalid configuration")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.max_request_bytes", 1048576)

	// Auth defaults
	v.SetDefault("auth.provider", "remote")
	v.SetDefault("auth.service_url", "http://localhost:8001")
	v.SetDefault("auth.validate_endpoint", "/api/validate-key")
	v.SetDefault("auth.timeout_seconds", 5)
	v.SetDefault("auth.retry_attempts", 3)
	v.SetDefault("auth.retry_delay_seconds", 1.0)
	v.SetDefault("auth.cache_enabled", true)
	v.SetDefault("auth.cache_ttl_seconds", 300)
	v.SetDefault("auth.allow_dev_token", false)
	v.SetDefault("auth.default_rate_limit", 1000)
	v.SetDefault("auth.attempts.max_attempts", 5)
	v.SetDefault("auth.attempts.window_seconds", 300)
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.audience", "")
	v.SetDefault("auth.jwt.secret_key_env", "MCP_EDGE_JWT_SECRET")

	// Gateway defaults
	v.SetDefault("gateway.url", "http://localhost:8080")
	v.SetDefault("gateway.execute_path", "/api/v1/mcp/execute")
	v.SetDefault("gateway.timeout_seconds", 30)
	v.SetDefault("gateway.retry_attempts", 3)
	v.SetDefault("gateway.retry_delay_seconds", 1.0)
	v.SetDefault("gateway.health_timeout_seconds", 2)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.provider", "memory")
	v.SetDefault("rate_limit.redis.addr", "localhost:6379")
	v.SetDefault("rate_limit.redis.password", "")
	v.SetDefault("rate_limit.redis.db", 0)
	v.SetDefault("rate_limit.redis.pool_size", 10)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.recovery_timeout_seconds", 60)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "mcp-edge")
	v.SetDefault("tracing.service_version", "dev")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampler_ratio", 1.0)
	v.SetDefault("tracing.exporter_type", "stdout")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.otlp_insecure", true)
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("server.max_request_bytes must be positive, got %d", c.Server.MaxRequestBytes)
	}

	switch c.Auth.Provider {
	case "remote":
		if c.Auth.ServiceURL == "" {
			return fmt.Errorf("auth.service_url is required for the remote auth provider")
		}
	case "jwt":
		if c.Auth.JWT.SecretKeyEnv == "" {
			return fmt.Errorf("auth.jwt.secret_key_env is required for the jwt auth provider")
		}
	default:
		return fmt.Errorf("auth.provider must be \"remote\" or \"jwt\", got %q", c.Auth.Provider)
	}
	if c.Auth.RetryAttempts < 1 {
		return fmt.Errorf("auth.retry_attempts must be at least 1, got %d", c.Auth.RetryAttempts)
	}
	if c.Auth.CacheTTLSeconds < 0 {
		return fmt.Errorf("auth.cache_ttl_seconds must not be negative, got %d", c.Auth.CacheTTLSeconds)
	}
	if c.Auth.DefaultRateLimit <= 0 {
		return fmt.Errorf("auth.default_rate_limit must be positive, got %d", c.Auth.DefaultRateLimit)
	}
	if c.Auth.Attempts.MaxAttempts <= 0 {
		return fmt.Errorf("auth.attempts.max_attempts must be positive, got %d", c.Auth.Attempts.MaxAttempts)
	}
	if c.Auth.Attempts.WindowSeconds <= 0 {
		return fmt.Errorf("auth.attempts.window_seconds must be positive, got %d", c.Auth.Attempts.WindowSeconds)
	}

	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("gateway.timeout_seconds must be positive, got %d", c.Gateway.TimeoutSeconds)
	}
	if c.Gateway.RetryAttempts < 1 {
		return fmt.Errorf("gateway.retry_attempts must be at least 1, got %d", c.Gateway.RetryAttempts)
	}

	switch c.RateLimit.Provider {
	case "memory":
	case "redis":
		if c.RateLimit.Redis.Addr == "" {
			return fmt.Errorf("rate_limit.redis.addr is required for the redis rate limit provider")
		}
	default:
		return fmt.Errorf("rate_limit.provider must be \"memory\" or \"redis\", got %q", c.RateLimit.Provider)
	}

	if c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be positive, got %d", c.CircuitBreaker.FailureThreshold)
	}
	if c.CircuitBreaker.RecoveryTimeoutSeconds <= 0 {
		return fmt.Errorf("circuit_breaker.recovery_timeout_seconds must be positive, got %d", c.CircuitBreaker.RecoveryTimeoutSeconds)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.ExporterType {
		case "otlp", "stdout":
		default:
			return fmt.Errorf("tracing.exporter_type must be \"otlp\" or \"stdout\", got %q", c.Tracing.ExporterType)
		}
		if c.Tracing.SamplerRatio < 0 || c.Tracing.SamplerRatio > 1 {
			return fmt.Errorf("tracing.sampler_ratio must be between 0 and 1, got %f", c.Tracing.SamplerRatio)
		}
	}

	return nil
}
