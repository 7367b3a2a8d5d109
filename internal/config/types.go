// Package config defines configuration structures for the MCP edge gateway.
package config

// Config represents the complete configuration for the edge gateway.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

// ServerConfig represents the public HTTP server configuration.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout    int    `mapstructure:"write_timeout"` // seconds
	IdleTimeout     int    `mapstructure:"idle_timeout"`  // seconds
	MaxRequestBytes int64  `mapstructure:"max_request_bytes"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Provider          string             `mapstructure:"provider"` // "remote" or "jwt"
	ServiceURL        string             `mapstructure:"service_url"`
	ValidateEndpoint  string             `mapstructure:"validate_endpoint"`
	TimeoutSeconds    int                `mapstructure:"timeout_seconds"`
	RetryAttempts     int                `mapstructure:"retry_attempts"`
	RetryDelaySeconds float64            `mapstructure:"retry_delay_seconds"`
	CacheEnabled      bool               `mapstructure:"cache_enabled"`
	CacheTTLSeconds   int                `mapstructure:"cache_ttl_seconds"`
	AllowDevToken     bool               `mapstructure:"allow_dev_token"`
	DefaultRateLimit  int                `mapstructure:"default_rate_limit"` // requests per hour
	Attempts          AttemptLimitConfig `mapstructure:"attempts"`
	JWT               JWTConfig          `mapstructure:"jwt"`
}

// AttemptLimitConfig throttles raw authentication attempts per caller.
type AttemptLimitConfig struct {
	MaxAttempts   int `mapstructure:"max_attempts"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// JWTConfig represents the local JWT validation configuration.
type JWTConfig struct {
	Issuer       string `mapstructure:"issuer"`
	Audience     string `mapstructure:"audience"`
	SecretKeyEnv string `mapstructure:"secret_key_env"`
}

// GatewayConfig represents the downstream orchestration gateway configuration.
type GatewayConfig struct {
	URL                  string  `mapstructure:"url"`
	ExecutePath          string  `mapstructure:"execute_path"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds"`
	RetryAttempts        int     `mapstructure:"retry_attempts"`
	RetryDelaySeconds    float64 `mapstructure:"retry_delay_seconds"`
	HealthTimeoutSeconds int     `mapstructure:"health_timeout_seconds"`
}

// RateLimitConfig represents per-user rate limiting configuration.
type RateLimitConfig struct {
	Enabled  bool        `mapstructure:"enabled"`
	Provider string      `mapstructure:"provider"` // "memory" or "redis"
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents Redis connection configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// CircuitBreakerConfig represents circuit breaker configuration for the
// downstream gateway.
type CircuitBreakerConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	FailureThreshold       int  `mapstructure:"failure_threshold"`
	RecoveryTimeoutSeconds int  `mapstructure:"recovery_timeout_seconds"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// TracingConfig represents the distributed tracing configuration.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	Environment    string  `mapstructure:"environment"`
	SamplerRatio   float64 `mapstructure:"sampler_ratio"`
	ExporterType   string  `mapstructure:"exporter_type"` // "otlp" or "stdout"
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool    `mapstructure:"otlp_insecure"`
}
