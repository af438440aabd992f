package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/listen-stream/playlist-screen/pkg/logger"
)

// Validator validates configuration values.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := v.ValidateRedis(&cfg.Redis); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := v.ValidateCache(&cfg.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if err := v.ValidateRateLimit(&cfg.RateLimit); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}

	if err := v.ValidateTelemetry(&cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if err := v.ValidateCatalog(&cfg.Catalog); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	return nil
}

// ValidateServer validates server configuration.
func (v *Validator) ValidateServer(cfg *ServerConfig) error {
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", cfg.HTTPPort)
	}

	if cfg.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout cannot be negative")
	}

	if cfg.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout cannot be negative")
	}

	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative")
	}

	switch cfg.Mode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("mode must be debug, release or test, got %q", cfg.Mode)
	}

	return nil
}

// ValidateRedis validates Redis configuration. A disabled Redis is not checked.
func (v *Validator) ValidateRedis(cfg *RedisConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}

	if cfg.PoolSize < 0 {
		return fmt.Errorf("pool_size cannot be negative")
	}

	if cfg.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if cfg.MinIdleConns > cfg.PoolSize && cfg.PoolSize > 0 {
		return fmt.Errorf("min_idle_conns cannot exceed pool_size")
	}

	return nil
}

// ValidateCache validates cache configuration.
func (v *Validator) ValidateCache(cfg *CacheConfig) error {
	if cfg.L1MaxSize <= 0 {
		return fmt.Errorf("l1_max_size must be positive")
	}

	if cfg.L1TTL <= 0 || cfg.L2TTL <= 0 || cfg.L3TTL <= 0 {
		return fmt.Errorf("l1_ttl, l2_ttl and l3_ttl must be positive")
	}

	if cfg.L3TTL < cfg.L2TTL {
		return fmt.Errorf("l3_ttl must not be shorter than l2_ttl")
	}

	if cfg.WarmupCron != "" {
		if _, err := cron.ParseStandard(cfg.WarmupCron); err != nil {
			return fmt.Errorf("invalid warmup_cron %q: %w", cfg.WarmupCron, err)
		}
	}

	if cfg.CleanupInterval < 0 {
		return fmt.Errorf("cleanup_interval cannot be negative")
	}

	return nil
}

// ValidateRateLimit validates rate limit configuration.
func (v *Validator) ValidateRateLimit(cfg *RateLimitConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.PerSecond <= 0 {
		return fmt.Errorf("per_second must be positive")
	}

	if cfg.Burst <= 0 {
		return fmt.Errorf("burst must be positive")
	}

	return nil
}

// ValidateTelemetry validates telemetry configuration.
func (v *Validator) ValidateTelemetry(cfg *TelemetryConfig) error {
	if cfg.Enabled && cfg.OTLPEndpoint == "" {
		return fmt.Errorf("otlp_endpoint is required when enabled")
	}

	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be within [0, 1]")
	}

	if cfg.MetricsPath != "" && !strings.HasPrefix(cfg.MetricsPath, "/") {
		return fmt.Errorf("metrics_path must start with /")
	}

	return nil
}

// ValidateCatalog checks the shape of a configured catalog. Referential
// checks such as duplicate IDs happen when the catalog is built.
func (v *Validator) ValidateCatalog(cfg *CatalogConfig) error {
	for i, a := range cfg.Artists {
		if a.ID == "" {
			return fmt.Errorf("artists[%d]: id is required", i)
		}
		if a.Name == "" {
			return fmt.Errorf("artists[%d]: name is required", i)
		}
		for j, s := range a.Songs {
			if s.ID == "" || s.Title == "" {
				return fmt.Errorf("artists[%d].songs[%d]: id and title are required", i, j)
			}
		}
	}
	return nil
}
