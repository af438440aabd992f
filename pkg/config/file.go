package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. SCREEN_SERVER_HTTP_PORT.
const EnvPrefix = "SCREEN"

// FileLoader loads configuration from YAML files and environment variables.
type FileLoader struct {
	configPath string
	validator  *Validator
	v          *viper.Viper
}

// NewFileLoader creates a new file loader.
func NewFileLoader(configPath string) *FileLoader {
	return &FileLoader{
		configPath: configPath,
		validator:  NewValidator(),
	}
}

// Load loads configuration from file and environment variables.
func (l *FileLoader) Load() (*Config, error) {
	v := newViper()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// 配置文件可选，全部走环境变量也可以
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := l.decode(v)
	if err != nil {
		return nil, err
	}

	l.v = v
	return cfg, nil
}

// ConfigFileUsed returns the file the last Load read, or "" when none was found.
func (l *FileLoader) ConfigFileUsed() string {
	if l.v == nil {
		return ""
	}
	return l.v.ConfigFileUsed()
}

func (l *FileLoader) decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mode", "release")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	// Cache defaults
	v.SetDefault("cache.l1_max_size", 1000)
	v.SetDefault("cache.l1_ttl", 5*time.Minute)
	v.SetDefault("cache.l2_ttl", 30*time.Minute)
	v.SetDefault("cache.l3_ttl", 24*time.Hour)
	v.SetDefault("cache.warmup_cron", "@every 1h")
	v.SetDefault("cache.cleanup_interval", time.Minute)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.metrics_path", "/metrics")

	v.SetDefault("log.level", "info")
}

// LoadFromEnv loads configuration from environment variables only.
// Useful for containerized deployments.
func LoadFromEnv() (*Config, error) {
	loader := NewFileLoader("")
	v := newViper()

	cfg, err := loader.decode(v)
	if err != nil {
		return nil, err
	}
	loader.v = v
	return cfg, nil
}

// CreateExampleConfig creates an example configuration file.
func CreateExampleConfig(outputPath string) error {
	exampleYAML := `# Playlist Screen Service configuration example
# Every key can be overridden with SCREEN_<SECTION>_<KEY>, e.g. SCREEN_SERVER_HTTP_PORT=9000

server:
  http_port: 8080
  read_timeout: 15s
  write_timeout: 15s
  shutdown_timeout: 10s
  mode: release          # debug | release | test

redis:
  enabled: false         # false keeps the cache in memory only
  host: localhost
  port: 6379
  password: ""
  db: 0
  pool_size: 10
  min_idle_conns: 2
  dial_timeout: 5s
  read_timeout: 3s
  write_timeout: 3s

cache:
  l1_max_size: 1000
  l1_ttl: 5m
  l2_ttl: 30m
  l3_ttl: 24h            # stale copy served when a rebuild fails
  warmup_cron: "@every 1h"
  cleanup_interval: 1m

rate_limit:
  enabled: true
  per_second: 20
  burst: 40

telemetry:
  enabled: false
  otlp_endpoint: localhost:4317
  environment: development
  sample_rate: 1.0
  metrics_path: /metrics

log:
  level: info            # debug | info | warn | error

# Optional catalog. Without it the built-in sample artist is served.
# catalog:
#   artists:
#     - id: dua-lipa
#       name: Dua Lipa
#       avatar_url: https://picsum.photos/seed/dua-avatar/200
#       header_image_url: https://picsum.photos/seed/dua-cover/900/600
#       monthly_listeners: "88.4M"
#       verified: true
#       songs:
#         - id: houdini
#           title: Houdini
#           artists: [Dua Lipa]
#           album: Radical Optimism
#           cover_url: https://picsum.photos/seed/houdini/300
#           duration: "3:05"
#       albums:
#         - id: radical-optimism
#           title: Radical Optimism
#           cover_url: https://picsum.photos/seed/radical-optimism/300
#           year: 2024
#           type: ALBUM
`

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(exampleYAML), 0644); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}

	return nil
}
