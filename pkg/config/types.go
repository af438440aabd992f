// Package config provides configuration management for the playlist screen service.
package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`

	// Catalog is optional. When it lists no artists the built-in sample is served.
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.HTTPPort)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Connection pool
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`

	// Timeouts
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig holds tiered cache settings.
type CacheConfig struct {
	L1MaxSize       int           `mapstructure:"l1_max_size"`
	L1TTL           time.Duration `mapstructure:"l1_ttl"`
	L2TTL           time.Duration `mapstructure:"l2_ttl"`
	L3TTL           time.Duration `mapstructure:"l3_ttl"`
	WarmupCron      string        `mapstructure:"warmup_cron"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// TelemetryConfig holds tracing and metrics settings.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Environment  string  `mapstructure:"environment"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	MetricsPath  string  `mapstructure:"metrics_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// CatalogConfig holds an optional catalog fixture.
type CatalogConfig struct {
	Artists []ArtistFixture `mapstructure:"artists"`
}

// ArtistFixture describes one artist with its songs and albums.
type ArtistFixture struct {
	ID               string         `mapstructure:"id"`
	Name             string         `mapstructure:"name"`
	AvatarURL        string         `mapstructure:"avatar_url"`
	HeaderImageURL   string         `mapstructure:"header_image_url"`
	MonthlyListeners string         `mapstructure:"monthly_listeners"`
	Verified         bool           `mapstructure:"verified"`
	Songs            []SongFixture  `mapstructure:"songs"`
	Albums           []AlbumFixture `mapstructure:"albums"`
}

// SongFixture describes one song.
type SongFixture struct {
	ID       string   `mapstructure:"id"`
	Title    string   `mapstructure:"title"`
	Artists  []string `mapstructure:"artists"`
	Album    string   `mapstructure:"album"`
	CoverURL string   `mapstructure:"cover_url"`
	Duration string   `mapstructure:"duration"`
	Explicit bool     `mapstructure:"explicit"`
}

// AlbumFixture describes one album.
type AlbumFixture struct {
	ID       string `mapstructure:"id"`
	Title    string `mapstructure:"title"`
	CoverURL string `mapstructure:"cover_url"`
	Year     int    `mapstructure:"year"`
	Type     string `mapstructure:"type"`
}
