// Package config defines the top-level configuration for the bet slip
// service and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BETSLIP_* environment variables.
type Config struct {
	Backend   BackendConfig   `toml:"backend"`
	Feed      FeedConfig      `toml:"feed"`
	Storage   StorageConfig   `toml:"storage"`
	Redis     RedisConfig     `toml:"redis"`
	MatchInfo MatchInfoConfig `toml:"match_info"`
	Server    ServerConfig    `toml:"server"`
	Metrics   MetricsConfig   `toml:"metrics"`
	LogLevel  string          `toml:"log_level"`
	LogFormat string          `toml:"log_format"`
}

// BackendConfig points at the slip backend REST API.
type BackendConfig struct {
	BaseURL        string   `toml:"base_url"`
	Timeout        duration `toml:"timeout"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

// FeedConfig holds the live fixture feed endpoint.
type FeedConfig struct {
	Enabled        bool     `toml:"enabled"`
	WsURL          string   `toml:"ws_url"`
	ReconnectDelay duration `toml:"reconnect_delay"`
}

// StorageConfig selects where the slip is mirrored between restarts.
type StorageConfig struct {
	// Backend is "memory" or "redis".
	Backend       string `toml:"backend"`
	Session       string `toml:"session"`
	SelectionsKey string `toml:"selections_key"`
	ShareCodeKey  string `toml:"share_code_key"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// MatchInfoConfig sizes the fixture metadata cache.
type MatchInfoConfig struct {
	CacheSize       int      `toml:"cache_size"`
	TTL             duration `toml:"ttl"`
	RefreshInterval duration `toml:"refresh_interval"`
	MaxConcurrency  int      `toml:"max_concurrency"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required in the X-API-Key header on /api routes.
	APIKey string `toml:"api_key"`
	// RateLimitRPS is the per-client request rate; 0 disables limiting.
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:4000/api",
			Timeout:        duration{30 * time.Second},
			RateLimitRPS:   10,
			RateLimitBurst: 5,
		},
		Feed: FeedConfig{
			Enabled:        false,
			WsURL:          "ws://localhost:4000/ws/fixtures",
			ReconnectDelay: duration{2 * time.Second},
		},
		Storage: StorageConfig{
			Backend:       "memory",
			Session:       "default",
			SelectionsKey: "betslip_selections",
			ShareCodeKey:  "betslip_share_code",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		MatchInfo: MatchInfoConfig{
			CacheSize:       512,
			TTL:             duration{10 * time.Minute},
			RefreshInterval: duration{time.Minute},
			MaxConcurrency:  8,
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8080,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

var validStorageBackends = map[string]bool{
	"memory": true,
	"redis":  true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validLogFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text)", c.LogFormat))
	}

	// Backend
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend: base_url must be an absolute URL, got %q", c.Backend.BaseURL))
	}
	if c.Backend.Timeout.Duration <= 0 {
		errs = append(errs, "backend: timeout must be > 0")
	}
	if c.Backend.RateLimitRPS <= 0 {
		errs = append(errs, "backend: rate_limit_rps must be > 0")
	}
	if c.Backend.RateLimitBurst < 1 {
		errs = append(errs, "backend: rate_limit_burst must be >= 1")
	}

	// Feed
	if c.Feed.Enabled {
		if !strings.HasPrefix(c.Feed.WsURL, "ws://") && !strings.HasPrefix(c.Feed.WsURL, "wss://") {
			errs = append(errs, fmt.Sprintf("feed: ws_url must start with ws:// or wss://, got %q", c.Feed.WsURL))
		}
		if c.Feed.ReconnectDelay.Duration <= 0 {
			errs = append(errs, "feed: reconnect_delay must be > 0")
		}
	}

	// Storage
	if !validStorageBackends[strings.ToLower(c.Storage.Backend)] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: memory, redis)", c.Storage.Backend))
	}
	if c.Storage.SelectionsKey == "" || c.Storage.ShareCodeKey == "" {
		errs = append(errs, "storage: selections_key and share_code_key must not be empty")
	}
	if c.Storage.SelectionsKey != "" && c.Storage.SelectionsKey == c.Storage.ShareCodeKey {
		errs = append(errs, "storage: selections_key and share_code_key must differ")
	}

	// Redis is only checked when something uses it.
	if strings.EqualFold(c.Storage.Backend, "redis") {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Match info
	if c.MatchInfo.CacheSize < 1 {
		errs = append(errs, "match_info: cache_size must be >= 1")
	}
	if c.MatchInfo.TTL.Duration < 0 {
		errs = append(errs, "match_info: ttl must not be negative")
	}
	if c.MatchInfo.RefreshInterval.Duration <= 0 {
		errs = append(errs, "match_info: refresh_interval must be > 0")
	}
	if c.MatchInfo.MaxConcurrency < 1 {
		errs = append(errs, "match_info: max_concurrency must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server: rate_limit_rps must not be negative")
		}
		if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
			errs = append(errs, "server: rate_limit_burst must be >= 1 when rate limiting is on")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("metrics: path must start with /, got %q", c.Metrics.Path))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
