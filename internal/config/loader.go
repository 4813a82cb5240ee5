package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BETSLIP_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the service then
// runs on defaults plus environment. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BETSLIP_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Backend ──
	setStr(&cfg.Backend.BaseURL, "BETSLIP_BACKEND_BASE_URL")
	setDuration(&cfg.Backend.Timeout, "BETSLIP_BACKEND_TIMEOUT")
	setFloat64(&cfg.Backend.RateLimitRPS, "BETSLIP_BACKEND_RATE_LIMIT_RPS")
	setInt(&cfg.Backend.RateLimitBurst, "BETSLIP_BACKEND_RATE_LIMIT_BURST")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "BETSLIP_FEED_ENABLED")
	setStr(&cfg.Feed.WsURL, "BETSLIP_FEED_WS_URL")
	setDuration(&cfg.Feed.ReconnectDelay, "BETSLIP_FEED_RECONNECT_DELAY")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "BETSLIP_STORAGE_BACKEND")
	setStr(&cfg.Storage.Session, "BETSLIP_STORAGE_SESSION")
	setStr(&cfg.Storage.SelectionsKey, "BETSLIP_STORAGE_SELECTIONS_KEY")
	setStr(&cfg.Storage.ShareCodeKey, "BETSLIP_STORAGE_SHARE_CODE_KEY")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BETSLIP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETSLIP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETSLIP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BETSLIP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BETSLIP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BETSLIP_REDIS_TLS_ENABLED")

	// ── Match info ──
	setInt(&cfg.MatchInfo.CacheSize, "BETSLIP_MATCH_INFO_CACHE_SIZE")
	setDuration(&cfg.MatchInfo.TTL, "BETSLIP_MATCH_INFO_TTL")
	setDuration(&cfg.MatchInfo.RefreshInterval, "BETSLIP_MATCH_INFO_REFRESH_INTERVAL")
	setInt(&cfg.MatchInfo.MaxConcurrency, "BETSLIP_MATCH_INFO_MAX_CONCURRENCY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BETSLIP_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BETSLIP_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BETSLIP_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BETSLIP_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "BETSLIP_SERVER_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "BETSLIP_SERVER_RATE_LIMIT_BURST")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "BETSLIP_METRICS_ENABLED")
	setStr(&cfg.Metrics.Path, "BETSLIP_METRICS_PATH")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "BETSLIP_LOG_LEVEL")
	setStr(&cfg.LogFormat, "BETSLIP_LOG_FORMAT")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
