package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the carbonledger server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Identity IdentityConfig
	Keys     KeysConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	RequestTimeout time.Duration
	StoreTimeout   time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL                string
	Namespace          string
	FactorCacheTTL     time.Duration
	RateLimitPerMinute int
}

// IdentityConfig points at the identity provider that issues browser sessions.
// When JWTSecret is set, session tokens are verified locally instead of by a round trip.
type IdentityConfig struct {
	BaseURL    string
	AnonKey    string
	JWTSecret  string
	CookieName string
	Timeout    time.Duration
}

type KeysConfig struct {
	Prefix string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("CARBON_PORT", 8080),
			Env:            envString("CARBON_ENV", "development"),
			RequestTimeout: envDuration("CARBON_REQUEST_TIMEOUT", 15*time.Second),
			StoreTimeout:   envDuration("CARBON_STORE_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:                os.Getenv("REDIS_URL"),
			Namespace:          envString("REDIS_NAMESPACE", "carbonledger"),
			FactorCacheTTL:     envDuration("FACTOR_CACHE_TTL", 5*time.Minute),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Identity: IdentityConfig{
			BaseURL:    strings.TrimRight(os.Getenv("IDENTITY_URL"), "/"),
			AnonKey:    os.Getenv("IDENTITY_ANON_KEY"),
			JWTSecret:  os.Getenv("IDENTITY_JWT_SECRET"),
			CookieName: envString("SESSION_COOKIE_NAME", "sb-access-token"),
			Timeout:    envDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		Keys: KeysConfig{
			Prefix: envString("API_KEY_PREFIX", "sk_live_"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Identity.BaseURL == "" {
		return fmt.Errorf("IDENTITY_URL is required")
	}
	if !strings.HasPrefix(c.Identity.BaseURL, "http://") && !strings.HasPrefix(c.Identity.BaseURL, "https://") {
		return fmt.Errorf("IDENTITY_URL must start with http:// or https://, got %q", c.Identity.BaseURL)
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("CARBON_REQUEST_TIMEOUT must be positive")
	}
	if c.Server.StoreTimeout <= 0 {
		return fmt.Errorf("CARBON_STORE_TIMEOUT must be positive")
	}

	if c.Keys.Prefix == "" || strings.ContainsAny(c.Keys.Prefix, " \t") {
		return fmt.Errorf("API_KEY_PREFIX must be a non-empty token, got %q", c.Keys.Prefix)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
