package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default key-store endpoints published by Epic Games.
const (
	DefaultAuthJWKSURL    = "https://api.epicgames.dev/epic/oauth/v1/.well-known/jwks.json"
	DefaultConnectJWKSURL = "https://api.epicgames.dev/auth/v1/oauth/jwks"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		// Honor X-Forwarded-For / X-Real-IP. Only behind a proxy that sets them.
		TrustProxy bool `yaml:"trust_proxy"`
	} `yaml:"server"`

	Epic struct {
		AuthJWKSURL    string `yaml:"auth_jwks_url"`
		ConnectJWKSURL string `yaml:"connect_jwks_url"`
		// Age after which a downloaded key set is considered stale.
		JWKSTTL string `yaml:"jwks_ttl"`
		// Upper bound for a single key-store download.
		FetchTimeout string `yaml:"fetch_timeout"`
		// Tolerance applied to exp and nbf.
		ClockSkew string `yaml:"clock_skew"`
	} `yaml:"epic"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns int  `yaml:"max_open_conns"`
			MaxIdleConns int  `yaml:"max_idle_conns"`
			Migrate      bool `yaml:"migrate"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Session struct {
		CookieName string `yaml:"cookie_name"`
		Domain     string `yaml:"domain"`
		SameSite   string `yaml:"samesite"`
		Secure     bool   `yaml:"secure"`
		TTL        string `yaml:"ttl"`
	} `yaml:"session"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
	} `yaml:"rate"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// defaults and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Epic.AuthJWKSURL == "" {
		c.Epic.AuthJWKSURL = DefaultAuthJWKSURL
	}
	if c.Epic.ConnectJWKSURL == "" {
		c.Epic.ConnectJWKSURL = DefaultConnectJWKSURL
	}
	if c.Epic.JWKSTTL == "" {
		c.Epic.JWKSTTL = "1h"
	}
	if c.Epic.FetchTimeout == "" {
		c.Epic.FetchTimeout = "10s"
	}
	if c.Epic.ClockSkew == "" {
		c.Epic.ClockSkew = "30s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "epicauth"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sid"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "12h"
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
}

// Validate checks durations and driver names.
func (c *Config) Validate() error {
	durations := map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"epic.jwks_ttl":           c.Epic.JWKSTTL,
		"epic.fetch_timeout":      c.Epic.FetchTimeout,
		"session.ttl":             c.Session.TTL,
		"rate.login.window":       c.Rate.Login.Window,
	}
	for name, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}

	if d, err := time.ParseDuration(c.Epic.ClockSkew); err != nil {
		return fmt.Errorf("config: epic.clock_skew: %w", err)
	} else if d < 0 {
		return errors.New("config: epic.clock_skew must not be negative")
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("config: storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return errors.New("config: cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("config: unknown cache kind %q", c.Cache.Kind)
	}

	if c.Epic.AuthJWKSURL == "" || c.Epic.ConnectJWKSURL == "" {
		return errors.New("config: both epic key-store urls are required")
	}
	return nil
}

// Duration parses one of the already validated duration fields.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}
	if v, ok := getEnvBool("SERVER_TRUST_PROXY"); ok {
		c.Server.TrustProxy = v
	}

	// EPIC
	if v, ok := getEnvStr("EPIC_AUTH_JWKS_URL"); ok {
		c.Epic.AuthJWKSURL = v
	}
	if v, ok := getEnvStr("EPIC_CONNECT_JWKS_URL"); ok {
		c.Epic.ConnectJWKSURL = v
	}
	if v, ok := getEnvStr("EPIC_JWKS_TTL"); ok {
		c.Epic.JWKSTTL = v
	}
	if v, ok := getEnvStr("EPIC_FETCH_TIMEOUT"); ok {
		c.Epic.FetchTimeout = v
	}
	if v, ok := getEnvStr("EPIC_CLOCK_SKEW"); ok {
		c.Epic.ClockSkew = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvBool("POSTGRES_MIGRATE"); ok {
		c.Storage.Postgres.Migrate = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvStr("SESSION_SAMESITE"); ok {
		c.Session.SameSite = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SESSION_TTL"); ok {
		c.Session.TTL = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvStr("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}
}
