// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config holds all configuration for the course server.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Local record store
	StoreBackend string `env:"STORE_BACKEND" envDefault:"file"`
	StoreDir     string `env:"STORE_DIR" envDefault:"./data"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"courses:"`

	// Remote data service; empty DSN runs local-only.
	DatabaseURL        string        `env:"DATABASE_URL"`
	RemoteProbeTimeout time.Duration `env:"REMOTE_PROBE_TIMEOUT" envDefault:"3s"`
	RemoteCallTimeout  time.Duration `env:"REMOTE_CALL_TIMEOUT" envDefault:"5s"`

	// Sessions
	JWTKey        string        `env:"JWT_KEY"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	AdminUsername string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`

	CatalogFile  string        `env:"CATALOG_FILE"`
	ReferralPoll time.Duration `env:"REFERRAL_POLL" envDefault:"2s"`
	UXDelay      time.Duration `env:"UX_DELAY" envDefault:"0s"`

	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	TrustProxy  bool     `env:"TRUST_PROXY" envDefault:"false"`

	SigninMaxFails int           `env:"SIGNIN_MAX_FAILS" envDefault:"5"`
	SigninWindow   time.Duration `env:"SIGNIN_WINDOW" envDefault:"15m"`
	SigninBlock    time.Duration `env:"SIGNIN_BLOCK" envDefault:"15m"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q", c.StoreBackend)
	}
	if c.JWTKey == "" {
		return fmt.Errorf("JWT_KEY is required")
	}
	if c.RemoteProbeTimeout <= 0 || c.RemoteCallTimeout <= 0 {
		return fmt.Errorf("remote timeouts must be positive")
	}
	if c.ReferralPoll <= 0 {
		return fmt.Errorf("REFERRAL_POLL must be positive")
	}
	if c.SigninMaxFails < 1 {
		return fmt.Errorf("SIGNIN_MAX_FAILS must be at least 1")
	}
	return nil
}
