package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the demo server settings, read from the environment.
type Config struct {
	Addr        string        `env:"AUTHSTATUS_SERVER_ADDR" envDefault:":8080"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	RedisPrefix string        `env:"AUTHSTATUS_REDIS_PREFIX" envDefault:"authstatus"`
	SessionTTL  time.Duration `env:"AUTHSTATUS_SESSION_TTL" envDefault:"24h"`
	TokenTTL    time.Duration `env:"AUTHSTATUS_TOKEN_TTL" envDefault:"5m"`
	JWTSecret   string        `env:"AUTHSTATUS_JWT_SECRET"`
	Issuer      string        `env:"AUTHSTATUS_JWT_ISSUER" envDefault:"authstatus"`
	DemoEmail   string        `env:"AUTHSTATUS_DEMO_EMAIL" envDefault:"alice@example.com"`
	DemoPass    string        `env:"AUTHSTATUS_DEMO_PASSWORD" envDefault:"correct-horse"`

	// LoginMaxAttempts of 0 disables sign-in throttling.
	LoginMaxAttempts int           `env:"AUTHSTATUS_LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindow      time.Duration `env:"AUTHSTATUS_LOGIN_WINDOW" envDefault:"15m"`
}

// LoadConfig parses the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks required settings.
func (c Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("AUTHSTATUS_JWT_SECRET must be at least 32 bytes")
	}
	if c.SessionTTL <= 0 || c.TokenTTL <= 0 {
		return errors.New("session and token TTLs must be positive")
	}
	if c.LoginMaxAttempts < 0 {
		return errors.New("AUTHSTATUS_LOGIN_MAX_ATTEMPTS must not be negative")
	}
	if c.LoginMaxAttempts > 0 && c.LoginWindow <= 0 {
		return errors.New("AUTHSTATUS_LOGIN_WINDOW must be positive")
	}
	return nil
}
