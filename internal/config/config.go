// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the api binary needs. Signing keys are required:
// the service cannot issue or verify tokens without them, so a missing key is
// fatal at startup rather than discovered per request.
type Config struct {
	Addr string `env:"GYMCORE_ADDR" envDefault:":8080"`

	PostgresDSN string `env:"GYMCORE_PG_DSN"`

	// PEM-encoded RSA keys, either inline or via *_FILE variants.
	PrivateKeyPEM  string        `env:"GYMCORE_JWT_PRIVATE_KEY"`
	PrivateKeyFile string        `env:"GYMCORE_JWT_PRIVATE_KEY_FILE"`
	PublicKeyPEM   string        `env:"GYMCORE_JWT_PUBLIC_KEY"`
	PublicKeyFile  string        `env:"GYMCORE_JWT_PUBLIC_KEY_FILE"`
	TokenIssuer    string        `env:"GYMCORE_JWT_ISSUER" envDefault:"gymcore"`
	TokenTTL       time.Duration `env:"GYMCORE_JWT_TTL" envDefault:"15m"`

	LoginMaxAttempts int           `env:"GYMCORE_LOGIN_MAX_ATTEMPTS" envDefault:"3"`
	LoginLockFor     time.Duration `env:"GYMCORE_LOGIN_LOCK_FOR" envDefault:"5m"`
	LoginResetAfter  time.Duration `env:"GYMCORE_LOGIN_RESET_AFTER" envDefault:"10m"`

	BreakerFailures int           `env:"GYMCORE_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown time.Duration `env:"GYMCORE_BREAKER_COOLDOWN" envDefault:"30s"`
	BreakerTimeout  time.Duration `env:"GYMCORE_BREAKER_TIMEOUT" envDefault:"5s"`

	AMQPURL       string `env:"GYMCORE_AMQP_URL"`
	WorkloadQueue string `env:"GYMCORE_WORKLOAD_QUEUE" envDefault:"trainer.workload"`
	HoursBaseURL  string `env:"GYMCORE_HOURS_URL"`

	LoginRateBurst     int `env:"GYMCORE_LOGIN_RATE_BURST" envDefault:"10"`
	LoginRatePerSecond int `env:"GYMCORE_LOGIN_RATE_PER_SECOND" envDefault:"5"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
