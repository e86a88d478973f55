// Package config loads the client tuning knobs from the environment.
//
// Identity inputs (room, player, ports) are command line flags; everything
// here only tunes how the transports and the reload loop behave, and every
// field has a default that matches what the planning server expects.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the environment configuration.
type Config struct {
	OpenDelay        time.Duration `env:"POKER_OPEN_DELAY"         envDefault:"100ms"`
	PollInterval     time.Duration `env:"POKER_POLL_INTERVAL"      envDefault:"3s"`
	MaxPollFailures  int           `env:"POKER_MAX_POLL_FAILURES"  envDefault:"3"`
	HandshakeTimeout time.Duration `env:"POKER_HANDSHAKE_TIMEOUT"  envDefault:"10s"`
	ReloadDelay      time.Duration `env:"POKER_RELOAD_DELAY"       envDefault:"1s"`
	MaxLoads         int           `env:"POKER_MAX_LOADS"          envDefault:"0"`

	OTelEndpoint string `env:"POKER_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"POKER_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the transports cannot run with.
func (c Config) Validate() error {
	switch {
	case c.OpenDelay < 0:
		return fmt.Errorf("%w: POKER_OPEN_DELAY must not be negative", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: POKER_POLL_INTERVAL must be positive", ErrInvalidConfig)
	case c.MaxPollFailures < 1:
		return fmt.Errorf("%w: POKER_MAX_POLL_FAILURES must be at least 1", ErrInvalidConfig)
	case c.HandshakeTimeout <= 0:
		return fmt.Errorf("%w: POKER_HANDSHAKE_TIMEOUT must be positive", ErrInvalidConfig)
	case c.ReloadDelay < 0:
		return fmt.Errorf("%w: POKER_RELOAD_DELAY must not be negative", ErrInvalidConfig)
	case c.MaxLoads < 0:
		return fmt.Errorf("%w: POKER_MAX_LOADS must not be negative", ErrInvalidConfig)
	}
	return nil
}

// TracingEnabled reports whether spans should be exported.
func (c Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}
