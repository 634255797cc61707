package config

import (
	"fmt"
	"time"

	"nautilus-server/internal/attestation"
	"nautilus-server/internal/compute"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port int `env:"PORT" envDefault:"3000"`

	// Comma separated name=/absolute/path pairs.
	Computations       map[string]string `env:"COMPUTATIONS" envKeyValSeparator:"=" envDefault:"ml_task=/usr/local/bin/ml_task"`
	DefaultComputation string            `env:"DEFAULT_COMPUTATION" envDefault:"ml_task"`
	ComputeTimeout     time.Duration     `env:"COMPUTE_TIMEOUT" envDefault:"5m"`
	MaxOutputBytes     int               `env:"COMPUTE_MAX_OUTPUT_BYTES" envDefault:"1048576"`
	InheritEnv         bool              `env:"COMPUTE_INHERIT_ENV" envDefault:"false"`
	ComputeEnv         []string          `env:"COMPUTE_ENV" envSeparator:";"`

	SigningScheme string `env:"SIGNING_SCHEME" envDefault:"ed25519"`
	SigningKeyHex string `env:"SIGNING_KEY_HEX"`

	DatabaseURL string `env:"DATABASE_URL"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Computations) == 0 {
		return fmt.Errorf("COMPUTATIONS must register at least one computation")
	}

	switch c.SigningScheme {
	case attestation.SchemeEd25519, attestation.SchemeSecp256k1:
	default:
		return fmt.Errorf("invalid SIGNING_SCHEME '%s', expected '%s' or '%s'", c.SigningScheme, attestation.SchemeEd25519, attestation.SchemeSecp256k1)
	}

	if c.ComputeTimeout <= 0 {
		return fmt.Errorf("COMPUTE_TIMEOUT must be positive, got %s", c.ComputeTimeout)
	}

	return nil
}

func (c Config) InvokerOptions() compute.Options {
	return compute.Options{
		MaxOutputBytes: c.MaxOutputBytes,
		InheritEnv:     c.InheritEnv,
		Env:            c.ComputeEnv,
	}
}
