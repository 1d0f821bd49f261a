// Package config loads service settings from PFC_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/engine"
)

// Prefix is prepended to every variable name.
const Prefix = "PFC_"

// Config holds the runtime settings.
type Config struct {
	Addr           string          `env:"ADDR" envDefault:":8080"`
	DBPath         string          `env:"DB_PATH" envDefault:"pf-casino.db"`
	LogLevel       string          `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string          `env:"LOG_FORMAT" envDefault:"console"`
	RNG            string          `env:"RNG" envDefault:"legacy"`
	OpeningBalance decimal.Decimal `env:"OPENING_BALANCE" envDefault:"1000"`
	RequestTimeout time.Duration   `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	ScriptTimeout  time.Duration   `env:"SCRIPT_TIMEOUT" envDefault:"2s"`
}

// Load parses the environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the parser cannot.
func (c Config) Validate() error {
	if _, err := engine.DrawerByName(c.RNG); err != nil {
		return fmt.Errorf("%sRNG: %w", Prefix, err)
	}
	if c.OpeningBalance.IsNegative() {
		return fmt.Errorf("%sOPENING_BALANCE must not be negative, got %s", Prefix, c.OpeningBalance)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%sREQUEST_TIMEOUT must be positive, got %s", Prefix, c.RequestTimeout)
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("%sSCRIPT_TIMEOUT must be positive, got %s", Prefix, c.ScriptTimeout)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%sLOG_FORMAT must be console or json, got %q", Prefix, c.LogFormat)
	}
	return nil
}

// Drawer resolves the configured drawer.
func (c Config) Drawer() (engine.Drawer, error) {
	return engine.DrawerByName(c.RNG)
}
