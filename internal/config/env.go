package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Reconnect.Strategy = strings.ToLower(strings.TrimSpace(c.Reconnect.Strategy))
	switch c.Reconnect.Strategy {
	case StrategyFixed, StrategyExponential:
	default:
		return fmt.Errorf("config: unknown reconnect strategy %q", c.Reconnect.Strategy)
	}
	if c.Reconnect.Delay <= 0 {
		return fmt.Errorf("config: reconnect delay must be positive")
	}
	if c.Typing.Quiet <= 0 || c.Typing.Expiry <= 0 {
		return fmt.Errorf("config: typing windows must be positive")
	}
	if c.API.HistoryPageSize <= 0 {
		return fmt.Errorf("config: history page size must be positive")
	}
	return nil
}
