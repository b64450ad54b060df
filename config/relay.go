package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/orchestra-mcp/chatrelay/src/types"
)

// RelayConfig holds the relay server configuration.
type RelayConfig struct {
	Port      string `env:"PORT"       envDefault:"3000"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	MaxMessageSize  int64
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() *RelayConfig {
	return &RelayConfig{
		Port:            "3000",
		LogLevel:        "info",
		LogFormat:       "console",
		MaxMessageSize:  types.MaxMessageSize,
		PingInterval:    30 * time.Second,
		WriteTimeout:    10 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Load reads the environment on top of the defaults.
func Load() (*RelayConfig, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("parse env: PORT is empty")
	}
	return cfg, nil
}

// Addr returns the listen address for the configured port.
func (c *RelayConfig) Addr() string {
	return ":" + c.Port
}
