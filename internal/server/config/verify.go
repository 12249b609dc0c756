// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", cfg.Port)
	}
	if cfg.Bind == "" {
		return errors.New("bind address is required")
	}
	if cfg.Threads <= 0 {
		return errors.New("threads must be > 0")
	}
	if cfg.RateLimit < 0 {
		return errors.New("ratelimit must be >= 0")
	}
	switch cfg.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	return nil
}
