// Package config defines the server configuration structure.
package config

// ServerConfig is the root configuration for feoxd.
//
// The config file is TOML with the same flat keys; CLI flags and FEOXD_*
// environment variables override it (see cmd/feoxd).
type ServerConfig struct {
	// Port is the TCP port the RESP listener binds.
	Port int `koanf:"port"`

	// Bind is the listen address.
	Bind string `koanf:"bind"`

	// Threads sets GOMAXPROCS; must be > 0 (the default is the logical CPU count).
	Threads int `koanf:"threads"`

	// DataPath enables the persistent Badger backend; empty = memory only.
	DataPath string `koanf:"data_path"`

	// Requirepass enables AUTH with the given password.
	Requirepass string `koanf:"requirepass"`

	// RateLimit is the maximum commands per second per client IP; 0 = off.
	RateLimit int `koanf:"ratelimit"`

	// LogLevel is trace|debug|info|warn|error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is json|text.
	LogFormat string `koanf:"log_format"`
}
