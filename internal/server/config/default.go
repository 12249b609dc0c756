// Package config defines the server configuration structure.
package config

import "runtime"

// Default configuration values.
const (
	DefaultPort      = 6379
	DefaultBind      = "127.0.0.1"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Port:      DefaultPort,
		Bind:      DefaultBind,
		Threads:   runtime.NumCPU(),
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}
