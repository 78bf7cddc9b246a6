// Package config provides configuration management for topiccache.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration structure for topiccache.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Grace period for in-flight requests on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DiscoveryConfig holds settings of the discovery listener.
type DiscoveryConfig struct {
	// Prefixes prepended to absolute topic names when counting endpoints,
	// e.g. "rt" turns "/chatter" into "rt/chatter".
	NamespacePrefixes []string `mapstructure:"namespace_prefixes"`

	// Cron expression for the periodic diagnostic dump (empty disables it)
	DiagnosticsSchedule string `mapstructure:"diagnostics_schedule"`
}

// RealtimeConfig holds WebSocket discovery transport settings.
type RealtimeConfig struct {
	// Enable the /api/realtime endpoint
	Enabled bool `mapstructure:"enabled"`

	// Maximum simultaneous participant connections
	MaxConnections int `mapstructure:"max_connections"`

	// Maximum live endpoints a single participant may announce
	MaxEndpointsPerParticipant int `mapstructure:"max_endpoints_per_participant"`

	// Allowed origins for the WebSocket handshake
	OriginPatterns []string `mapstructure:"origin_patterns"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Expose /metrics
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (trace, debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
