package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost            = "localhost"
	DefaultPort            = 8095
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// Discovery defaults.
	DefaultDiagnosticsSchedule = "@every 1m"

	// Realtime defaults.
	DefaultMaxConnections             = 1000
	DefaultMaxEndpointsPerParticipant = 512

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// DefaultNamespacePrefixes are the topic, request and response prefixes.
var DefaultNamespacePrefixes = []string{"rt", "rq", "rr"}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Discovery: DiscoveryConfig{
			NamespacePrefixes:   append([]string(nil), DefaultNamespacePrefixes...),
			DiagnosticsSchedule: DefaultDiagnosticsSchedule,
		},
		Realtime: RealtimeConfig{
			Enabled:                    true,
			MaxConnections:             DefaultMaxConnections,
			MaxEndpointsPerParticipant: DefaultMaxEndpointsPerParticipant,
			OriginPatterns:             []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
