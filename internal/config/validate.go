package config

import (
	"fmt"
	"strings"

	"github.com/watzon/topiccache/internal/scheduler"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDiscovery(&cfg.Discovery)...)
	errs = append(errs, validateRealtime(&cfg.Realtime)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	for field, d := range map[string]int64{
		"server.read_timeout":     int64(cfg.ReadTimeout),
		"server.write_timeout":    int64(cfg.WriteTimeout),
		"server.idle_timeout":     int64(cfg.IdleTimeout),
		"server.shutdown_timeout": int64(cfg.ShutdownTimeout),
	} {
		if d < 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "must be non-negative",
			})
		}
	}

	return errs
}

func validateDiscovery(cfg *DiscoveryConfig) ValidationErrors {
	var errs ValidationErrors

	for i, prefix := range cfg.NamespacePrefixes {
		if prefix == "" || strings.Contains(prefix, "/") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("discovery.namespace_prefixes[%d]", i),
				Message: "must be a non-empty name without '/'",
			})
		}
	}

	if cfg.DiagnosticsSchedule != "" {
		if _, err := scheduler.NewCronParser().Parse(cfg.DiagnosticsSchedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "discovery.diagnostics_schedule",
				Message: err.Error(),
			})
		}
	}

	return errs
}

func validateRealtime(cfg *RealtimeConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "realtime.max_connections",
			Message: "must be at least 1",
		})
	}

	if cfg.MaxEndpointsPerParticipant < 1 {
		errs = append(errs, ValidationError{
			Field:   "realtime.max_endpoints_per_participant",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	return errs
}
