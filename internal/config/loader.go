package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v, err := newViper(opts)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

// Watch loads the configuration and calls onChange with every valid
// revision written to the config file afterwards. Invalid revisions are
// logged and skipped.
func Watch(opts LoadOptions, onChange func(*Config)) (*Config, error) {
	v, err := newViper(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, ErrConfigNotFound
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}
		log.Info().Str("file", e.Name).Msg("Config reloaded")
		onChange(next)
	})
	v.WatchConfig()

	return cfg, nil
}

func newViper(opts LoadOptions) (*viper.Viper, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "TOPICCACHE"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("topiccache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/topiccache")
		v.AddConfigPath("/etc/topiccache")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("discovery.namespace_prefixes", cfg.Discovery.NamespacePrefixes)
	v.SetDefault("discovery.diagnostics_schedule", cfg.Discovery.DiagnosticsSchedule)

	v.SetDefault("realtime.enabled", cfg.Realtime.Enabled)
	v.SetDefault("realtime.max_connections", cfg.Realtime.MaxConnections)
	v.SetDefault("realtime.max_endpoints_per_participant", cfg.Realtime.MaxEndpointsPerParticipant)
	v.SetDefault("realtime.origin_patterns", cfg.Realtime.OriginPatterns)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.caller", cfg.Logging.Caller)
}

func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		absPath, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
		return absPath, nil
	}

	searchPaths := []string{
		"topiccache.yaml",
		"topiccache.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "topiccache", "topiccache.yaml"),
		"/etc/topiccache/topiccache.yaml",
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}
