package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "MASTERSERVER_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars,
// and returns the resolved path alongside the viper instance so the caller
// can attach a Watch.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, *viper.Viper, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("port", cfg.Port)
	v.SetDefault("acceptedVersion", cfg.AcceptedVersion)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)

	v.SetEnvPrefix("MASTERSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, v, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, v, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, v, configPath, nil
}

// Watch starts watching the config file backing v and pushes a freshly
// unmarshaled Config onto the returned channel every time it changes.
// Only AcceptedVersion, LogLevel, HTTPAddr and ShutdownTimeout are meant to
// be applied by a caller's UpdateFrom — Port and Database are captured once
// at startup and a watcher firing never moves them underneath a running
// listener or database handle.
func Watch(logger *zerolog.Logger, v *viper.Viper) <-chan Config {
	out := make(chan Config, 1)
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			if logger != nil {
				logger.Warn().Err(err).Msg("failed to reload config")
			}
			return
		}
		if logger != nil {
			logger.Info().Str("path", e.Name).Msg("config reloaded")
		}
		select {
		case out <- cfg:
		default:
			// drop if the previous reload hasn't been consumed yet; the
			// next change will carry forward the latest state anyway.
		}
	})
	v.WatchConfig()
	return out
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
