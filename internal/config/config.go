package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the per-project configuration file.
const FileName = ".fxstore.yaml"

// Ledger backends.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

// Config represents fxstore configuration
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // trace, debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// StoreConfig controls the asset store
type StoreConfig struct {
	LedgerBackend  string `mapstructure:"ledger_backend" yaml:"ledger_backend"`
	EffectsFolder  string `mapstructure:"effects_folder" yaml:"effects_folder"`
	AssetExtension string `mapstructure:"asset_extension" yaml:"asset_extension"`
}

// SyncConfig controls plan execution
type SyncConfig struct {
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// MetricsConfig controls the in-process Prometheus registry
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			LedgerBackend:  BackendFile,
			EffectsFolder:  "EFFECTS",
			AssetExtension: "WAV",
		},
	}
}

// PathFor returns the configuration file of the project at dir.
func PathFor(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load loads configuration from file, environment, and defaults.
//
// Precedence, highest first: FXSTORE_* environment variables, the file at path, Default().
// A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	def := Default()
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("store.ledger_backend", def.Store.LedgerBackend)
	v.SetDefault("store.effects_folder", def.Store.EffectsFolder)
	v.SetDefault("store.asset_extension", def.Store.AssetExtension)
	v.SetDefault("sync.dry_run", def.Sync.DryRun)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)

	// FXSTORE_STORE_LEDGER_BACKEND=bolt
	v.SetEnvPrefix("FXSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
}

// Save writes cfg to path in YAML format.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that every field holds a supported value.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}
	switch c.Store.LedgerBackend {
	case BackendFile, BackendBolt:
	default:
		return fmt.Errorf("unknown ledger backend: %s", c.Store.LedgerBackend)
	}
	if c.Store.EffectsFolder == "" || strings.HasPrefix(c.Store.EffectsFolder, ".") || strings.ContainsAny(c.Store.EffectsFolder, `/\`) {
		return fmt.Errorf("invalid effects folder: %q", c.Store.EffectsFolder)
	}
	if c.Store.AssetExtension == "" || strings.Contains(c.Store.AssetExtension, ".") {
		return fmt.Errorf("invalid asset extension: %q", c.Store.AssetExtension)
	}
	return nil
}

// GetValue retrieves a configuration value by key (e.g., "store.ledger_backend")
func (c *Config) GetValue(key string) (string, error) {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return "", fmt.Errorf("invalid config key: %s (expected format: section.key)", key)
	}

	switch section {
	case "log":
		switch field {
		case "level":
			return c.Log.Level, nil
		case "format":
			return c.Log.Format, nil
		}
	case "store":
		switch field {
		case "ledger_backend":
			return c.Store.LedgerBackend, nil
		case "effects_folder":
			return c.Store.EffectsFolder, nil
		case "asset_extension":
			return c.Store.AssetExtension, nil
		}
	case "sync":
		if field == "dry_run" {
			return strconv.FormatBool(c.Sync.DryRun), nil
		}
	case "metrics":
		if field == "enabled" {
			return strconv.FormatBool(c.Metrics.Enabled), nil
		}
	default:
		return "", fmt.Errorf("unknown config section: %s", section)
	}
	return "", fmt.Errorf("unknown %s config field: %s", section, field)
}

// SetValue sets a configuration value by key and validates the result.
func (c *Config) SetValue(key, value string) error {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("invalid config key: %s (expected format: section.key)", key)
	}

	next := *c
	switch key {
	case "log.level":
		next.Log.Level = value
	case "log.format":
		next.Log.Format = value
	case "store.ledger_backend":
		next.Store.LedgerBackend = value
	case "store.effects_folder":
		next.Store.EffectsFolder = value
	case "store.asset_extension":
		next.Store.AssetExtension = value
	case "sync.dry_run", "metrics.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %s", key, value)
		}
		if section == "sync" {
			next.Sync.DryRun = b
		} else {
			next.Metrics.Enabled = b
		}
	default:
		return fmt.Errorf("unknown %s config field: %s", section, field)
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
