// Package config handles configuration loading and management for weave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for weave.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Backends  []BackendConfig `mapstructure:"backends"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	History   HistoryConfig   `mapstructure:"history"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// DefaultsConfig holds default values for weave runs.
type DefaultsConfig struct {
	// Agent is the default backend name; "auto" defers to the cascade.
	Agent string `mapstructure:"agent"`
	// Concurrency is the step concurrency bound.
	Concurrency int `mapstructure:"concurrency"`
	// TokenBudget is the per-step context token budget. Zero means unlimited.
	TokenBudget int `mapstructure:"token_budget"`
	// Format is the context render shape: tagged or markdown.
	Format string `mapstructure:"format"`
}

// BackendConfig defines one subprocess backend.
type BackendConfig struct {
	// Name identifies the backend in plans.
	Name string `mapstructure:"name"`
	// Command is the executable to run.
	Command string `mapstructure:"command"`
	// Args are the base arguments before the model and prompt flags.
	Args []string `mapstructure:"args"`
	// Model is the default model passed as --model, if any.
	Model string `mapstructure:"model"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	// Step bounds each backend call. Zero means no timeout.
	Step time.Duration `mapstructure:"step"`
}

// HistoryConfig holds run-history settings.
type HistoryConfig struct {
	// Enabled toggles run persistence.
	Enabled bool `mapstructure:"enabled"`
	// Path overrides the default database location.
	Path string `mapstructure:"path"`
	// Keep is how long runs are retained before purging.
	Keep time.Duration `mapstructure:"keep"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.weave.yaml in current directory or parent)
// 3. User config (~/.config/weave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("defaults.agent", cfg.Defaults.Agent)
	v.Set("defaults.concurrency", cfg.Defaults.Concurrency)
	v.Set("defaults.token_budget", cfg.Defaults.TokenBudget)
	v.Set("defaults.format", cfg.Defaults.Format)
	v.Set("timeouts.step", cfg.Timeouts.Step.String())
	v.Set("history.enabled", cfg.History.Enabled)
	v.Set("history.path", cfg.History.Path)
	v.Set("history.keep", cfg.History.Keep.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")

	v.SetDefault("defaults.agent", "auto")
	v.SetDefault("defaults.concurrency", 5)
	v.SetDefault("defaults.token_budget", 100000)
	v.SetDefault("defaults.format", "tagged")

	v.SetDefault("timeouts.step", "15m")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.keep", "720h")
}

// getUserConfigDir returns the XDG config directory for weave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "weave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "weave")
	}
	return filepath.Join(home, ".config", "weave")
}

// findProjectConfig searches for .weave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".weave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Agent:       "auto",
			Concurrency: 5,
			TokenBudget: 100000,
			Format:      "tagged",
		},
		Timeouts: TimeoutsConfig{
			Step: 15 * time.Minute,
		},
		History: HistoryConfig{
			Enabled: true,
			Keep:    720 * time.Hour,
		},
	}
}
