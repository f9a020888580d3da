// Package config loads the CLI configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Directory holds the directory-node connection settings.
type Directory struct {
	URL          string `yaml:"url"`
	APIKey       string `yaml:"api_key"`
	DeclaredName string `yaml:"declared_name"`
	ChainID      string `yaml:"chain_identifier"`
}

// Channel holds the channel tuning knobs; zero values keep the defaults.
type Channel struct {
	QueueSize     int      `yaml:"queue_size"`
	Workers       int      `yaml:"workers"`
	PingPeriod    Duration `yaml:"ping_period"`
	ProbePeriod   Duration `yaml:"probe_period"`
	SearchDelay   Duration `yaml:"search_delay"`
	RetryAttempts int      `yaml:"retry_attempts"`
	RetryDelay    Duration `yaml:"retry_delay"`
}

// TokenStore selects where the page-address token is persisted.
type TokenStore struct {
	// Kind is one of "none", "file" or "redis".
	Kind      string `yaml:"kind"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
}

// Log holds the logging settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration document.
type Config struct {
	Address       string     `yaml:"address"`
	Directory     Directory  `yaml:"directory"`
	Channel       Channel    `yaml:"channel"`
	TokenStore    TokenStore `yaml:"token_store"`
	Log           Log        `yaml:"log"`
	MetricsListen string     `yaml:"metrics_listen"`
}

// Default returns the configuration used when a field is left unset.
func Default() Config {
	cfg := Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.TokenStore.Kind = "none"
	return cfg
}

// Load reads and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields the CLI cannot default.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("config: address is required")
	}
	if c.Directory.URL == "" {
		return fmt.Errorf("config: directory.url is required")
	}
	switch c.TokenStore.Kind {
	case "", "none", "file", "redis":
	default:
		return fmt.Errorf("config: unknown token_store.kind %q", c.TokenStore.Kind)
	}
	if c.TokenStore.Kind == "file" && c.TokenStore.Path == "" {
		return fmt.Errorf("config: token_store.path is required for the file store")
	}
	if c.TokenStore.Kind == "redis" && c.TokenStore.RedisAddr == "" {
		return fmt.Errorf("config: token_store.redis_addr is required for the redis store")
	}
	return nil
}
