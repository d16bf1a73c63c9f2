// Package config loads and validates the mailtide configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Provider ProviderConfig `yaml:"provider"`
	Engine   EngineConfig   `yaml:"engine"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"` // external URL for preview/unsubscribe links
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SandboxConfig struct {
	Path             string  `yaml:"path"` // BoltDB file for captured messages
	SimulateErrors   bool    `yaml:"simulate_errors"`
	ErrorProbability float64 `yaml:"error_probability"`
}

// ProviderConfig describes the process-wide bulk sending provider. The
// provider transport is active only when an API key is set.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

func (p ProviderConfig) Configured() bool {
	return p.APIKey != "" && p.BaseURL != ""
}

type EngineConfig struct {
	BatchInterval    time.Duration `yaml:"batch_interval"`     // cadence between batches of one campaign
	DefaultBatchSize int           `yaml:"default_batch_size"` // used when a campaign has no send limit
	SenderName       string        `yaml:"sender_name"`        // default From display name
	FromEmail        string        `yaml:"from_email"`         // default From address
	ReplyToEmail     string        `yaml:"reply_to_email"`     // default Reply-To
}

type AuthConfig struct {
	// Bcrypt hash of the API token. Empty disables auth (development mode).
	APITokenHash string `yaml:"api_token_hash"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in development configuration.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/mailtide.db"
	}
	if cfg.Sandbox.Path == "" {
		cfg.Sandbox.Path = "data/sandbox.db"
	}
	if cfg.Sandbox.ErrorProbability == 0 {
		cfg.Sandbox.ErrorProbability = 0.1
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "bulk"
	}
	if cfg.Engine.BatchInterval == 0 {
		cfg.Engine.BatchInterval = time.Hour
	}
	if cfg.Engine.DefaultBatchSize == 0 {
		cfg.Engine.DefaultBatchSize = 50
	}
	if cfg.Engine.SenderName == "" {
		cfg.Engine.SenderName = "Mailtide"
	}
	if cfg.Engine.FromEmail == "" {
		cfg.Engine.FromEmail = "no-reply@localhost"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func validate(cfg *Config) error {
	if cfg.Engine.BatchInterval < time.Second {
		return fmt.Errorf("engine.batch_interval must be at least 1s, got %s", cfg.Engine.BatchInterval)
	}
	if cfg.Engine.DefaultBatchSize < 1 {
		return fmt.Errorf("engine.default_batch_size must be positive, got %d", cfg.Engine.DefaultBatchSize)
	}
	if cfg.Sandbox.ErrorProbability < 0 || cfg.Sandbox.ErrorProbability > 1 {
		return fmt.Errorf("sandbox.error_probability must be within [0,1], got %g", cfg.Sandbox.ErrorProbability)
	}
	if cfg.Provider.APIKey != "" && cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required when provider.api_key is set")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	return nil
}
