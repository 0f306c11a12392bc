// Package config loads the appforge process configuration.
//
// Configuration is read once at process start from an optional YAML file
// (with ${VAR} expansion), overlaid with the credential environment variables
// the service has always honoured, defaulted, validated, and then passed by
// pointer into every component constructor.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Forge      ForgeConfig      `yaml:"forge"`
	Generation GenerationConfig `yaml:"generation"`
	Notify     NotifyConfig     `yaml:"notify"`
	State      StateConfig      `yaml:"state"`
	Staging    StagingConfig    `yaml:"staging"`
	Queue      QueueConfig      `yaml:"queue"`
	History    HistoryConfig    `yaml:"history"`
	Events     EventsConfig     `yaml:"events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// ServerConfig configures the HTTP intake endpoint.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	SharedSecret string        `yaml:"shared_secret"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// ForgeConfig configures the repository hosting service.
type ForgeConfig struct {
	Type            ForgeType     `yaml:"type"`
	APIURL          string        `yaml:"api_url"`
	BaseURL         string        `yaml:"base_url"`
	Token           string        `yaml:"token"`
	Owner           string        `yaml:"owner,omitempty"` // resolved from the token when empty
	Branch          string        `yaml:"branch"`
	LicenseTemplate string        `yaml:"license_template"`
	Private         bool          `yaml:"private"`
	PagesURL        string        `yaml:"pages_url"` // template with {owner} and {repo}
	SettleDelay     time.Duration `yaml:"settle_delay"`
	PagesDelay      time.Duration `yaml:"pages_delay"`
	Timeout         time.Duration `yaml:"timeout"`
}

// GenerationConfig configures the code-generation service.
type GenerationConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	APIURL   string        `yaml:"api_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotifyConfig configures result notification delivery.
type NotifyConfig struct {
	MaxAttempts    int              `yaml:"max_attempts"`
	BaseDelay      time.Duration    `yaml:"base_delay"`
	Backoff        RetryBackoffMode `yaml:"backoff"`
	AttemptTimeout time.Duration    `yaml:"attempt_timeout"`
}

// StateConfig configures the task state document.
type StateConfig struct {
	Path string `yaml:"path"`
}

// StagingConfig configures the attachment scratch area.
type StagingConfig struct {
	Dir           string        `yaml:"dir"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxAge        time.Duration `yaml:"max_age"`
}

// QueueConfig configures the background worker pool.
type QueueConfig struct {
	Workers int `yaml:"workers"`
	Size    int `yaml:"size"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables run history
}

// EventsConfig configures optional outcome fan-out over NATS.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PipelineConfig configures orchestration behaviour.
type PipelineConfig struct {
	RepoPrefix      string `yaml:"repo_prefix"`
	SerializeRounds bool   `yaml:"serialize_rounds"`
}

// Load loads configuration from the specified file. An empty path yields a
// configuration built from defaults and the environment alone.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	var cfg Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvFallbacks(&cfg)
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
