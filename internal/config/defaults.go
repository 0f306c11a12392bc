package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// ServerDefaultApplier handles Server configuration defaults.
type ServerDefaultApplier struct{}

func (ServerDefaultApplier) Domain() string { return "server" }

func (ServerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 32 << 20
	}
	return nil
}

// ForgeDefaultApplier handles Forge configuration defaults.
type ForgeDefaultApplier struct{}

func (ForgeDefaultApplier) Domain() string { return "forge" }

func (ForgeDefaultApplier) ApplyDefaults(cfg *Config) error {
	f := &cfg.Forge
	if f.Type == "" {
		f.Type = ForgeGitHub
	} else if t := NormalizeForgeType(string(f.Type)); t != "" {
		f.Type = t
	}
	if f.APIURL == "" {
		f.APIURL = "https://api.github.com"
	}
	if f.BaseURL == "" {
		f.BaseURL = "https://github.com"
	}
	if f.Branch == "" {
		f.Branch = "main"
	}
	if f.LicenseTemplate == "" {
		f.LicenseTemplate = "mit"
	}
	if f.PagesURL == "" {
		f.PagesURL = "https://{owner}.github.io/{repo}/"
	}
	if f.SettleDelay == 0 {
		f.SettleDelay = 2 * time.Second
	}
	if f.PagesDelay == 0 {
		f.PagesDelay = 5 * time.Second
	}
	if f.Timeout <= 0 {
		f.Timeout = 30 * time.Second
	}
	return nil
}

// GenerationDefaultApplier handles Generation configuration defaults.
type GenerationDefaultApplier struct{}

func (GenerationDefaultApplier) Domain() string { return "generation" }

func (GenerationDefaultApplier) ApplyDefaults(cfg *Config) error {
	g := &cfg.Generation
	if g.Provider == "" {
		g.Provider = "gemini"
	}
	if g.Model == "" {
		g.Model = "gemini-2.5-flash"
	}
	if g.APIURL == "" {
		g.APIURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if g.Timeout <= 0 {
		g.Timeout = 5 * time.Minute
	}
	return nil
}

// NotifyDefaultApplier handles Notify configuration defaults.
type NotifyDefaultApplier struct{}

func (NotifyDefaultApplier) Domain() string { return "notify" }

func (NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	n := &cfg.Notify
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = 5
	}
	if n.BaseDelay <= 0 {
		n.BaseDelay = time.Second
	}
	if n.Backoff == "" {
		n.Backoff = RetryBackoffExponential
	} else if m := NormalizeRetryBackoff(string(n.Backoff)); m != "" {
		n.Backoff = m
	} else {
		n.Backoff = RetryBackoffExponential
	}
	if n.AttemptTimeout <= 0 {
		n.AttemptTimeout = 15 * time.Second
	}
	return nil
}

// StorageDefaultApplier handles state, staging and history path defaults.
type StorageDefaultApplier struct{}

func (StorageDefaultApplier) Domain() string { return "storage" }

func (StorageDefaultApplier) ApplyDefaults(cfg *Config) error {
	tmp := os.TempDir()
	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(tmp, "repo_state.json")
	}
	if cfg.Staging.Dir == "" {
		cfg.Staging.Dir = filepath.Join(tmp, "appforge-attachments")
	}
	if cfg.Staging.SweepInterval <= 0 {
		cfg.Staging.SweepInterval = 30 * time.Minute
	}
	if cfg.Staging.MaxAge <= 0 {
		cfg.Staging.MaxAge = 6 * time.Hour
	}
	return nil
}

// RuntimeDefaultApplier handles queue, events and pipeline defaults.
type RuntimeDefaultApplier struct{}

func (RuntimeDefaultApplier) Domain() string { return "runtime" }

func (RuntimeDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 2
	}
	if cfg.Queue.Size <= 0 {
		cfg.Queue.Size = 100
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "appforge.outcomes"
	}
	if cfg.Events.NATSURL == "" {
		cfg.Events.NATSURL = "nats://127.0.0.1:4222"
	}
	if cfg.Pipeline.RepoPrefix == "" {
		cfg.Pipeline.RepoPrefix = "llm-app"
	}
	return nil
}

// ApplyDefaults runs every domain applier against cfg in a fixed order.
func ApplyDefaults(cfg *Config) error {
	appliers := []DefaultApplier{
		ServerDefaultApplier{},
		ForgeDefaultApplier{},
		GenerationDefaultApplier{},
		NotifyDefaultApplier{},
		StorageDefaultApplier{},
		RuntimeDefaultApplier{},
	}
	for _, a := range appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("apply %s defaults: %w", a.Domain(), err)
		}
	}
	return nil
}

// Default returns a configuration with every default applied and no credentials.
func Default() *Config {
	var cfg Config
	_ = ApplyDefaults(&cfg)
	return &cfg
}
