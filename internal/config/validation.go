package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks structural invariants. Credentials are checked separately
// by RequireCredentials because read-only commands do not need them.
func (c *Config) Validate() error {
	v := configurationValidator{config: c}
	return v.validate()
}

// RequireCredentials reports which credentials needed to run tasks are missing.
// withSecret additionally requires the intake shared secret.
func (c *Config) RequireCredentials(withSecret bool) error {
	var missing []string
	if c.Forge.Token == "" {
		missing = append(missing, "forge.token ("+EnvForgeToken+")")
	}
	if c.Generation.APIKey == "" {
		missing = append(missing, "generation.api_key ("+EnvGenerationKey+")")
	}
	if withSecret && c.Server.SharedSecret == "" {
		missing = append(missing, "server.shared_secret ("+EnvSharedSecret+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func (cv configurationValidator) validate() error {
	if err := cv.validateForge(); err != nil {
		return err
	}
	if err := cv.validateGeneration(); err != nil {
		return err
	}
	if err := cv.validateNotify(); err != nil {
		return err
	}
	return cv.validateEvents()
}

func (cv configurationValidator) validateForge() error {
	f := cv.config.Forge
	if NormalizeForgeType(string(f.Type)) == "" {
		return fmt.Errorf("unsupported forge type: %s", f.Type)
	}
	if err := validateURL("forge.api_url", f.APIURL); err != nil {
		return err
	}
	if !strings.Contains(f.PagesURL, "{repo}") {
		return errors.New("forge.pages_url must contain {repo}")
	}
	if f.SettleDelay < 0 || f.PagesDelay < 0 {
		return errors.New("forge delays cannot be negative")
	}
	return nil
}

func (cv configurationValidator) validateGeneration() error {
	g := cv.config.Generation
	if g.Provider != "gemini" {
		return fmt.Errorf("unsupported generation provider: %s", g.Provider)
	}
	return validateURL("generation.api_url", g.APIURL)
}

func (cv configurationValidator) validateNotify() error {
	n := cv.config.Notify
	if n.MaxAttempts > 20 {
		return fmt.Errorf("notify.max_attempts too large: %d", n.MaxAttempts)
	}
	return nil
}

func (cv configurationValidator) validateEvents() error {
	e := cv.config.Events
	if !e.Enabled {
		return nil
	}
	if e.Subject == "" {
		return errors.New("events.subject is required when events are enabled")
	}
	return validateURL("events.nats_url", e.NATSURL)
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not an absolute URL: %q", field, raw)
	}
	return nil
}
