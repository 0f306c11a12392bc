package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables consulted when the YAML file leaves a credential empty.
const (
	EnvForgeToken    = "GITHUB_PAT"
	EnvGenerationKey = "GOOGLE_API_KEY"
	EnvSharedSecret  = "MY_SHARED_SECRET"
)

// loadEnvFiles loads .env and .env.local when present. Existing process
// environment variables are never overwritten.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", "path", name, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", name)
	}
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.Forge.Token == "" {
		cfg.Forge.Token = os.Getenv(EnvForgeToken)
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = os.Getenv(EnvGenerationKey)
	}
	if cfg.Server.SharedSecret == "" {
		cfg.Server.SharedSecret = os.Getenv(EnvSharedSecret)
	}
}
