package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvForgeToken, "")
	t.Setenv(EnvGenerationKey, "")
	t.Setenv(EnvSharedSecret, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ForgeGitHub, cfg.Forge.Type)
	assert.Equal(t, "main", cfg.Forge.Branch)
	assert.Equal(t, "mit", cfg.Forge.LicenseTemplate)
	assert.Equal(t, "gemini-2.5-flash", cfg.Generation.Model)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Notify.BaseDelay)
	assert.Equal(t, RetryBackoffExponential, cfg.Notify.Backoff)
	assert.Equal(t, 15*time.Second, cfg.Notify.AttemptTimeout)
	assert.Equal(t, "llm-app", cfg.Pipeline.RepoPrefix)
	assert.False(t, cfg.Pipeline.SerializeRounds)
	assert.Equal(t, "repo_state.json", filepath.Base(cfg.State.Path))
}

func TestLoadEnvironmentFallbacks(t *testing.T) {
	t.Setenv(EnvForgeToken, "ghp_env")
	t.Setenv(EnvGenerationKey, "gk_env")
	t.Setenv(EnvSharedSecret, "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ghp_env", cfg.Forge.Token)
	assert.Equal(t, "gk_env", cfg.Generation.APIKey)
	assert.Equal(t, "s3cret", cfg.Server.SharedSecret)
	require.NoError(t, cfg.RequireCredentials(true))
}

func TestLoadFileOverridesAndExpansion(t *testing.T) {
	t.Setenv(EnvForgeToken, "ghp_env")
	t.Setenv("APPFORGE_TEST_OWNER", "octo")

	path := writeConfig(t, `
server:
  addr: ":9090"
forge:
  token: "ghp_file"
  owner: "${APPFORGE_TEST_OWNER}"
  settle_delay: 0s
  pages_delay: 1ms
notify:
  max_attempts: 3
  backoff: LINEAR
pipeline:
  repo_prefix: site
  serialize_rounds: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "ghp_file", cfg.Forge.Token, "file value wins over environment")
	assert.Equal(t, "octo", cfg.Forge.Owner)
	assert.Equal(t, 2*time.Second, cfg.Forge.SettleDelay, "zero settle delay falls back to default")
	assert.Equal(t, time.Millisecond, cfg.Forge.PagesDelay)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
	assert.Equal(t, RetryBackoffLinear, cfg.Notify.Backoff)
	assert.Equal(t, "site", cfg.Pipeline.RepoPrefix)
	assert.True(t, cfg.Pipeline.SerializeRounds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"forge type":    "forge:\n  type: gitlab\n",
		"pages url":     "forge:\n  pages_url: https://example.org/\n",
		"provider":      "generation:\n  provider: other\n",
		"events url":    "events:\n  enabled: true\n  nats_url: not-a-url\n",
		"malformed yml": "server: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.RequireCredentials(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvForgeToken)
	assert.Contains(t, err.Error(), EnvGenerationKey)
	assert.Contains(t, err.Error(), EnvSharedSecret)

	cfg.Forge.Token = "t"
	cfg.Generation.APIKey = "k"
	require.NoError(t, cfg.RequireCredentials(false))
	require.Error(t, cfg.RequireCredentials(true))
}

func TestSiteURL(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "https://octo.github.io/llm-app-t1/", cfg.Forge.SiteURL("octo", "llm-app-t1"))
}

func TestNormalizeRetryBackoff(t *testing.T) {
	assert.Equal(t, RetryBackoffFixed, NormalizeRetryBackoff(" Fixed "))
	assert.Equal(t, RetryBackoffExponential, NormalizeRetryBackoff("exponential"))
	assert.Equal(t, RetryBackoffMode(""), NormalizeRetryBackoff("random"))
}
