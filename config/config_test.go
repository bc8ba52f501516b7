package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: abc
  chat_id: 42
fetcher:
  region: moskva
  warm_up: 3s
delivery:
  retry_delay: 2s
  max_attempts: 5
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "abc", cfg.Telegram.Token)
	require.Equal(t, int64(42), cfg.Telegram.ChatID)
	require.Equal(t, "moskva", cfg.Fetcher.Region)
	require.Equal(t, 3*time.Second, cfg.Fetcher.WarmUp)
	require.Equal(t, 2*time.Second, cfg.Delivery.RetryDelay)
	require.Equal(t, 5, cfg.Delivery.MaxAttempts)

	// Unset keys keep their defaults
	require.Equal(t, "https://www.avito.ru", cfg.Fetcher.BaseURL)
	require.Equal(t, 20, cfg.Search.MaxResults)
}

func TestLoadConfig_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
log_level = "debug"

[fetcher]
backend = "rod"

[search]
currency = "RUB"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "rod", cfg.Fetcher.Backend)
	require.Equal(t, "RUB", cfg.Search.Currency)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeFile(t, "config.yaml", "telegram: [not, a, map")
	_, err := LoadConfig(path)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TOKEN":        "tok",
		"CHAT_ID":      "-100123",
		"USER_AGENT":   "ua/1.0",
		"DATABASE_URL": "postgres://localhost/db",
		"LOG_LEVEL":    "warn",
	}
	cfg := GetDefaultConfig()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	require.Equal(t, "tok", cfg.Telegram.Token)
	require.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	require.Equal(t, "ua/1.0", cfg.Fetcher.UserAgent)
	require.Equal(t, "postgres://localhost/db", cfg.Database.URL)
	require.Equal(t, "WARN", cfg.SlogLevel().String())

	env["CHAT_ID"] = "not-a-number"
	require.Error(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
}

func TestValidate(t *testing.T) {
	cfg := GetDefaultConfig()
	require.Error(t, cfg.Validate())
	require.NoError(t, cfg.ValidateSearch())

	cfg.Telegram.Token = "tok"
	require.NoError(t, cfg.Validate())

	cfg.Fetcher.Backend = "curl"
	require.Error(t, cfg.Validate())

	cfg = GetDefaultConfig()
	cfg.Search.MaxResults = 0
	require.Error(t, cfg.ValidateSearch())

	cfg = GetDefaultConfig()
	cfg.Delivery.MaxAttempts = -1
	require.Error(t, cfg.ValidateSearch())
}

func TestSlogLevel_Fallback(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.LogLevel = "chatty"
	require.Equal(t, "INFO", cfg.SlogLevel().String())
}
