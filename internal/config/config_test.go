package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppHost)
	require.Equal(t, ModePolling, cfg.Telegram.Mode)
	require.Equal(t, DriverPostgres, cfg.DB.Driver)
	require.Equal(t, 10, cfg.Search.Concurrency)
	require.Equal(t, 1500*time.Millisecond, cfg.Broadcast.Interval)
	require.Equal(t, 50, cfg.Broadcast.PauseEvery)
	require.Equal(t, 10*time.Second, cfg.Broadcast.Pause)
	require.Equal(t, time.Hour, cfg.Expiry.Interval)
	require.Equal(t, 15*time.Second, cfg.Paste.Timeout)
	require.Empty(t, cfg.Nexus.URLs)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
admin_id: 42
telegram:
  token: from-file
  mode: webhook
  webhook_url: https://bot.example.com/telegram/webhook
db:
  driver: sqlite
  source: bot.db
nexus:
  urls:
    - http://node-a:8000
search:
  concurrency: 4
`), 0o600))

	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("NEXUS_URLS", "http://n1:8000, http://n2:8000,,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "from-env", cfg.Telegram.Token)
	require.EqualValues(t, 42, cfg.AdminID)
	require.Equal(t, ModeWebhook, cfg.Telegram.Mode)
	require.Equal(t, DriverSQLite, cfg.DB.Driver)
	require.Equal(t, []string{"http://n1:8000", "http://n2:8000"}, cfg.Nexus.URLs)
	require.Equal(t, 4, cfg.Search.Concurrency)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AdminID:  1,
			Telegram: TelegramConfig{Token: "t", Mode: ModePolling},
			DB:       DBConfig{Driver: DriverMemory},
			Nexus:    NexusConfig{URLs: []string{"http://n1"}},
			Search:   SearchConfig{Concurrency: 10},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"MissingToken":      func(c *Config) { c.Telegram.Token = "" },
		"MissingAdmin":      func(c *Config) { c.AdminID = 0 },
		"NoNodes":           func(c *Config) { c.Nexus.URLs = nil },
		"UnknownDriver":     func(c *Config) { c.DB.Driver = "oracle" },
		"PostgresNoSource":  func(c *Config) { c.DB.Driver = DriverPostgres },
		"ZeroConcurrency":   func(c *Config) { c.Search.Concurrency = 0 },
		"WebhookWithoutURL": func(c *Config) { c.Telegram.Mode = ModeWebhook },
		"UnknownIntakeMode": func(c *Config) { c.Telegram.Mode = "carrier-pigeon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}
