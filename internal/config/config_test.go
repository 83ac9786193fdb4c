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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "database", cfg.Tasks.Store)
	assert.Equal(t, time.Minute, cfg.Scheduler.WakeInterval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ShutdownTimeout)
	assert.Equal(t, 5, cfg.Scheduler.DefaultMaxItems)
	assert.Equal(t, "relevance", cfg.Sources.YouTube.Order)
	assert.Equal(t, "hot", cfg.Sources.Reddit.Sort)
	assert.Equal(t, 168*time.Hour, cfg.Sources.RSS.MaxAge)
	assert.Equal(t, "Deliveries", cfg.Notifiers.Sheets.SheetName)
	assert.False(t, cfg.AI.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scheduler:
  wake_interval: 15s
notifiers:
  discord:
    webhooks:
      - name: main
        url: https://discord.com/api/webhooks/1/abc
filters:
  global:
    keywords_include: [golang, rust]
  reddit:
    min_upvotes: 50
formatting:
  youtube:
    template: "New video: {title}"
`))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Scheduler.WakeInterval)
	require.Len(t, cfg.Notifiers.Discord.Webhooks, 1)
	assert.Equal(t, "main", cfg.Notifiers.Discord.Webhooks[0].Name)
	assert.Equal(t, []string{"golang", "rust"}, cfg.Filters.Global.KeywordsInclude)
	assert.Equal(t, 50, cfg.Filters.Reddit.MinUpvotes)
	assert.Equal(t, "New video: {title}", cfg.Template("youtube"))
	assert.Equal(t, "{url}", cfg.Template("twitter"))
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("CURATOR_YOUTUBE_API_KEY", "yt-key")
	t.Setenv("CURATOR_DATABASE_DRIVER", "postgres")

	cfg, err := Load(writeConfig(t, "database:\n  driver: sqlite\n"))
	require.NoError(t, err)

	assert.Equal(t, "yt-key", cfg.Sources.YouTube.APIKey)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestTwitterConfig_HasCredentials(t *testing.T) {
	assert.False(t, TwitterConfig{}.HasCredentials())
	assert.False(t, TwitterConfig{ConsumerKey: "k"}.HasCredentials())
	assert.True(t, TwitterConfig{ConsumerKey: "k", ConsumerSecret: "s"}.HasCredentials())
	assert.True(t, TwitterConfig{BearerToken: "t"}.HasCredentials())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Scheduler: SchedulerConfig{WakeInterval: time.Minute},
			Notifiers: NotifiersConfig{Discord: DiscordConfig{Webhooks: []WebhookConfig{
				{Name: "main", URL: "https://discord.com/api/webhooks/1/a"},
			}}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"ok", func(c *Config) {}, ""},
		{"wake interval too small", func(c *Config) { c.Scheduler.WakeInterval = time.Millisecond }, "wake_interval"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"bad task store", func(c *Config) { c.Tasks.Store = "redis" }, "tasks.store"},
		{"file store without path", func(c *Config) { c.Tasks.Store = "file" }, "tasks.file"},
		{"webhook without url", func(c *Config) {
			c.Notifiers.Discord.Webhooks = append(c.Notifiers.Discord.Webhooks, WebhookConfig{Name: "x"})
		}, "name and url"},
		{"duplicate webhook", func(c *Config) {
			c.Notifiers.Discord.Webhooks = append(c.Notifiers.Discord.Webhooks, c.Notifiers.Discord.Webhooks[0])
		}, "duplicate"},
		{"sheets without spreadsheet", func(c *Config) {
			c.Notifiers.Sheets = SheetsConfig{Enabled: true, Name: "sheets"}
		}, "spreadsheet_id"},
		{"sheets name clash", func(c *Config) {
			c.Notifiers.Sheets = SheetsConfig{Enabled: true, Name: "main", SpreadsheetID: "s"}
		}, "clashes"},
		{"ai without key", func(c *Config) { c.AI.Enabled = true }, "ai.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
