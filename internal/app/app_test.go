package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/notifier"
	"github.com/content-curator/internal/storage"
	"github.com/content-curator/internal/storage/taskfile"
	"github.com/content-curator/pkg/logger"
)

func testConfig(t *testing.T, webhookURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Database:  config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(dir, "curator.db")},
		Tasks:     config.TasksConfig{Store: "database"},
		Scheduler: config.SchedulerConfig{WakeInterval: time.Minute, DefaultMaxItems: 5},
		Sources: config.SourcesConfig{
			Reddit: config.RedditConfig{Enabled: true},
			RSS:    config.RSSConfig{Enabled: true},
		},
		Notifiers: config.NotifiersConfig{Discord: config.DiscordConfig{
			Webhooks: []config.WebhookConfig{{Name: "main", URL: webhookURL}},
		}},
	}
}

func TestNew_WiresComponents(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, "https://discord.com/api/webhooks/1/x"), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []models.Platform{models.PlatformReddit, models.PlatformRSS}, a.Sources.Platforms())
	assert.Equal(t, []string{"main"}, a.Notifiers.Names())
	assert.Same(t, a.Repo, a.Tasks)
	assert.False(t, a.Dispatcher.Running())
}

func TestNew_TaskFileStore(t *testing.T) {
	cfg := testConfig(t, "https://discord.com/api/webhooks/1/x")
	cfg.Tasks = config.TasksConfig{Store: "file", File: filepath.Join(t.TempDir(), "tasks.json")}

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Tasks.(*taskfile.Store)
	assert.True(t, ok)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestRunNow_EndToEnd(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, err := New(context.Background(), testConfig(t, srv.URL), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	next := time.Now().Add(time.Hour)
	task := &models.ScheduledTask{
		ID:               "e2e",
		Platform:         models.PlatformYouTube,
		ContentSelection: models.ContentSelection{{ID: "v1", Title: "T1"}},
		NotifierRef:      "main",
		Enabled:          true,
		IntervalValue:    1,
		IntervalUnit:     models.IntervalDays,
		NextRun:          &next,
		MaxItems:         1,
	}
	require.NoError(t, a.Tasks.SaveTask(ctx, task))

	report, err := a.Dispatcher.RunNow(ctx, "e2e")
	require.NoError(t, err)
	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, hits)

	row, err := a.Repo.GetContentByKey(ctx, models.PlatformYouTube, "v1")
	require.NoError(t, err)
	assert.True(t, row.Posted)

	stored, err := a.Tasks.GetTask(ctx, "e2e")
	require.NoError(t, err)
	assert.True(t, stored.NextRun.After(next))

	// Second run finds nothing new
	report, err = a.Dispatcher.RunNow(ctx, "e2e")
	require.NoError(t, err)
	assert.Zero(t, report.Delivered)
	assert.Equal(t, 1, hits)

	posted := true
	rows, err := a.Repo.QueryContent(ctx, storage.ContentFilter{Posted: &posted})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTestNotifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, err := New(context.Background(), testConfig(t, srv.URL), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.TestNotifier(context.Background(), "main"))
	assert.ErrorIs(t, a.TestNotifier(context.Background(), "other"), notifier.ErrUnknownNotifier)
}
