package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/content-curator/internal/ai"
	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/filter"
	"github.com/content-curator/internal/notifier"
	"github.com/content-curator/internal/notifier/discord"
	"github.com/content-curator/internal/notifier/sheets"
	"github.com/content-curator/internal/scheduler"
	"github.com/content-curator/internal/source"
	"github.com/content-curator/internal/source/reddit"
	"github.com/content-curator/internal/source/rss"
	"github.com/content-curator/internal/source/twitter"
	"github.com/content-curator/internal/source/youtube"
	"github.com/content-curator/internal/storage"
	"github.com/content-curator/internal/storage/database"
	"github.com/content-curator/internal/storage/taskfile"
	"github.com/content-curator/pkg/logger"
	"github.com/content-curator/pkg/ratelimit"
)

// App holds the wired components shared by the daemon and the CLI
type App struct {
	Config     *config.Config
	Log        *logger.Logger
	Limiter    *ratelimit.MultiLimiter
	Repo       storage.Repository
	Tasks      storage.TaskRepository
	Sources    *source.Registry
	Notifiers  *notifier.Registry
	Filters    *filter.Engine
	Runner     *scheduler.Runner
	Dispatcher *scheduler.Dispatcher
}

// New opens storage and builds sources, notifiers and the scheduler from cfg
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := database.New(database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var tasks storage.TaskRepository = repo
	if cfg.Tasks.Store == "file" {
		log.Info().Str("file", cfg.Tasks.File).Msg("Using task file")
		tasks, err = taskfile.Open(cfg.Tasks.File)
		if err != nil {
			repo.Close()
			return nil, err
		}
	}

	limiter := ratelimit.New(ratelimit.Limits{
		YouTubePerMinute:   cfg.RateLimit.YouTubeRequestsPerMinute,
		RedditPerMinute:    cfg.RateLimit.RedditRequestsPerMinute,
		RSSPerMinute:       cfg.RateLimit.RSSRequestsPerMinute,
		TwitterPerMinute:   cfg.RateLimit.TwitterRequestsPerMinute,
		DiscordPerMinute:   cfg.RateLimit.DiscordRequestsPerMinute,
		SheetsPerMinute:    cfg.RateLimit.SheetsRequestsPerMinute,
		AnthropicPerMinute: cfg.RateLimit.AnthropicRequestsPerMinute,
	})

	sources, err := buildSources(ctx, cfg, limiter, log)
	if err != nil {
		repo.Close()
		return nil, err
	}

	notifiers := notifier.NewRegistry(discord.FromConfig(cfg.Notifiers.Discord, limiter, log)...)
	if cfg.Notifiers.Sheets.Enabled {
		sheetLog, err := sheets.New(ctx, cfg.Notifiers.Sheets, limiter, log)
		if err != nil {
			repo.Close()
			return nil, err
		}
		notifiers.Register(sheetLog)
	}
	filters := filter.FromConfig(cfg)

	runner := scheduler.NewRunner(tasks, repo, sources, notifiers, filters, log)
	runner.SetDefaultMaxItems(cfg.Scheduler.DefaultMaxItems)
	if cfg.AI.Enabled {
		runner.SetEnricher(ai.NewSummarizer(ai.NewClient(cfg.AI, limiter, log)))
		log.Info().Str("model", cfg.AI.Model).Msg("AI summaries enabled")
	}

	dispatcher := scheduler.NewDispatcher(tasks, runner, cfg.Scheduler.WakeInterval, log)

	return &App{
		Config:     cfg,
		Log:        log,
		Limiter:    limiter,
		Repo:       repo,
		Tasks:      tasks,
		Sources:    sources,
		Notifiers:  notifiers,
		Filters:    filters,
		Runner:     runner,
		Dispatcher: dispatcher,
	}, nil
}

// Close releases storage
func (a *App) Close() error {
	return a.Repo.Close()
}

func buildSources(ctx context.Context, cfg *config.Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*source.Registry, error) {
	reg := source.NewRegistry()

	if cfg.Sources.YouTube.Enabled {
		if cfg.Sources.YouTube.APIKey == "" {
			log.Warn().Msg("YouTube source enabled without api key, skipping")
		} else {
			yt, err := youtube.New(ctx, cfg.Sources.YouTube, limiter, log)
			if err != nil {
				return nil, err
			}
			reg.Register(yt)
		}
	}

	if cfg.Sources.Reddit.Enabled {
		reg.Register(reddit.New(cfg.Sources.Reddit, limiter, log))
	}

	if cfg.Sources.RSS.Enabled {
		reg.Register(rss.New(cfg.Sources.RSS, limiter, log))
	}

	if cfg.Sources.Twitter.Enabled {
		if !cfg.Sources.Twitter.HasCredentials() {
			log.Warn().Msg("Twitter source enabled without credentials, skipping")
		} else {
			tw, err := twitter.New(cfg.Sources.Twitter, limiter, log)
			if err != nil {
				return nil, err
			}
			reg.Register(tw)
		}
	}

	if len(reg.Platforms()) == 0 {
		log.Warn().Msg("No content sources enabled; only tasks with a content selection can run")
	}

	return reg, nil
}

// Tester is implemented by notifiers that can send a test message
type Tester interface {
	Test(ctx context.Context) error
}

// ErrNotTestable is returned for notifiers without a test message
var ErrNotTestable = errors.New("notifier does not support test messages")

// TestNotifier sends a test message through the named notifier
func (a *App) TestNotifier(ctx context.Context, name string) error {
	n, err := a.Notifiers.Get(name)
	if err != nil {
		return err
	}
	t, ok := n.(Tester)
	if !ok {
		return ErrNotTestable
	}
	return t.Test(ctx)
}
