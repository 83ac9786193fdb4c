package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig          `mapstructure:"database"`
	Tasks      TasksConfig             `mapstructure:"tasks"`
	Scheduler  SchedulerConfig         `mapstructure:"scheduler"`
	Server     ServerConfig            `mapstructure:"server"`
	Sources    SourcesConfig           `mapstructure:"sources"`
	Notifiers  NotifiersConfig         `mapstructure:"notifiers"`
	Filters    FiltersConfig           `mapstructure:"filters"`
	Formatting map[string]FormatConfig `mapstructure:"formatting"`
	AI         AIConfig                `mapstructure:"ai"`
	RateLimit  RateLimitConfig         `mapstructure:"rate_limit"`
	Logging    LoggingConfig           `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// TasksConfig selects where scheduled tasks are persisted
type TasksConfig struct {
	Store string `mapstructure:"store"` // database or file
	File  string `mapstructure:"file"`  // JSON file when store is "file"
}

// SchedulerConfig holds dispatcher settings
type SchedulerConfig struct {
	WakeInterval    time.Duration `mapstructure:"wake_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DefaultMaxItems int           `mapstructure:"default_max_items"`
}

// ServerConfig holds the health endpoint settings
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// SourcesConfig holds all content source configurations
type SourcesConfig struct {
	YouTube YouTubeConfig `mapstructure:"youtube"`
	Reddit  RedditConfig  `mapstructure:"reddit"`
	RSS     RSSConfig     `mapstructure:"rss"`
	Twitter TwitterConfig `mapstructure:"twitter"`
}

// YouTubeConfig holds YouTube Data API settings
type YouTubeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Order   string `mapstructure:"order"` // relevance, date, rating, viewCount, title
}

// RedditConfig holds Reddit API settings
type RedditConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UserAgent    string `mapstructure:"user_agent"`
	Sort         string `mapstructure:"sort"`        // hot, new, top
	TimeFilter   string `mapstructure:"time_filter"` // hour, day, week, month, year, all
}

// RSSConfig holds RSS feed settings
type RSSConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	MaxAge  time.Duration `mapstructure:"max_age"` // skip entries older than this, 0 keeps all
}

// TwitterConfig holds X/Twitter API v2 settings. A bearer token takes
// precedence over the consumer key and secret.
type TwitterConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BearerToken    string `mapstructure:"bearer_token"`
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
}

// HasCredentials reports whether the source can authenticate
func (c TwitterConfig) HasCredentials() bool {
	return c.BearerToken != "" || (c.ConsumerKey != "" && c.ConsumerSecret != "")
}

// NotifiersConfig holds outbound channel settings
type NotifiersConfig struct {
	Discord DiscordConfig `mapstructure:"discord"`
	Sheets  SheetsConfig  `mapstructure:"sheets"`
}

// DiscordConfig holds Discord webhook settings
type DiscordConfig struct {
	Username  string          `mapstructure:"username"`
	AvatarURL string          `mapstructure:"avatar_url"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	Webhooks  []WebhookConfig `mapstructure:"webhooks"`
}

// SheetsConfig holds the Google Sheets delivery log settings
type SheetsConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Name               string `mapstructure:"name"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// WebhookConfig represents a single named webhook
type WebhookConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// FiltersConfig holds global and per-platform content filters
type FiltersConfig struct {
	Global  GlobalFilters  `mapstructure:"global"`
	YouTube YouTubeFilters `mapstructure:"youtube"`
	Reddit  RedditFilters  `mapstructure:"reddit"`
	Twitter TwitterFilters `mapstructure:"twitter"`
}

// GlobalFilters apply to every platform
type GlobalFilters struct {
	KeywordsInclude []string `mapstructure:"keywords_include"`
	KeywordsExclude []string `mapstructure:"keywords_exclude"`
	MinEngagement   int      `mapstructure:"min_engagement"`
}

// YouTubeFilters are video thresholds and allow-lists
type YouTubeFilters struct {
	MinViews int      `mapstructure:"min_views"`
	MinLikes int      `mapstructure:"min_likes"`
	Channels []string `mapstructure:"channels"`
}

// RedditFilters are post thresholds and allow-lists
type RedditFilters struct {
	MinUpvotes int      `mapstructure:"min_upvotes"`
	Subreddits []string `mapstructure:"subreddits"`
	PostTypes  []string `mapstructure:"post_types"`
}

// TwitterFilters are tweet thresholds and allow-lists
type TwitterFilters struct {
	MinLikes    int      `mapstructure:"min_likes"`
	MinRetweets int      `mapstructure:"min_retweets"`
	Accounts    []string `mapstructure:"accounts"`
}

// FormatConfig holds the message template of a platform
type FormatConfig struct {
	Template string `mapstructure:"template"`
}

// AIConfig holds Claude API settings for item summaries
type AIConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	YouTubeRequestsPerMinute   int `mapstructure:"youtube_requests_per_minute"`
	RedditRequestsPerMinute    int `mapstructure:"reddit_requests_per_minute"`
	RSSRequestsPerMinute       int `mapstructure:"rss_requests_per_minute"`
	TwitterRequestsPerMinute   int `mapstructure:"twitter_requests_per_minute"`
	DiscordRequestsPerMinute   int `mapstructure:"discord_requests_per_minute"`
	SheetsRequestsPerMinute    int `mapstructure:"sheets_requests_per_minute"`
	AnthropicRequestsPerMinute int `mapstructure:"anthropic_requests_per_minute"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".content-curator"))
		}
	}

	v.SetEnvPrefix("CURATOR")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.driver", "CURATOR_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "CURATOR_DATABASE_DSN")
	v.BindEnv("tasks.store", "CURATOR_TASKS_STORE")
	v.BindEnv("tasks.file", "CURATOR_TASKS_FILE")
	v.BindEnv("server.port", "CURATOR_SERVER_PORT", "PORT")
	v.BindEnv("sources.youtube.api_key", "CURATOR_YOUTUBE_API_KEY")
	v.BindEnv("sources.reddit.client_id", "CURATOR_REDDIT_CLIENT_ID")
	v.BindEnv("sources.reddit.client_secret", "CURATOR_REDDIT_CLIENT_SECRET")
	v.BindEnv("sources.twitter.bearer_token", "CURATOR_TWITTER_BEARER_TOKEN")
	v.BindEnv("sources.twitter.consumer_key", "CURATOR_TWITTER_CONSUMER_KEY")
	v.BindEnv("sources.twitter.consumer_secret", "CURATOR_TWITTER_CONSUMER_SECRET")
	v.BindEnv("notifiers.sheets.spreadsheet_id", "CURATOR_SHEETS_SPREADSHEET_ID")
	v.BindEnv("notifiers.sheets.service_account_json", "GOOGLE_SERVICE_ACCOUNT_JSON")
	v.BindEnv("ai.enabled", "CURATOR_AI_ENABLED")
	v.BindEnv("ai.api_key", "CURATOR_ANTHROPIC_API_KEY")
	v.BindEnv("logging.level", "CURATOR_LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/curator.db")

	v.SetDefault("tasks.store", "database")
	v.SetDefault("tasks.file", "./config/tasks.json")

	v.SetDefault("scheduler.wake_interval", "60s")
	v.SetDefault("scheduler.shutdown_timeout", "30s")
	v.SetDefault("scheduler.default_max_items", 5)

	v.SetDefault("server.port", "10000")

	v.SetDefault("sources.youtube.enabled", true)
	v.SetDefault("sources.youtube.order", "relevance")

	v.SetDefault("sources.reddit.enabled", true)
	v.SetDefault("sources.reddit.user_agent", "content-curator/1.0")
	v.SetDefault("sources.reddit.sort", "hot")
	v.SetDefault("sources.reddit.time_filter", "day")

	v.SetDefault("sources.rss.enabled", true)
	v.SetDefault("sources.rss.max_age", "168h")

	v.SetDefault("sources.twitter.enabled", true)

	v.SetDefault("notifiers.discord.username", "Content Curator")
	v.SetDefault("notifiers.discord.timeout", "30s")
	v.SetDefault("notifiers.sheets.enabled", false)
	v.SetDefault("notifiers.sheets.name", "sheets")
	v.SetDefault("notifiers.sheets.sheet_name", "Deliveries")

	v.SetDefault("formatting.youtube.template", "{title}\n{url}")
	v.SetDefault("formatting.reddit.template", "{title} (r/{subreddit})\n{permalink}")
	v.SetDefault("formatting.rss.template", "{title}\n{url}")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.max_tokens", 300)

	v.SetDefault("rate_limit.youtube_requests_per_minute", 60)
	v.SetDefault("rate_limit.reddit_requests_per_minute", 60)
	v.SetDefault("rate_limit.rss_requests_per_minute", 60)
	v.SetDefault("rate_limit.twitter_requests_per_minute", 30)
	v.SetDefault("rate_limit.discord_requests_per_minute", 30)
	v.SetDefault("rate_limit.sheets_requests_per_minute", 60)
	v.SetDefault("rate_limit.anthropic_requests_per_minute", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Template returns the message template configured for a platform
func (c *Config) Template(platform string) string {
	if f, ok := c.Formatting[platform]; ok && f.Template != "" {
		return f.Template
	}
	return "{url}"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Scheduler.WakeInterval < time.Second {
		return fmt.Errorf("scheduler.wake_interval must be at least 1s")
	}
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver: %s", c.Database.Driver)
	}
	switch c.Tasks.Store {
	case "", "database", "file":
	default:
		return fmt.Errorf("unsupported tasks.store: %s", c.Tasks.Store)
	}
	if c.Tasks.Store == "file" && c.Tasks.File == "" {
		return fmt.Errorf("tasks.file is required when tasks.store is file")
	}
	seen := make(map[string]bool)
	for _, w := range c.Notifiers.Discord.Webhooks {
		if w.Name == "" || w.URL == "" {
			return fmt.Errorf("notifiers.discord.webhooks entries need name and url")
		}
		if seen[w.Name] {
			return fmt.Errorf("duplicate webhook name: %s", w.Name)
		}
		seen[w.Name] = true
	}
	if c.Notifiers.Sheets.Enabled {
		if c.Notifiers.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("notifiers.sheets.spreadsheet_id is required when notifiers.sheets.enabled")
		}
		if seen[c.Notifiers.Sheets.Name] {
			return fmt.Errorf("notifiers.sheets.name %s clashes with a webhook name", c.Notifiers.Sheets.Name)
		}
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required when ai.enabled")
	}
	return nil
}
