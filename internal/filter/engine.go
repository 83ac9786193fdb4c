package filter

import (
	"regexp"
	"strings"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
)

// placeholderPattern matches {field} tokens in message templates
var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// DefaultTemplate is used for platforms without a configured template
const DefaultTemplate = "{url}"

// Engine decides which items pass the configured filters and renders them.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	filters   config.FiltersConfig
	templates map[string]string
}

// New creates a filter engine. templates maps platform to message template.
func New(filters config.FiltersConfig, templates map[string]string) *Engine {
	t := make(map[string]string, len(templates))
	for k, v := range templates {
		t[k] = v
	}
	return &Engine{
		filters:   filters,
		templates: t,
	}
}

// FromConfig creates an engine from the application config
func FromConfig(cfg *config.Config) *Engine {
	templates := make(map[string]string, len(cfg.Formatting))
	for platform, f := range cfg.Formatting {
		templates[platform] = f.Template
	}
	return New(cfg.Filters, templates)
}

// Filter returns the items that pass, in their original order
func (e *Engine) Filter(platform models.Platform, items []models.Item) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if e.Passes(platform, item) {
			out = append(out, item)
		}
	}
	return out
}

// Passes reports whether an item passes both global and platform filters
func (e *Engine) Passes(platform models.Platform, item models.Item) bool {
	return e.passesGlobal(item) && e.passesPlatform(platform, item)
}

func (e *Engine) passesGlobal(item models.Item) bool {
	g := e.filters.Global

	if len(g.KeywordsInclude) > 0 || len(g.KeywordsExclude) > 0 {
		// Matches across every string field, so an unrelated field can satisfy a keyword
		text := strings.ToLower(item.Text())

		if len(g.KeywordsInclude) > 0 && !containsAny(text, g.KeywordsInclude) {
			return false
		}
		if containsAny(text, g.KeywordsExclude) {
			return false
		}
	}

	if g.MinEngagement > 0 && Engagement(item) < int64(g.MinEngagement) {
		return false
	}

	return true
}

func (e *Engine) passesPlatform(platform models.Platform, item models.Item) bool {
	switch platform {
	case models.PlatformYouTube:
		f := e.filters.YouTube
		if item.Int("views") < int64(f.MinViews) {
			return false
		}
		if item.Int("likes") < int64(f.MinLikes) {
			return false
		}
		if len(f.Channels) > 0 && !contains(f.Channels, item.String("channel")) {
			return false
		}

	case models.PlatformReddit:
		f := e.filters.Reddit
		if item.Int("upvotes") < int64(f.MinUpvotes) {
			return false
		}
		if len(f.Subreddits) > 0 && !contains(f.Subreddits, item.String("subreddit")) {
			return false
		}
		if len(f.PostTypes) > 0 && !contains(f.PostTypes, item.String("type")) {
			return false
		}

	case models.PlatformTwitter:
		f := e.filters.Twitter
		if item.Int("likes") < int64(f.MinLikes) {
			return false
		}
		if item.Int("retweets") < int64(f.MinRetweets) {
			return false
		}
		if len(f.Accounts) > 0 && !contains(f.Accounts, item.String("username")) {
			return false
		}
	}

	return true
}

// Engagement scores an item across platform metrics. Missing metrics count as zero.
func Engagement(item models.Item) int64 {
	return item.Int("likes") +
		item.Int("views")/100 +
		item.Int("comments")*5 +
		item.Int("shares")*10 +
		item.Int("upvotes") +
		item.Int("retweets")*10
}

// Template returns the message template for a platform
func (e *Engine) Template(platform models.Platform) string {
	if t, ok := e.templates[string(platform)]; ok && t != "" {
		return t
	}
	return DefaultTemplate
}

// FormatTemplate replaces every {field} with the item's field. Missing fields render empty.
func FormatTemplate(item models.Item, template string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		return item.String(token[1 : len(token)-1])
	})
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
