package rss

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/source"
	"github.com/content-curator/pkg/logger"
	"github.com/content-curator/pkg/ratelimit"
)

// Source implements ContentSource for RSS and Atom feeds
type Source struct {
	parser  *gofeed.Parser
	maxAge  time.Duration
	limiter *ratelimit.MultiLimiter
	log     *logger.Logger
	now     func() time.Time
}

// New creates a new feed source
func New(cfg config.RSSConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	parser := gofeed.NewParser()
	parser.UserAgent = "content-curator/1.0"

	return &Source{
		parser:  parser,
		maxAge:  cfg.MaxAge,
		limiter: limiter,
		log:     log.WithSource("rss", "feeds"),
		now:     time.Now,
	}
}

// Platform returns "rss"
func (s *Source) Platform() models.Platform {
	return models.PlatformRSS
}

// IsIdentifier accepts absolute http(s) feed URLs
func (s *Source) IsIdentifier(v string) bool {
	u, err := url.Parse(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// FetchByIdentifier retrieves the newest entries of a feed
func (s *Source) FetchByIdentifier(ctx context.Context, feedURL string, maxResults int) ([]models.Item, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return nil, err
	}

	s.log.Debug().Str("url", feedURL).Msg("Fetching RSS feed")

	feed, err := s.parser.ParseURLWithContext(strings.TrimSpace(feedURL), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", feedURL, err)
	}

	items := make([]models.Item, 0, len(feed.Items))

	for _, entry := range feed.Items {
		if maxResults > 0 && len(items) >= maxResults {
			break
		}

		var published time.Time
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}
		if s.maxAge > 0 && !published.IsZero() && s.now().Sub(published) > s.maxAge {
			continue
		}

		items = append(items, toItem(feed, entry, published))
	}

	s.log.Info().
		Int("count", len(items)).
		Str("feed", feed.Title).
		Msg("Fetched RSS items")

	return items, nil
}

// Search is not possible on plain feeds
func (s *Source) Search(ctx context.Context, query string, maxResults int, orderHint string) ([]models.Item, error) {
	return nil, fmt.Errorf("rss %q: %w", query, source.ErrSearchUnsupported)
}

// HealthCheck verifies the parser can reach the network
func (s *Source) HealthCheck(ctx context.Context) error {
	if s.parser == nil {
		return fmt.Errorf("rss parser not initialized")
	}
	return nil
}

func toItem(feed *gofeed.Feed, entry *gofeed.Item, published time.Time) models.Item {
	id := entry.GUID
	if id == "" {
		id = source.GenerateExternalID("rss", entry.Link)
	}

	item := models.Item{
		"id":          id,
		"title":       cleanText(entry.Title),
		"url":         entry.Link,
		"description": cleanText(entry.Description),
		"feed":        feed.Title,
	}

	if !published.IsZero() {
		item["published"] = published.UTC().Format(time.RFC3339)
	} else {
		item["published"] = entry.Published
	}
	if entry.Author != nil && entry.Author.Name != "" {
		item["author"] = entry.Author.Name
	} else if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item["author"] = entry.Authors[0].Name
	}
	if len(entry.Categories) > 0 {
		item["categories"] = strings.Join(entry.Categories, ", ")
	}
	if entry.Image != nil && entry.Image.URL != "" {
		item["image"] = entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			item["thumbnail"] = enc.URL
			break
		}
	}

	return item
}

// cleanText removes HTML markup and collapses whitespace
func cleanText(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return strings.Join(strings.Fields(text), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.Join(strings.Fields(text), " ")
	}
	// Keep paragraph and line breaks as word boundaries
	doc.Find("br, p, li, div").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Ensure Source implements source.ContentSource
var _ source.ContentSource = (*Source)(nil)
