package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/source"
	"github.com/content-curator/pkg/logger"
	"github.com/content-curator/pkg/ratelimit"
)

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func rssFeed(recent time.Time) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Go Blog</title>
  <link>https://go.dev/blog</link>
  <item>
    <title>Fresh post</title>
    <link>https://go.dev/blog/fresh</link>
    <guid>fresh-1</guid>
    <description>&lt;p&gt;Hello&lt;br&gt;&lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description>
    <pubDate>` + recent.Format(time.RFC1123Z) + `</pubDate>
    <category>go</category>
  </item>
  <item>
    <title>No guid</title>
    <link>https://go.dev/blog/noguid</link>
    <pubDate>` + recent.Add(-time.Hour).Format(time.RFC1123Z) + `</pubDate>
  </item>
  <item>
    <title>Ancient post</title>
    <link>https://go.dev/blog/ancient</link>
    <guid>ancient</guid>
    <pubDate>Mon, 01 Jan 2001 00:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`
}

func TestFetchByIdentifier(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	srv := feedServer(t, rssFeed(now.Add(-time.Hour)))

	s := New(config.RSSConfig{MaxAge: 7 * 24 * time.Hour}, ratelimit.Unlimited(), logger.Nop())

	items, err := s.FetchByIdentifier(context.Background(), srv.URL, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "fresh-1", first.ID())
	assert.Equal(t, "Fresh post", first.Title())
	assert.Equal(t, "https://go.dev/blog/fresh", first.URL())
	assert.Equal(t, "Hello world", first.String("description"))
	assert.Equal(t, "Go Blog", first.String("feed"))
	assert.Equal(t, "go", first.String("categories"))
	assert.NotEmpty(t, first.Published())

	assert.Equal(t, source.GenerateExternalID("rss", "https://go.dev/blog/noguid"), items[1].ID())
}

func TestFetchByIdentifier_MaxResults(t *testing.T) {
	srv := feedServer(t, rssFeed(time.Now()))
	s := New(config.RSSConfig{}, ratelimit.Unlimited(), logger.Nop())

	items, err := s.FetchByIdentifier(context.Background(), srv.URL, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFetchByIdentifier_BadFeed(t *testing.T) {
	srv := feedServer(t, "definitely not xml")
	s := New(config.RSSConfig{}, ratelimit.Unlimited(), logger.Nop())

	_, err := s.FetchByIdentifier(context.Background(), srv.URL, 5)
	assert.Error(t, err)
}

func TestIsIdentifier(t *testing.T) {
	s := New(config.RSSConfig{}, ratelimit.Unlimited(), logger.Nop())

	assert.True(t, s.IsIdentifier("https://go.dev/blog/feed.atom"))
	assert.True(t, s.IsIdentifier("http://example.com/rss"))
	assert.False(t, s.IsIdentifier("golang news"))
	assert.False(t, s.IsIdentifier("ftp://example.com/feed"))
}

func TestSearch_Unsupported(t *testing.T) {
	s := New(config.RSSConfig{}, ratelimit.Unlimited(), logger.Nop())
	_, err := s.Search(context.Background(), "golang", 5, "")
	assert.ErrorIs(t, err, source.ErrSearchUnsupported)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b", cleanText("  a \n b "))
	assert.Equal(t, "one two", cleanText("<p>one</p><p>two</p>"))
	assert.Equal(t, "Tom & Jerry", cleanText("Tom &amp; Jerry"))
}
