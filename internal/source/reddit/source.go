package reddit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/source"
	"github.com/content-curator/pkg/logger"
	"github.com/content-curator/pkg/ratelimit"
)

const (
	publicBaseURL = "https://www.reddit.com"
	oauthBaseURL  = "https://oauth.reddit.com"
	tokenURL      = "https://www.reddit.com/api/v1/access_token"

	maxListing  = 100
	maxSelfText = 2000
)

// subredditPattern matches "golang", "r/golang" and "/r/golang"
var subredditPattern = regexp.MustCompile(`^(/?r/)?[A-Za-z0-9][A-Za-z0-9_]{1,20}$`)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// Source implements ContentSource on Reddit's JSON listings
type Source struct {
	client     *http.Client
	baseURL    string
	sort       string
	timeFilter string
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// New creates a Reddit source. With client credentials it uses the OAuth API,
// otherwise the public JSON endpoints.
func New(cfg config.RedditConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "content-curator/1.0"
	}

	base := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &userAgentTransport{agent: userAgent, next: http.DefaultTransport},
	}

	client := base
	baseURL := publicBaseURL

	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		// Token requests need the User-Agent too
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(ctx)
		client.Timeout = base.Timeout
		baseURL = oauthBaseURL
	}

	sort := cfg.Sort
	if sort == "" {
		sort = "hot"
	}

	return &Source{
		client:     client,
		baseURL:    baseURL,
		sort:       sort,
		timeFilter: cfg.TimeFilter,
		limiter:    limiter,
		log:        log.WithSource("reddit", baseURL),
	}
}

// Platform returns "reddit"
func (s *Source) Platform() models.Platform {
	return models.PlatformReddit
}

// IsIdentifier reports whether v names a subreddit
func (s *Source) IsIdentifier(v string) bool {
	return subredditPattern.MatchString(strings.TrimSpace(v))
}

// FetchByIdentifier returns posts of a subreddit listing
func (s *Source) FetchByIdentifier(ctx context.Context, subreddit string, maxResults int) ([]models.Item, error) {
	name := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(subreddit), "/"), "r/")

	params := url.Values{}
	params.Set("limit", fmt.Sprint(limit(maxResults)))
	params.Set("raw_json", "1")
	if s.sort == "top" && s.timeFilter != "" {
		params.Set("t", s.timeFilter)
	}

	endpoint := fmt.Sprintf("%s/r/%s/%s.json?%s", s.baseURL, url.PathEscape(name), s.sort, params.Encode())
	return s.listing(ctx, endpoint, maxResults)
}

// Search queries all of Reddit. orderHint is relevance, hot, top, new or comments.
func (s *Source) Search(ctx context.Context, query string, maxResults int, orderHint string) ([]models.Item, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", fmt.Sprint(limit(maxResults)))
	params.Set("raw_json", "1")
	params.Set("type", "link")
	if orderHint != "" {
		params.Set("sort", orderHint)
	}
	if s.timeFilter != "" {
		params.Set("t", s.timeFilter)
	}

	return s.listing(ctx, s.baseURL+"/search.json?"+params.Encode(), maxResults)
}

// HealthCheck fetches a one-post listing
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.get(ctx, s.baseURL+"/r/all/hot.json?limit=1")
	return err
}

func (s *Source) listing(ctx context.Context, endpoint string, maxResults int) ([]models.Item, error) {
	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	children := gjson.GetBytes(body, "data.children")
	if !children.IsArray() {
		return nil, fmt.Errorf("unexpected reddit response: missing data.children")
	}

	items := make([]models.Item, 0, len(children.Array()))
	for _, child := range children.Array() {
		if maxResults > 0 && len(items) >= maxResults {
			break
		}
		post := child.Get("data")
		if post.Get("stickied").Bool() || post.Get("id").String() == "" {
			continue
		}
		items = append(items, toItem(post))
	}

	s.log.Info().Int("count", len(items)).Msg("Fetched Reddit posts")
	return items, nil
}

func (s *Source) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterReddit); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read reddit response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func toItem(post gjson.Result) models.Item {
	postType := postType(post)

	author := post.Get("author").String()
	if author == "" {
		author = "[deleted]"
	}

	item := models.Item{
		"id":           post.Get("id").String(),
		"title":        post.Get("title").String(),
		"url":          post.Get("url").String(),
		"permalink":    publicBaseURL + post.Get("permalink").String(),
		"author":       author,
		"subreddit":    post.Get("subreddit").String(),
		"upvotes":      post.Get("score").Int(),
		"upvote_ratio": post.Get("upvote_ratio").Float(),
		"comments":     post.Get("num_comments").Int(),
		"created_at":   time.Unix(post.Get("created_utc").Int(), 0).UTC().Format(time.RFC3339),
		"type":         postType,
		"nsfw":         post.Get("over_18").Bool(),
	}

	switch postType {
	case "text":
		item["text"] = truncate(post.Get("selftext").String(), maxSelfText)
	case "image":
		item["image"] = post.Get("url").String()
	case "video":
		if v := post.Get("media.reddit_video.fallback_url"); v.Exists() {
			item["video"] = v.String()
		}
	}

	if thumb := post.Get("thumbnail").String(); strings.HasPrefix(thumb, "http") {
		item["thumbnail"] = thumb
	}

	return source.Backfill(models.PlatformReddit, item)
}

// postType classifies a post as text, image, video, gallery or link
func postType(post gjson.Result) string {
	if post.Get("is_self").Bool() {
		return "text"
	}

	u := strings.ToLower(post.Get("url").String())
	for _, ext := range imageExtensions {
		if strings.HasSuffix(u, ext) {
			return "image"
		}
	}

	if post.Get("is_video").Bool() {
		return "video"
	}
	if post.Get("is_gallery").Bool() {
		return "gallery"
	}
	return "link"
}

func limit(n int) int {
	if n <= 0 {
		return 25
	}
	// Over-fetch to make up for skipped stickied posts
	n += 2
	if n > maxListing {
		return maxListing
	}
	return n
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}

// Ensure Source implements source.ContentSource
var _ source.ContentSource = (*Source)(nil)
