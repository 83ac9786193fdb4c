package twitter

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
	apiBaseURL = "https://api.twitter.com"

	minTimeline = 5
	minSearch   = 10
	maxResults  = 100
	maxTitle    = 100
)

// usernamePattern matches "golang" and "@golang"
var usernamePattern = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)

const (
	tweetFields = "created_at,public_metrics,attachments,author_id"
	userFields  = "name,username,profile_image_url,verified"
	mediaFields = "type,url,preview_image_url,variants"
	expansions  = "author_id,attachments.media_keys"
)

// Source implements ContentSource on the X/Twitter v2 API
type Source struct {
	client  *http.Client
	baseURL string
	limiter *ratelimit.MultiLimiter
	log     *logger.Logger
}

// New creates a Twitter source. A bearer token is used as is; otherwise an
// app-only token is obtained with the consumer key and secret.
func New(cfg config.TwitterConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*Source, error) {
	return newSource(cfg, apiBaseURL, limiter, log)
}

func newSource(cfg config.TwitterConfig, baseURL string, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*Source, error) {
	base := &http.Client{Timeout: 30 * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var client *http.Client
	switch {
	case cfg.BearerToken != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.BearerToken,
			TokenType:   "Bearer",
		}))
	case cfg.ConsumerKey != "" && cfg.ConsumerSecret != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ConsumerKey,
			ClientSecret: cfg.ConsumerSecret,
			TokenURL:     baseURL + "/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		client = cc.Client(ctx)
	default:
		return nil, fmt.Errorf("twitter source needs a bearer token or consumer key and secret")
	}
	client.Timeout = base.Timeout

	return &Source{
		client:  client,
		baseURL: baseURL,
		limiter: limiter,
		log:     log.WithSource("twitter", baseURL),
	}, nil
}

// Platform returns "twitter"
func (s *Source) Platform() models.Platform {
	return models.PlatformTwitter
}

// IsIdentifier reports whether v is an account username
func (s *Source) IsIdentifier(v string) bool {
	return usernamePattern.MatchString(strings.TrimSpace(v))
}

// FetchByIdentifier returns the newest original tweets of an account, without retweets or replies
func (s *Source) FetchByIdentifier(ctx context.Context, username string, maxItems int) ([]models.Item, error) {
	name := strings.TrimPrefix(strings.TrimSpace(username), "@")

	body, err := s.get(ctx, "/2/users/by/username/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	userID := gjson.GetBytes(body, "data.id").String()
	if userID == "" {
		return nil, fmt.Errorf("twitter user %s not found", name)
	}

	params := lookupParams(maxItems, minTimeline)
	params.Set("exclude", "retweets,replies")

	return s.tweets(ctx, "/2/users/"+userID+"/tweets", params, maxItems)
}

// Search runs a recent search. orderHint is recency (default) or relevancy.
func (s *Source) Search(ctx context.Context, query string, maxItems int, orderHint string) ([]models.Item, error) {
	if orderHint == "" {
		orderHint = "recency"
	}

	params := lookupParams(maxItems, minSearch)
	params.Set("query", query)
	params.Set("sort_order", orderHint)

	return s.tweets(ctx, "/2/tweets/search/recent", params, maxItems)
}

// HealthCheck looks up a well known account
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.get(ctx, "/2/users/by/username/X", nil)
	return err
}

func (s *Source) tweets(ctx context.Context, path string, params url.Values, maxItems int) ([]models.Item, error) {
	body, err := s.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	users := make(map[string]gjson.Result)
	for _, u := range gjson.GetBytes(body, "includes.users").Array() {
		users[u.Get("id").String()] = u
	}
	media := make(map[string]gjson.Result)
	for _, m := range gjson.GetBytes(body, "includes.media").Array() {
		media[m.Get("media_key").String()] = m
	}

	data := gjson.GetBytes(body, "data").Array()
	items := make([]models.Item, 0, len(data))
	for _, tweet := range data {
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
		if tweet.Get("id").String() == "" {
			continue
		}
		items = append(items, toItem(tweet, users[tweet.Get("author_id").String()], media))
	}

	s.log.Info().Int("count", len(items)).Msg("Fetched tweets")
	return items, nil
}

func (s *Source) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterTwitter); err != nil {
		return nil, err
	}

	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read twitter response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	// Lookups report missing users as errors inside a 200 response
	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() && !gjson.GetBytes(body, "data").Exists() {
		return nil, fmt.Errorf("twitter API error: %s", errs.Get("0.detail").String())
	}

	return body, nil
}

func toItem(tweet, user gjson.Result, media map[string]gjson.Result) models.Item {
	id := tweet.Get("id").String()
	text := tweet.Get("text").String()
	username := user.Get("username").String()

	link := "https://twitter.com/i/web/status/" + id
	if username != "" {
		link = fmt.Sprintf("https://twitter.com/%s/status/%s", username, id)
	}

	item := models.Item{
		"id":            id,
		"title":         title(text),
		"content":       text,
		"url":           link,
		"username":      username,
		"name":          user.Get("name").String(),
		"created_at":    tweet.Get("created_at").String(),
		"likes":         tweet.Get("public_metrics.like_count").Int(),
		"retweets":      tweet.Get("public_metrics.retweet_count").Int(),
		"replies":       tweet.Get("public_metrics.reply_count").Int(),
		"profile_image": user.Get("profile_image_url").String(),
		"verified":      user.Get("verified").Bool(),
	}

	if key := tweet.Get("attachments.media_keys.0").String(); key != "" {
		if m, ok := media[key]; ok {
			addMedia(item, m)
		}
	}

	return item
}

// addMedia sets image, video or gif from the first attachment
func addMedia(item models.Item, m gjson.Result) {
	switch m.Get("type").String() {
	case "photo":
		item["image"] = m.Get("url").String()
	case "video":
		best := int64(-1)
		for _, v := range m.Get("variants").Array() {
			if !v.Get("bit_rate").Exists() {
				continue
			}
			if br := v.Get("bit_rate").Int(); br > best {
				best = br
				item["video"] = v.Get("url").String()
			}
		}
		if thumb := m.Get("preview_image_url").String(); thumb != "" {
			item["thumbnail"] = thumb
		}
	case "animated_gif":
		if u := m.Get("variants.0.url").String(); u != "" {
			item["gif"] = u
		}
		if thumb := m.Get("preview_image_url").String(); thumb != "" {
			item["thumbnail"] = thumb
		}
	}
}

// title is the first line of the tweet, shortened
func title(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	r := []rune(line)
	if len(r) <= maxTitle {
		return line
	}
	return string(r[:maxTitle-3]) + "..."
}

func lookupParams(maxItems, floor int) url.Values {
	n := maxItems
	if n < floor {
		n = floor
	}
	if n > maxResults {
		n = maxResults
	}

	params := url.Values{}
	params.Set("max_results", fmt.Sprint(n))
	params.Set("tweet.fields", tweetFields)
	params.Set("user.fields", userFields)
	params.Set("media.fields", mediaFields)
	params.Set("expansions", expansions)
	return params
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Ensure Source implements source.ContentSource
var _ source.ContentSource = (*Source)(nil)
