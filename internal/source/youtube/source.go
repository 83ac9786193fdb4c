package youtube

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/source"
	"github.com/content-curator/pkg/logger"
	"github.com/content-curator/pkg/ratelimit"
)

// channelPattern matches canonical channel ids such as UC_x5XG1OV2P6uZZ5FSM9Ttw
var channelPattern = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

// maxPageSize is the largest page the search endpoint returns
const maxPageSize = 50

// Source implements ContentSource on the YouTube Data API v3
type Source struct {
	service *yt.Service
	order   string
	limiter *ratelimit.MultiLimiter
	log     *logger.Logger
}

// New creates a YouTube source. Extra options override the API key client (used by tests).
func New(ctx context.Context, cfg config.YouTubeConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger, opts ...option.ClientOption) (*Source, error) {
	var clientOpts []option.ClientOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	clientOpts = append(clientOpts, opts...)

	if len(clientOpts) == 0 {
		return nil, fmt.Errorf("youtube api key is required")
	}

	service, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	order := cfg.Order
	if order == "" {
		order = "relevance"
	}

	return &Source{
		service: service,
		order:   order,
		limiter: limiter,
		log:     log.WithSource("youtube", "data-api"),
	}, nil
}

// Platform returns "youtube"
func (s *Source) Platform() models.Platform {
	return models.PlatformYouTube
}

// IsIdentifier reports whether v is a channel id
func (s *Source) IsIdentifier(v string) bool {
	return channelPattern.MatchString(strings.TrimSpace(v))
}

// FetchByIdentifier returns the newest uploads of a channel
func (s *Source) FetchByIdentifier(ctx context.Context, channelID string, maxResults int) ([]models.Item, error) {
	call := s.service.Search.List([]string{"snippet"}).
		ChannelId(strings.TrimSpace(channelID)).
		Type("video").
		Order("date").
		MaxResults(pageSize(maxResults))

	return s.run(ctx, call, "channel", channelID)
}

// Search runs a keyword search. orderHint overrides the configured order.
func (s *Source) Search(ctx context.Context, query string, maxResults int, orderHint string) ([]models.Item, error) {
	order := s.order
	if orderHint != "" {
		order = orderHint
	}

	call := s.service.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		Order(order).
		MaxResults(pageSize(maxResults))

	return s.run(ctx, call, "query", query)
}

// HealthCheck performs a one-unit quota request
func (s *Source) HealthCheck(ctx context.Context) error {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterYouTube); err != nil {
		return err
	}
	_, err := s.service.Videos.List([]string{"id"}).Chart("mostPopular").MaxResults(1).Context(ctx).Do()
	return err
}

func (s *Source) run(ctx context.Context, call *yt.SearchListCall, kind, value string) ([]models.Item, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterYouTube); err != nil {
		return nil, err
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search by %s %q: %w", kind, value, err)
	}

	items := make([]models.Item, 0, len(resp.Items))
	ids := make([]string, 0, len(resp.Items))

	for _, r := range resp.Items {
		if r.Id == nil || r.Id.VideoId == "" || r.Snippet == nil {
			continue
		}
		items = append(items, searchItem(r))
		ids = append(ids, r.Id.VideoId)
	}

	if len(ids) > 0 {
		if err := s.enrich(ctx, items, ids); err != nil {
			// Statistics are optional; filters treat missing metrics as zero
			s.log.Warn().Err(err).Msg("Failed to fetch video statistics")
		}
	}

	s.log.Info().
		Int("count", len(items)).
		Str(kind, value).
		Msg("Fetched YouTube videos")

	return items, nil
}

// enrich adds views, likes, comments and duration from videos.list
func (s *Source) enrich(ctx context.Context, items []models.Item, ids []string) error {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterYouTube); err != nil {
		return err
	}

	resp, err := s.service.Videos.List([]string{"statistics", "contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	byID := make(map[string]*yt.Video, len(resp.Items))
	for _, v := range resp.Items {
		byID[v.Id] = v
	}

	for _, item := range items {
		v, ok := byID[item.ID()]
		if !ok {
			continue
		}
		if v.Statistics != nil {
			item["views"] = int64(v.Statistics.ViewCount)
			item["likes"] = int64(v.Statistics.LikeCount)
			item["comments"] = int64(v.Statistics.CommentCount)
		}
		if v.ContentDetails != nil {
			item["duration"] = v.ContentDetails.Duration
		}
	}
	return nil
}

func searchItem(r *yt.SearchResult) models.Item {
	id := r.Id.VideoId
	sn := r.Snippet

	item := models.Item{
		"id":          id,
		"title":       sn.Title,
		"channel":     sn.ChannelTitle,
		"channel_id":  sn.ChannelId,
		"description": sn.Description,
		"published":   sn.PublishedAt,
		"url":         "https://www.youtube.com/watch?v=" + id,
	}

	if thumb := bestThumbnail(sn.Thumbnails); thumb != "" {
		item["thumbnail"] = thumb
	}
	return source.Backfill(models.PlatformYouTube, item)
}

func bestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func pageSize(n int) int64 {
	if n <= 0 {
		return 5
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return int64(n)
}

// Ensure Source implements source.ContentSource
var _ source.ContentSource = (*Source)(nil)
