package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Limiter names
const (
	LimiterYouTube   = "youtube"
	LimiterReddit    = "reddit"
	LimiterRSS       = "rss"
	LimiterTwitter   = "twitter"
	LimiterDiscord   = "discord"
	LimiterSheets    = "sheets"
	LimiterAnthropic = "anthropic"
)

// Limits holds per-service request budgets
type Limits struct {
	YouTubePerMinute   int
	RedditPerMinute    int
	RSSPerMinute       int
	TwitterPerMinute   int
	DiscordPerMinute   int
	SheetsPerMinute    int
	AnthropicPerMinute int
}

// DefaultLimits mirrors the public quotas of each service
func DefaultLimits() Limits {
	return Limits{
		YouTubePerMinute:   60,
		RedditPerMinute:    60,
		RSSPerMinute:       60,
		TwitterPerMinute:   30,
		DiscordPerMinute:   30,
		SheetsPerMinute:    60,
		AnthropicPerMinute: 10,
	}
}

// New creates a limiter with one bucket per service. Zero values fall back to defaults.
func New(l Limits) *MultiLimiter {
	d := DefaultLimits()
	m := NewMultiLimiter()

	m.AddLimiter(LimiterYouTube, perSecond(l.YouTubePerMinute, d.YouTubePerMinute), 10)
	m.AddLimiter(LimiterReddit, perSecond(l.RedditPerMinute, d.RedditPerMinute), 10)
	m.AddLimiter(LimiterRSS, perSecond(l.RSSPerMinute, d.RSSPerMinute), 10)
	m.AddLimiter(LimiterTwitter, perSecond(l.TwitterPerMinute, d.TwitterPerMinute), 5)
	// Discord webhooks allow short bursts of 5
	m.AddLimiter(LimiterDiscord, perSecond(l.DiscordPerMinute, d.DiscordPerMinute), 5)
	m.AddLimiter(LimiterSheets, perSecond(l.SheetsPerMinute, d.SheetsPerMinute), 5)
	m.AddLimiter(LimiterAnthropic, perSecond(l.AnthropicPerMinute, d.AnthropicPerMinute), 2)

	return m
}

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	return New(DefaultLimits())
}

// Unlimited returns a limiter that never blocks, for tests and local tools
func Unlimited() *MultiLimiter {
	m := NewMultiLimiter()
	for _, name := range []string{LimiterYouTube, LimiterReddit, LimiterRSS, LimiterTwitter, LimiterDiscord, LimiterSheets, LimiterAnthropic} {
		m.AddLimiter(name, float64(rate.Inf), 1)
	}
	return m
}

func perSecond(perMinute, fallback int) float64 {
	if perMinute <= 0 {
		perMinute = fallback
	}
	return float64(perMinute) / 60
}
