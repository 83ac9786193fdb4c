package source

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/content-curator/internal/models"
)

var (
	// ErrNoSource is returned when no source is registered for a platform
	ErrNoSource = errors.New("no content source for platform")

	// ErrSearchUnsupported is returned by sources that only support direct lookups
	ErrSearchUnsupported = errors.New("search not supported")
)

// ContentSource resolves a task's source string into candidate items for one platform
type ContentSource interface {
	// Platform returns the platform this source serves
	Platform() models.Platform

	// IsIdentifier reports whether s is a stable identifier (channel, subreddit, feed URL)
	IsIdentifier(s string) bool

	// FetchByIdentifier looks up the newest items behind a stable identifier
	FetchByIdentifier(ctx context.Context, identifier string, maxResults int) ([]models.Item, error)

	// Search runs a free-text query. orderHint is a platform-specific ordering, "" for default.
	Search(ctx context.Context, query string, maxResults int, orderHint string) ([]models.Item, error)

	// HealthCheck verifies the source is accessible
	HealthCheck(ctx context.Context) error
}

// GenerateExternalID creates a stable content id from a source type and URL
func GenerateExternalID(sourceType, url string) string {
	data := fmt.Sprintf("%s:%s", sourceType, url)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16]) // Use first 16 bytes (32 hex chars)
}

// Registry maps platforms to their content sources
type Registry struct {
	mu      sync.RWMutex
	sources map[models.Platform]ContentSource
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[models.Platform]ContentSource),
	}
}

// Register adds a source, replacing any source for the same platform
func (r *Registry) Register(s ContentSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Platform()] = s
}

// Get returns the source for a platform
func (r *Registry) Get(platform models.Platform) (ContentSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSource, platform)
	}
	return s, nil
}

// Platforms returns the registered platforms in sorted order
func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Platform, 0, len(r.sources))
	for p := range r.sources {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fetch resolves a task source. Identifiers go to a direct lookup, anything else is searched.
func (r *Registry) Fetch(ctx context.Context, platform models.Platform, query string, maxResults int) ([]models.Item, error) {
	s, err := r.Get(platform)
	if err != nil {
		return nil, err
	}
	if s.IsIdentifier(query) {
		return s.FetchByIdentifier(ctx, query, maxResults)
	}
	return s.Search(ctx, query, maxResults, "")
}
