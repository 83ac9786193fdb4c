package storage

import (
	"context"
	"errors"
	"time"

	"github.com/content-curator/internal/models"
)

// ErrNotFound is returned when a task or content row does not exist
var ErrNotFound = errors.New("not found")

// TaskRepository is the source of truth for recurrence state.
// Reads return snapshots; mutating a returned task does not change the store.
type TaskRepository interface {
	ListTasks(ctx context.Context) ([]*models.ScheduledTask, error)
	GetTask(ctx context.Context, id string) (*models.ScheduledTask, error)
	SaveTask(ctx context.Context, task *models.ScheduledTask) error
	DeleteTask(ctx context.Context, id string) error

	// UpdateNextRun sets next_run and updated. A disabled task is left untouched.
	UpdateNextRun(ctx context.Context, id string, next time.Time) error
}

// ContentStore is the dedup boundary keyed by (platform, content_id)
type ContentStore interface {
	// InsertIfAbsent stores the item unless its dedup key exists. On insert item.ID is set.
	InsertIfAbsent(ctx context.Context, item *models.ContentItem) (bool, error)
	MarkPosted(ctx context.Context, id uint) error
	GetContentByKey(ctx context.Context, platform models.Platform, contentID string) (*models.ContentItem, error)
	IsPosted(ctx context.Context, platform models.Platform, contentID string) (bool, error)
	QueryContent(ctx context.Context, filter ContentFilter) ([]*models.ContentItem, error)
}

// Repository is a store holding both tasks and content
type Repository interface {
	TaskRepository
	ContentStore

	Close() error
	Migrate() error
}

// ContentFilter defines filtering options for content queries
type ContentFilter struct {
	Platform *models.Platform
	Posted   *bool
	Limit    int
}

// DefaultContentFilter returns unposted content, newest first
func DefaultContentFilter() ContentFilter {
	posted := false
	return ContentFilter{
		Posted: &posted,
		Limit:  10,
	}
}
