package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/filter"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/notifier"
	"github.com/content-curator/internal/source"
	"github.com/content-curator/internal/storage"
	"github.com/content-curator/internal/storage/taskfile"
	"github.com/content-curator/pkg/logger"
)

// fakeFetcher returns canned items per platform/query
type fakeFetcher struct {
	mu    sync.Mutex
	items []models.Item
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, platform models.Platform, query string, maxResults int) ([]models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Item, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it.Clone())
	}
	return out, nil
}

// fakeNotifier records deliveries; titles listed in fail are rejected
type fakeNotifier struct {
	name  string
	fail  map[string]bool
	panic bool
	block chan struct{}

	mu  sync.Mutex
	got []*models.Message
}

func (n *fakeNotifier) Name() string { return n.name }

func (n *fakeNotifier) Deliver(ctx context.Context, msg *models.Message) error {
	if n.block != nil {
		<-n.block
	}
	if n.panic {
		panic("notifier exploded")
	}
	if len(msg.Embeds) > 0 && n.fail[msg.Embeds[0].Title] {
		return errors.New("webhook returned 500")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, msg)
	return nil
}

func (n *fakeNotifier) delivered() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	titles := make([]string, 0, len(n.got))
	for _, m := range n.got {
		titles = append(titles, m.Embeds[0].Title)
	}
	return titles
}

// memContent is an in-memory ContentStore
type memContent struct {
	mu     sync.Mutex
	rows   []*models.ContentItem
	failAt string // content id whose insert fails
}

func (m *memContent) InsertIfAbsent(ctx context.Context, item *models.ContentItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ContentID == m.failAt {
		return false, errors.New("disk full")
	}
	for _, r := range m.rows {
		if r.Platform == item.Platform && r.ContentID == item.ContentID {
			return false, nil
		}
	}
	item.ID = uint(len(m.rows) + 1)
	c := *item
	m.rows = append(m.rows, &c)
	return true, nil
}

func (m *memContent) MarkPosted(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r.Posted = true
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memContent) GetContentByKey(ctx context.Context, platform models.Platform, contentID string) (*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Platform == platform && r.ContentID == contentID {
			c := *r
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memContent) IsPosted(ctx context.Context, platform models.Platform, contentID string) (bool, error) {
	row, err := m.GetContentByKey(ctx, platform, contentID)
	if err != nil {
		return false, nil
	}
	return row.Posted, nil
}

func (m *memContent) QueryContent(ctx context.Context, filter storage.ContentFilter) ([]*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ContentItem
	for _, r := range m.rows {
		if filter.Platform != nil && r.Platform != *filter.Platform {
			continue
		}
		if filter.Posted != nil && r.Posted != *filter.Posted {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *memContent) posted(platform models.Platform) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, r := range m.rows {
		if r.Platform == platform && r.Posted {
			ids = append(ids, r.ContentID)
		}
	}
	return ids
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	tasks    *taskfile.Store
	content  *memContent
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	runner   *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tasks, err := taskfile.Open(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)

	h := &harness{
		tasks:    tasks,
		content:  &memContent{},
		fetcher:  &fakeFetcher{},
		notifier: &fakeNotifier{name: "main"},
	}

	filters := filter.New(config.FiltersConfig{}, map[string]string{"youtube": "{title} {url}"})
	h.runner = NewRunner(tasks, h.content, h.fetcher, notifier.NewRegistry(h.notifier), filters, logger.Nop())
	h.runner.now = func() time.Time { return testNow }
	return h
}

func (h *harness) save(t *testing.T, task *models.ScheduledTask) *models.ScheduledTask {
	t.Helper()
	require.NoError(t, h.tasks.SaveTask(context.Background(), task))
	got, err := h.tasks.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	return got
}

func newTask(id string) *models.ScheduledTask {
	next := testNow.Add(-5 * time.Hour)
	return &models.ScheduledTask{
		ID:            id,
		Platform:      models.PlatformYouTube,
		Source:        "golang",
		NotifierRef:   "main",
		Enabled:       true,
		IntervalValue: 2,
		IntervalUnit:  models.IntervalHours,
		NextRun:       &next,
		MaxItems:      5,
	}
}

func items(ids ...string) []models.Item {
	out := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Item{"id": id, "title": "title " + id, "url": "https://example.com/" + id})
	}
	return out
}

// Ensure the fakes match the runner's collaborators
var (
	_ ContentFetcher       = (*fakeFetcher)(nil)
	_ ContentFetcher       = (*source.Registry)(nil)
	_ NotifierLookup       = (*notifier.Registry)(nil)
	_ storage.ContentStore = (*memContent)(nil)
	_ notifier.Notifier    = (*fakeNotifier)(nil)
)
