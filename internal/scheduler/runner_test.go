package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/filter"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/source"
)

func TestRun_StaticSelectionEndToEnd(t *testing.T) {
	h := newHarness(t)
	task := newTask("sel")
	task.Source = ""
	task.MaxItems = 1
	task.ContentSelection = models.ContentSelection{{ID: "v1", Title: "T1"}}
	task = h.save(t, task)

	report := h.runner.Run(context.Background(), task)

	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Delivered)
	assert.Empty(t, h.fetcher.calls, "selection must not trigger a live fetch")

	require.Len(t, h.notifier.got, 1)
	msg := h.notifier.got[0]
	assert.Equal(t, "T1 https://www.youtube.com/watch?v=v1", msg.Content)
	assert.Equal(t, "https://img.youtube.com/vi/v1/hqdefault.jpg", msg.Embeds[0].Thumbnail.URL)

	assert.Equal(t, []string{"v1"}, h.content.posted(models.PlatformYouTube))

	stored, err := h.tasks.GetTask(context.Background(), "sel")
	require.NoError(t, err)
	require.NotNil(t, stored.NextRun)
	assert.True(t, testNow.Add(2*time.Hour).Equal(*stored.NextRun))
}

func TestRun_NextRunFromExecutionInstant(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a")
	task := h.save(t, newTask("drift"))
	previous := *task.NextRun

	report := h.runner.Run(context.Background(), task)
	require.NotNil(t, report.NextRun)

	assert.True(t, testNow.Add(2*time.Hour).Equal(*report.NextRun))
	assert.False(t, previous.Add(2*time.Hour).Equal(*report.NextRun))
}

func TestRun_NoSourceConfiguredStillReschedules(t *testing.T) {
	h := newHarness(t)
	task := newTask("empty")
	task.Source = "   "
	task = h.save(t, task)

	report := h.runner.Run(context.Background(), task)

	assert.ErrorIs(t, report.Err, ErrNoSourceConfigured)
	assert.Zero(t, report.Delivered)
	require.NotNil(t, report.NextRun)

	stored, _ := h.tasks.GetTask(context.Background(), "empty")
	assert.True(t, testNow.Add(2*time.Hour).Equal(*stored.NextRun))
	assert.True(t, stored.Enabled)
}

func TestRun_FetchErrorIsTerminalButRescheduled(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = errors.New("connection reset")
	task := h.save(t, newTask("fetch"))

	report := h.runner.Run(context.Background(), task)

	var fetchErr *FetchError
	require.True(t, errors.As(report.Err, &fetchErr))
	assert.Equal(t, "golang", fetchErr.Source)
	assert.Empty(t, h.notifier.got)
	assert.NotNil(t, report.NextRun)
}

func TestRun_UnregisteredPlatformIsConfigurationError(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = source.ErrNoSource
	task := newTask("tw")
	task.Platform = models.PlatformTwitter
	task = h.save(t, task)

	report := h.runner.Run(context.Background(), task)

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(report.Err, &cfgErr))
	assert.NotNil(t, report.NextRun)
}

func TestRun_UnknownNotifier(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a")
	task := newTask("nn")
	task.NotifierRef = "nowhere"
	task = h.save(t, task)

	report := h.runner.Run(context.Background(), task)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(report.Err, &cfgErr))
	assert.Empty(t, h.fetcher.calls)
	assert.NotNil(t, report.NextRun)

	stored, _ := h.tasks.GetTask(context.Background(), "nn")
	assert.True(t, stored.Enabled)
}

func TestRun_PartialDeliveryFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("1", "2", "3")
	h.notifier.fail = map[string]bool{"title 2": true}
	task := h.save(t, newTask("partial"))

	report := h.runner.Run(context.Background(), task)

	require.NoError(t, report.Err)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)

	var delErr *DeliveryError
	require.True(t, errors.As(report.Errors[0], &delErr))
	assert.Equal(t, "2", delErr.ContentID)

	assert.Equal(t, []string{"title 1", "title 3"}, h.notifier.delivered())
	assert.Equal(t, []string{"1", "3"}, h.content.posted(models.PlatformYouTube))
	assert.NotNil(t, report.NextRun)
}

func TestRun_DedupAcrossRuns(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a", "b")
	task := h.save(t, newTask("dedup"))

	first := h.runner.Run(context.Background(), task)
	assert.Equal(t, 2, first.Delivered)

	h.fetcher.items = items("b", "c")
	second := h.runner.Run(context.Background(), task)
	assert.Equal(t, 1, second.Delivered)
	assert.Equal(t, 1, second.Skipped)

	assert.Equal(t, []string{"title a", "title b", "title c"}, h.notifier.delivered())
}

func TestRun_FailedItemRetriedNextRun(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a")
	h.notifier.fail = map[string]bool{"title a": true}
	task := h.save(t, newTask("retry"))

	report := h.runner.Run(context.Background(), task)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, h.content.posted(models.PlatformYouTube))

	h.notifier.fail = nil
	report = h.runner.Run(context.Background(), task)
	assert.Equal(t, 1, report.Delivered)
}

func TestRun_CapPreservesOrder(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("1", "2", "3", "4", "5")
	task := newTask("cap")
	task.MaxItems = 2
	task = h.save(t, task)

	report := h.runner.Run(context.Background(), task)

	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, []string{"title 1", "title 2"}, h.notifier.delivered())
}

func TestRun_DefaultMaxItems(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("1", "2", "3", "4")
	h.runner.SetDefaultMaxItems(3)

	task := newTask("legacy")
	task.MaxItems = 0 // persisted before max_items was required

	report := h.runner.Run(context.Background(), task)
	assert.Equal(t, 3, report.Delivered)
}

func TestRun_SkipsMalformedAndFiltered(t *testing.T) {
	h := newHarness(t)
	h.runner.filters = filter.New(config.FiltersConfig{
		Global: config.GlobalFilters{KeywordsExclude: []string{"skip"}},
	}, nil)
	h.fetcher.items = []models.Item{
		{"title": "no id", "url": "https://example.com/x"},
		{"id": "ok", "title": "keep me", "url": "https://example.com/ok"},
		{"id": "bad", "title": "skip me", "url": "https://example.com/bad"},
		{"id": "ok", "title": "keep me again", "url": "https://example.com/ok"},
	}
	task := h.save(t, newTask("mixed"))

	report := h.runner.Run(context.Background(), task)

	require.NoError(t, report.Err)
	assert.Equal(t, 4, report.Resolved)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, []string{"keep me"}, h.notifier.delivered())
}

func TestRun_SkipsItemsMissingRequiredFields(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = []models.Item{
		{"id": "no-title", "url": "https://example.com/no-title"},
		{"id": "no-url", "title": "no url"},
		{"id": "full", "title": "complete", "url": "https://example.com/full"},
	}
	task := h.save(t, newTask("fields"))

	report := h.runner.Run(context.Background(), task)

	require.NoError(t, report.Err)
	assert.Equal(t, 3, report.Resolved)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, []string{"complete"}, h.notifier.delivered())
}

func TestRun_SelectionWithoutURLIsDelivered(t *testing.T) {
	h := newHarness(t)
	task := newTask("rss-pick")
	task.Platform = models.PlatformRSS
	task.Source = ""
	task.ContentSelection = models.ContentSelection{{ID: "post-1", Title: "Hand picked"}, {ID: "post-2"}}
	task = h.save(t, task)

	report := h.runner.Run(context.Background(), task)

	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"Hand picked"}, h.notifier.delivered())
}

func TestRun_DisabledTaskIsNotExecuted(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a")
	task := newTask("off")
	task.Enabled = false
	task = h.save(t, task)
	before := *task.NextRun

	report := h.runner.Run(context.Background(), task)

	assert.ErrorIs(t, report.Err, ErrTaskDisabled)
	assert.Nil(t, report.NextRun)
	assert.Empty(t, h.fetcher.calls)
	assert.Empty(t, h.notifier.got)

	stored, _ := h.tasks.GetTask(context.Background(), "off")
	assert.True(t, before.Equal(*stored.NextRun))
}

func TestRun_ManualTaskNotRescheduled(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a")
	task := newTask("manual")
	task.NextRun = nil
	task = h.save(t, task)

	report := h.runner.Run(context.Background(), task)

	assert.Equal(t, 1, report.Delivered)
	assert.Nil(t, report.NextRun)

	stored, _ := h.tasks.GetTask(context.Background(), "manual")
	assert.Nil(t, stored.NextRun)
}

func TestRun_PanicBecomesInternalError(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a")
	h.notifier.panic = true
	task := h.save(t, newTask("boom"))

	var report *Report
	require.NotPanics(t, func() {
		report = h.runner.Run(context.Background(), task)
	})

	var internal *InternalError
	require.True(t, errors.As(report.Err, &internal))
	assert.Equal(t, "notifier exploded", internal.Value)
	assert.NotNil(t, report.NextRun)
}

func TestRun_RecordFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a", "b")
	h.content.failAt = "a"
	task := h.save(t, newTask("rec"))

	report := h.runner.Run(context.Background(), task)

	require.NoError(t, report.Err)
	assert.Equal(t, 2, report.Delivered)
	assert.Len(t, report.Errors, 1)
	assert.Equal(t, []string{"b"}, h.content.posted(models.PlatformYouTube))
}

func TestRun_CancelledContextStopsDelivery(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = items("a", "b")
	task := h.save(t, newTask("cancel"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.runner.Run(ctx, task)

	assert.ErrorIs(t, report.Err, context.Canceled)
	assert.Empty(t, h.notifier.got)
	assert.Equal(t, 2, report.Skipped)
	// Rescheduling ignores cancellation
	assert.NotNil(t, report.NextRun)
}

type summaryEnricher struct{ fail bool }

func (e summaryEnricher) Enrich(ctx context.Context, platform models.Platform, item models.Item) error {
	if e.fail {
		return errors.New("rate limited")
	}
	item["summary"] = "about " + item.ID()
	return nil
}

func TestRun_Enrichment(t *testing.T) {
	h := newHarness(t)
	h.runner.filters = filter.New(config.FiltersConfig{}, map[string]string{"youtube": "{title}: {summary}"})
	h.fetcher.items = items("a")
	h.runner.SetEnricher(summaryEnricher{})
	task := h.save(t, newTask("ai"))

	h.runner.Run(context.Background(), task)
	require.Len(t, h.notifier.got, 1)
	assert.Equal(t, "title a: about a", h.notifier.got[0].Content)

	// Enrichment failures do not block delivery
	h.runner.SetEnricher(summaryEnricher{fail: true})
	h.fetcher.items = items("b")
	report := h.runner.Run(context.Background(), task)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, "title b: ", h.notifier.got[1].Content)
}
