package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/content-curator/internal/filter"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/notifier"
	"github.com/content-curator/internal/source"
	"github.com/content-curator/internal/storage"
	"github.com/content-curator/pkg/logger"
)

// DefaultMaxItems caps deliveries for tasks persisted without a limit
const DefaultMaxItems = 5

// ContentFetcher resolves a task source into items for a platform
type ContentFetcher interface {
	Fetch(ctx context.Context, platform models.Platform, query string, maxResults int) ([]models.Item, error)
}

// NotifierLookup finds the outbound channel of a task
type NotifierLookup interface {
	Get(ref string) (notifier.Notifier, error)
}

// Enricher adds derived fields to an item before it is rendered
type Enricher interface {
	Enrich(ctx context.Context, platform models.Platform, item models.Item) error
}

// Report is the outcome of one task execution
type Report struct {
	TaskID    string
	Platform  models.Platform
	StartedAt time.Time
	Duration  time.Duration

	Resolved  int // candidates from the selection or the source
	Passed    int // candidates that passed filters
	Delivered int
	Failed    int // delivery attempts that failed
	Skipped   int // malformed, filtered, already posted or over the cap

	Errors  []error // per-item failures that did not stop the run
	Err     error   // terminal failure of the run, nil on success
	NextRun *time.Time
}

// Runner executes one task instance end-to-end
type Runner struct {
	tasks           storage.TaskRepository
	content         storage.ContentStore
	sources         ContentFetcher
	notifiers       NotifierLookup
	filters         *filter.Engine
	enricher        Enricher
	defaultMaxItems int
	log             *logger.Logger
	now             func() time.Time
}

// NewRunner creates a task runner
func NewRunner(
	tasks storage.TaskRepository,
	content storage.ContentStore,
	sources ContentFetcher,
	notifiers NotifierLookup,
	filters *filter.Engine,
	log *logger.Logger,
) *Runner {
	return &Runner{
		tasks:           tasks,
		content:         content,
		sources:         sources,
		notifiers:       notifiers,
		filters:         filters,
		defaultMaxItems: DefaultMaxItems,
		log:             log.WithComponent("runner"),
		now:             time.Now,
	}
}

// SetEnricher enables item enrichment before rendering
func (r *Runner) SetEnricher(e Enricher) {
	r.enricher = e
}

// SetDefaultMaxItems sets the cap used for tasks without max_items
func (r *Runner) SetDefaultMaxItems(n int) {
	if n > 0 {
		r.defaultMaxItems = n
	}
}

// Run executes task and advances its next_run. Disabled tasks are not executed or rescheduled.
// Run never panics; failures are reported in the returned Report.
func (r *Runner) Run(ctx context.Context, task *models.ScheduledTask) *Report {
	report := &Report{
		TaskID:    task.ID,
		Platform:  task.Platform,
		StartedAt: r.now(),
	}
	log := r.log.WithTaskID(task.ID).WithPlatform(string(task.Platform))

	if !task.Enabled {
		report.Err = ErrTaskDisabled
		return report
	}

	log.Info().Str("schedule", task.Schedule()).Msg("Running task")

	r.safeExecute(ctx, task, report, log)

	// Manual tasks stay manual
	if !task.IsManual() {
		r.reschedule(ctx, task, report, log)
	}

	report.Duration = r.now().Sub(report.StartedAt)
	logReport(log, report)
	return report
}

func (r *Runner) safeExecute(ctx context.Context, task *models.ScheduledTask, report *Report, log *logger.Logger) {
	defer func() {
		if p := recover(); p != nil {
			report.Err = &InternalError{Value: p, Stack: debug.Stack()}
			log.Error().
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("Task run panicked")
		}
	}()

	report.Err = r.execute(ctx, task, report, log)
}

func (r *Runner) execute(ctx context.Context, task *models.ScheduledTask, report *Report, log *logger.Logger) error {
	n, err := r.notifiers.Get(task.NotifierRef)
	if err != nil {
		return &ConfigurationError{Reason: "notifier " + task.NotifierRef, Err: err}
	}

	maxItems := task.MaxItems
	if maxItems <= 0 {
		maxItems = r.defaultMaxItems
	}

	// Step 1: Resolve candidates
	candidates, err := r.resolve(ctx, task, maxItems)
	if err != nil {
		return err
	}
	report.Resolved = len(candidates)

	candidates = r.validate(candidates, !task.HasSelection(), report, log)

	// Step 2: Filter
	passed := r.filters.Filter(task.Platform, candidates)
	report.Passed = len(passed)
	report.Skipped += len(candidates) - len(passed)

	// Step 3: Drop already posted, then cap
	fresh, err := r.unposted(ctx, task.Platform, passed)
	if err != nil {
		return err
	}
	report.Skipped += len(passed) - len(fresh)

	if len(fresh) > maxItems {
		report.Skipped += len(fresh) - maxItems
		fresh = fresh[:maxItems]
	}

	if len(fresh) == 0 {
		log.Info().Int("resolved", report.Resolved).Msg("No new content to deliver")
		return nil
	}

	if r.enricher != nil {
		for _, item := range fresh {
			if err := r.enricher.Enrich(ctx, task.Platform, item); err != nil {
				log.Warn().Err(err).Str("content_id", item.ID()).Msg("Failed to enrich item")
			}
		}
	}

	// Step 4 and 5: Deliver in order, record each success
	for i, item := range fresh {
		if err := ctx.Err(); err != nil {
			report.Skipped += len(fresh) - i
			return fmt.Errorf("run interrupted: %w", err)
		}

		msg := r.filters.Render(task.Platform, item, r.now())
		if err := n.Deliver(ctx, msg); err != nil {
			derr := &DeliveryError{ContentID: item.ID(), Notifier: task.NotifierRef, Err: err}
			report.Errors = append(report.Errors, derr)
			report.Failed++
			log.Warn().Err(err).Str("content_id", item.ID()).Msg("Failed to deliver item")
			continue
		}
		report.Delivered++

		if err := r.record(context.WithoutCancel(ctx), task.Platform, item); err != nil {
			report.Errors = append(report.Errors, err)
			log.Error().Err(err).Str("content_id", item.ID()).Msg("Delivered item was not recorded")
		}
	}

	return nil
}

// resolve returns the static selection or the live fetch result
func (r *Runner) resolve(ctx context.Context, task *models.ScheduledTask, maxItems int) ([]models.Item, error) {
	if task.HasSelection() {
		return source.SelectionItems(task.Platform, task.ContentSelection), nil
	}

	query := strings.TrimSpace(task.Source)
	if query == "" {
		return nil, ErrNoSourceConfigured
	}

	items, err := r.sources.Fetch(ctx, task.Platform, query, maxItems)
	if err != nil {
		if errors.Is(err, source.ErrNoSource) {
			return nil, &ConfigurationError{Reason: "platform " + string(task.Platform), Err: err}
		}
		return nil, &FetchError{Platform: task.Platform, Source: query, Err: err}
	}
	return items, nil
}

// validate drops items missing an id or title, repeats within the batch, and
// fetched items without a url. Selected items may lack a url on platforms with no backfill.
func (r *Runner) validate(items []models.Item, requireURL bool, report *Report, log *logger.Logger) []models.Item {
	seen := make(map[string]bool, len(items))
	out := make([]models.Item, 0, len(items))

	for _, item := range items {
		id := item.ID()
		if missing := missingField(item, requireURL); missing != "" {
			log.Warn().
				Str("content_id", id).
				Str("title", item.Title()).
				Str("missing", missing).
				Msg("Skipping malformed item")
			report.Skipped++
			continue
		}
		if seen[id] {
			report.Skipped++
			continue
		}
		seen[id] = true
		out = append(out, item)
	}
	return out
}

func missingField(item models.Item, requireURL bool) string {
	switch {
	case item.ID() == "":
		return "id"
	case item.Title() == "":
		return "title"
	case requireURL && item.URL() == "":
		return "url"
	default:
		return ""
	}
}

func (r *Runner) unposted(ctx context.Context, platform models.Platform, items []models.Item) ([]models.Item, error) {
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		posted, err := r.content.IsPosted(ctx, platform, item.ID())
		if err != nil {
			return nil, fmt.Errorf("dedup check for %s: %w", item.ID(), err)
		}
		if !posted {
			out = append(out, item)
		}
	}
	return out, nil
}

// record inserts the item if new and marks it posted
func (r *Runner) record(ctx context.Context, platform models.Platform, item models.Item) error {
	row := models.NewContentItem(platform, item)

	inserted, err := r.content.InsertIfAbsent(ctx, row)
	if err != nil {
		return fmt.Errorf("record %s: %w", item.ID(), err)
	}
	if !inserted {
		existing, err := r.content.GetContentByKey(ctx, platform, item.ID())
		if err != nil {
			return fmt.Errorf("record %s: %w", item.ID(), err)
		}
		row.ID = existing.ID
	}

	if err := r.content.MarkPosted(ctx, row.ID); err != nil {
		return fmt.Errorf("mark %s posted: %w", item.ID(), err)
	}
	return nil
}

// reschedule advances next_run from the current instant, whatever the outcome
func (r *Runner) reschedule(ctx context.Context, task *models.ScheduledTask, report *Report, log *logger.Logger) {
	next := task.NextRunAfter(r.now())

	if err := r.tasks.UpdateNextRun(context.WithoutCancel(ctx), task.ID, next); err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("reschedule: %w", err))
		log.Error().Err(err).Msg("Failed to update next run")
		return
	}
	report.NextRun = &next
}

func logReport(log *logger.Logger, report *Report) {
	event := log.Info()
	if report.Err != nil {
		event = log.Warn().Err(report.Err)
	}

	if report.NextRun != nil {
		event = event.Time("next_run", *report.NextRun)
	}

	event.
		Int("resolved", report.Resolved).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Dur("duration", report.Duration).
		Msg("Task run completed")
}
