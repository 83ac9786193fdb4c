package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/storage"
	"github.com/content-curator/pkg/logger"
)

// DefaultWakeInterval is how often the dispatcher looks for due tasks
const DefaultWakeInterval = time.Minute

// Dispatcher wakes on a fixed cadence and starts every due task in its own goroutine.
// A task never runs concurrently with itself.
type Dispatcher struct {
	tasks  storage.TaskRepository
	runner *Runner
	wake   time.Duration
	log    *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	cron     *cron.Cron
	cancel   context.CancelFunc
	inFlight map[string]struct{}
	idle     chan struct{} // closed when the last in-flight run is released
}

// NewDispatcher creates a stopped dispatcher
func NewDispatcher(tasks storage.TaskRepository, runner *Runner, wake time.Duration, log *logger.Logger) *Dispatcher {
	if wake <= 0 {
		wake = DefaultWakeInterval
	}
	return &Dispatcher{
		tasks:    tasks,
		runner:   runner,
		wake:     wake,
		log:      log.WithComponent("dispatcher"),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// Start begins ticking. The first tick runs before Start returns.
// Cancelling ctx stops the dispatcher like Stop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cron != nil {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{d.log}),
		cron.SkipIfStillRunning(cronLogger{d.log}),
	))
	c.Schedule(cron.Every(d.wake), cron.FuncJob(func() {
		d.Tick(runCtx)
	}))

	d.cron = c
	d.cancel = cancel
	d.mu.Unlock()

	d.log.Info().Dur("wake_interval", d.wake).Msg("Dispatcher started")

	d.Tick(runCtx)

	d.mu.Lock()
	if d.cron == c {
		c.Start()
	}
	d.mu.Unlock()

	go func() {
		<-runCtx.Done()
		d.stop(c)
	}()

	return nil
}

// Stop prevents new dispatches. In-flight runs continue; use Wait to await them.
func (d *Dispatcher) Stop() {
	d.stop(nil)
}

// stop halts c, or whatever is running when c is nil
func (d *Dispatcher) stop(c *cron.Cron) {
	d.mu.Lock()
	if d.cron == nil || (c != nil && d.cron != c) {
		d.mu.Unlock()
		return
	}
	c, cancel := d.cron, d.cancel
	d.cron, d.cancel = nil, nil
	d.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	d.log.Info().Msg("Dispatcher stopped")
}

// Running reports whether the dispatcher is ticking
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cron != nil
}

// Wait blocks until no run is in flight or ctx is done.
// Runs claimed while Wait is blocked are waited for as well.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	if len(d.inFlight) == 0 {
		d.mu.Unlock()
		return nil
	}
	idle := d.idle
	d.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the ids of tasks currently executing
func (d *Dispatcher) InFlight() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.inFlight))
	for id := range d.inFlight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tick starts every due task that is not already running and returns how many started.
// It does not wait for the runs.
func (d *Dispatcher) Tick(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	now := d.now()
	tasks, err := d.tasks.ListTasks(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("Failed to list tasks, retrying next tick")
		return 0
	}

	// Runs outlive Stop
	runCtx := context.WithoutCancel(ctx)

	started := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if !task.IsDue(now) {
			continue
		}
		if !d.claim(task.ID) {
			d.log.Debug().Str("task_id", task.ID).Msg("Task still running, skipping")
			continue
		}

		// The list is a snapshot; a RunNow may have finished since
		current, err := d.tasks.GetTask(ctx, task.ID)
		if err != nil || !current.IsDue(now) {
			d.release(task.ID)
			if err != nil {
				d.log.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to reload task, skipping")
			}
			continue
		}
		task = current

		started++
		go func(t *models.ScheduledTask) {
			defer d.release(t.ID)
			d.run(runCtx, t)
		}(task)
	}

	if started > 0 {
		d.log.Info().Int("started", started).Msg("Dispatched due tasks")
	}
	return started
}

// RunNow executes a task immediately and synchronously, on the same path as timed runs
func (d *Dispatcher) RunNow(ctx context.Context, id string) (*Report, error) {
	task, err := d.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Enabled {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskDisabled)
	}
	if !d.claim(id) {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskInFlight)
	}
	defer d.release(id)

	return d.run(ctx, task), nil
}

// claim marks a task in flight. It returns false if it already was.
func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.inFlight[id]; ok {
		return false
	}
	if len(d.inFlight) == 0 {
		d.idle = make(chan struct{})
	}
	d.inFlight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.inFlight[id]; !ok {
		return
	}
	delete(d.inFlight, id)
	if len(d.inFlight) == 0 {
		close(d.idle)
	}
}

func (d *Dispatcher) run(ctx context.Context, task *models.ScheduledTask) (report *Report) {
	defer func() {
		if p := recover(); p != nil {
			d.log.Error().
				Str("task_id", task.ID).
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("Task run panicked")
			report = &Report{TaskID: task.ID, Platform: task.Platform, Err: &InternalError{Value: p}}
		}
	}()

	return d.runner.Run(ctx, task)
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
