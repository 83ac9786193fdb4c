package taskfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/storage"
)

// Store is a TaskRepository backed by a JSON file holding an array of tasks.
// The file is loaded once; every write rewrites it atomically.
type Store struct {
	path string

	mu    sync.RWMutex
	tasks map[string]*models.ScheduledTask
	now   func() time.Time
}

// Open loads the task file at path. A missing file is an empty task list.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		tasks: make(map[string]*models.ScheduledTask),
		now:   time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}

	var tasks []*models.ScheduledTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		s.tasks[t.ID] = t
	}

	return s, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]*models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *Store) SaveTask(ctx context.Context, task *models.ScheduledTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := task.Clone()
	if existing, ok := s.tasks[task.ID]; ok {
		stored.Created = existing.Created
	} else if stored.Created.IsZero() {
		stored.Created = now
	}
	stored.Updated = now

	prev, had := s.tasks[task.ID]
	s.tasks[task.ID] = stored
	if err := s.flush(); err != nil {
		if had {
			s.tasks[task.ID] = prev
		} else {
			delete(s.tasks, task.ID)
		}
		return err
	}

	task.Created = stored.Created
	task.Updated = stored.Updated
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	delete(s.tasks, id)
	if err := s.flush(); err != nil {
		s.tasks[id] = prev
		return err
	}
	return nil
}

func (s *Store) UpdateNextRun(ctx context.Context, id string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	if !t.Enabled {
		return nil
	}

	prev := t.Clone()
	t.NextRun = &next
	t.Updated = s.now()
	if err := s.flush(); err != nil {
		s.tasks[id] = prev
		return err
	}
	return nil
}

// snapshot returns deep copies ordered by creation time. Caller holds mu.
func (s *Store) snapshot() []*models.ScheduledTask {
	out := make([]*models.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// flush writes the whole task list through a temp file and rename. Caller holds mu.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write tasks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write tasks: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace task file: %w", err)
	}
	return nil
}

// Ensure Store implements storage.TaskRepository
var _ storage.TaskRepository = (*Store)(nil)
