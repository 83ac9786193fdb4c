package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/content-curator/internal/models"
)

// ErrUnknownNotifier is returned when a task references an unregistered channel
var ErrUnknownNotifier = errors.New("unknown notifier")

// Notifier delivers rendered messages to one outbound channel
type Notifier interface {
	// Name returns the reference tasks use to select this channel
	Name() string

	// Deliver sends one message. A nil error means the receiver accepted it.
	Deliver(ctx context.Context, msg *models.Message) error
}

// Registry maps notifier references to notifiers
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
}

// NewRegistry creates a registry holding the given notifiers
func NewRegistry(notifiers ...Notifier) *Registry {
	r := &Registry{notifiers: make(map[string]Notifier)}
	for _, n := range notifiers {
		r.Register(n)
	}
	return r
}

// Register adds a notifier, replacing any with the same name
func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers[n.Name()] = n
}

// Get returns the notifier for ref
func (r *Registry) Get(ref string) (Notifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notifiers[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotifier, ref)
	}
	return n, nil
}

// Names returns the registered references in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.notifiers))
	for name := range r.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deliver sends msg through the notifier named ref
func (r *Registry) Deliver(ctx context.Context, ref string, msg *models.Message) error {
	n, err := r.Get(ref)
	if err != nil {
		return err
	}
	return n.Deliver(ctx, msg)
}
