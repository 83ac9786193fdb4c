package scheduler

import (
	"errors"
	"fmt"

	"github.com/content-curator/internal/models"
)

var (
	// ErrNoSourceConfigured is returned when a task has neither a selection nor a source
	ErrNoSourceConfigured = errors.New("no source configured")

	// ErrTaskDisabled is returned when a disabled task is asked to run
	ErrTaskDisabled = errors.New("task is disabled")

	// ErrTaskInFlight is returned when a task is already executing
	ErrTaskInFlight = errors.New("task is already running")

	// ErrAlreadyRunning is returned by Start on a running dispatcher
	ErrAlreadyRunning = errors.New("dispatcher already running")
)

// FetchError is a platform or network failure while resolving content
type FetchError struct {
	Platform models.Platform
	Source   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %q: %v", e.Platform, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DeliveryError is a failed delivery of a single item
type DeliveryError struct {
	ContentID string
	Notifier  string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.ContentID, e.Notifier, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ConfigurationError means the task references something that does not exist
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// InternalError wraps a panic recovered at the run boundary
type InternalError struct {
	Value interface{}
	Stack []byte
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Value)
}
