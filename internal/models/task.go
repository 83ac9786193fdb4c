package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// IntervalUnit is the unit of a task recurrence period
type IntervalUnit string

const (
	IntervalMinutes IntervalUnit = "minutes"
	IntervalHours   IntervalUnit = "hours"
	IntervalDays    IntervalUnit = "days"
	IntervalWeeks   IntervalUnit = "weeks"
)

// fallbackInterval is used when a persisted task carries an unknown unit
const fallbackInterval = time.Hour

// MaxInterval is the longest recurrence a task may have
const MaxInterval = 366 * 24 * time.Hour

// MaxIntervalValue bounds interval_value for the finest unit
const MaxIntervalValue = int(MaxInterval / time.Minute)

// Size returns the length of one unit. ok is false for unknown units.
func (u IntervalUnit) Size() (time.Duration, bool) {
	switch u {
	case IntervalMinutes:
		return time.Minute, true
	case IntervalHours:
		return time.Hour, true
	case IntervalDays:
		return 24 * time.Hour, true
	case IntervalWeeks:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Duration converts value+unit to a duration, clamped to MaxInterval.
// ok is false for unknown units.
func (u IntervalUnit) Duration(value int) (d time.Duration, ok bool) {
	size, ok := u.Size()
	if !ok {
		return fallbackInterval, false
	}
	if value < 1 {
		value = 1
	}
	if int64(value) > int64(MaxInterval/size) {
		return MaxInterval, true
	}
	return time.Duration(value) * size, true
}

// SelectedContent is a content reference captured when the task was created
type SelectedContent struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Published string `json:"published,omitempty"`
}

// ToItem converts the snapshot to a pipeline item
func (s SelectedContent) ToItem() Item {
	item := Item{
		"id":    s.ID,
		"title": s.Title,
	}
	if s.URL != "" {
		item["url"] = s.URL
	}
	if s.Thumbnail != "" {
		item["thumbnail"] = s.Thumbnail
	}
	if s.Published != "" {
		item["published"] = s.Published
	}
	return item
}

// ContentSelection is the static content bound to a task
type ContentSelection []SelectedContent

func (c ContentSelection) Value() (driver.Value, error) {
	return jsonValue(c)
}

func (c *ContentSelection) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	return scanJSON(value, c)
}

// ScheduledTask binds a content source to an outbound channel on a recurrence
type ScheduledTask struct {
	ID               string           `gorm:"primaryKey;size:64" json:"id"`
	Name             string           `gorm:"size:255" json:"name,omitempty"`
	Platform         Platform         `gorm:"size:32;not null;index" json:"platform"`
	Source           string           `gorm:"size:500" json:"source,omitempty"`
	ContentSelection ContentSelection `gorm:"type:json" json:"content_selection,omitempty"`
	NotifierRef      string           `gorm:"size:255;not null" json:"notifier_ref"`
	Enabled          bool             `gorm:"index" json:"enabled"`
	IntervalValue    int              `json:"interval_value"`
	IntervalUnit     IntervalUnit     `gorm:"size:16" json:"interval_unit"`
	StartTime        *time.Time       `json:"start_time,omitempty"`
	NextRun          *time.Time       `gorm:"index" json:"next_run,omitempty"`
	MaxItems         int              `json:"max_items"`
	Created          time.Time        `gorm:"column:created_at;autoCreateTime" json:"created"`
	Updated          time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated"`
}

// TableName keeps the table name stable across struct renames
func (ScheduledTask) TableName() string {
	return "scheduled_tasks"
}

// Interval returns the recurrence period; unknown units fall back to one hour
func (t *ScheduledTask) Interval() time.Duration {
	d, _ := t.IntervalUnit.Duration(t.IntervalValue)
	return d
}

// NextRunAfter computes the next eligible instant from the execution instant
func (t *ScheduledTask) NextRunAfter(now time.Time) time.Time {
	return now.Add(t.Interval())
}

// IsDue reports whether the dispatcher should start the task at now
func (t *ScheduledTask) IsDue(now time.Time) bool {
	return t.Enabled && t.NextRun != nil && !t.NextRun.After(now)
}

// IsManual reports whether the task only runs on demand
func (t *ScheduledTask) IsManual() bool {
	return t.NextRun == nil
}

// HasSelection reports whether static content takes precedence over a live fetch
func (t *ScheduledTask) HasSelection() bool {
	return len(t.ContentSelection) > 0
}

// Schedule returns a human readable recurrence, e.g. "Every 2 hours"
func (t *ScheduledTask) Schedule() string {
	if !t.Enabled {
		return "Disabled"
	}
	if t.IsManual() {
		return "Manual"
	}
	value := t.IntervalValue
	if value < 1 {
		value = 1
	}
	unit := string(t.IntervalUnit)
	if value == 1 {
		return "Every " + strings.TrimSuffix(unit, "s")
	}
	return fmt.Sprintf("Every %d %s", value, unit)
}

// Clone returns a deep copy so callers can't mutate repository state
func (t *ScheduledTask) Clone() *ScheduledTask {
	c := *t
	if t.ContentSelection != nil {
		c.ContentSelection = append(ContentSelection(nil), t.ContentSelection...)
	}
	c.StartTime = cloneTime(t.StartTime)
	c.NextRun = cloneTime(t.NextRun)
	return &c
}

// Validate checks the fields the management surface must provide
func (t *ScheduledTask) Validate() error {
	platforms := make([]interface{}, len(Platforms))
	for i, p := range Platforms {
		platforms[i] = p
	}
	return validation.ValidateStruct(t,
		validation.Field(&t.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&t.Platform, validation.Required, validation.In(platforms...)),
		validation.Field(&t.NotifierRef, validation.Required),
		validation.Field(&t.IntervalValue, validation.Required, validation.Min(1), validation.Max(MaxIntervalValue),
			validation.By(t.intervalWithinMax)),
		validation.Field(&t.IntervalUnit, validation.Required,
			validation.In(IntervalMinutes, IntervalHours, IntervalDays, IntervalWeeks)),
		validation.Field(&t.MaxItems, validation.Required, validation.Min(1)),
	)
}

func (t *ScheduledTask) intervalWithinMax(interface{}) error {
	size, ok := t.IntervalUnit.Size()
	if !ok {
		return nil
	}
	if int64(t.IntervalValue) > int64(MaxInterval/size) {
		return fmt.Errorf("must be at most %d %s", int64(MaxInterval/size), t.IntervalUnit)
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
