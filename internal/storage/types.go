package storage

import (
	"context"
	"errors"
	"time"

	"promobeat/internal/promo"
)

var ErrNotFound = errors.New("record not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process store (non-durable)
//
// An empty Driver defaults to "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API consumed by the engine and the CRUD layer.
//
// The engine only reads and writes through the first five methods; the
// rest back the user-facing record surface.
type Store interface {
	// ListEligibleActivities returns activities with status NotStarted or
	// InProgress. Completed and Expired records are never returned; this
	// filter is the single enforcement point keeping terminal states frozen.
	ListEligibleActivities(ctx context.Context) ([]promo.Activity, error)

	// UpdateActivityStatus persists a new status and updated-at timestamp.
	UpdateActivityStatus(ctx context.Context, id string, status promo.ActivityStatus, now time.Time) error

	// FindReminderForDay reports whether a reminder for the activity exists
	// whose remind time falls on the same calendar day as day, in day's
	// location. ok is false when none exists.
	FindReminderForDay(ctx context.Context, activityID string, day time.Time) (r promo.Reminder, ok bool, err error)

	// CreateReminder inserts a new Pending reminder occurrence.
	CreateReminder(ctx context.Context, activityID string, remindTime time.Time) (promo.Reminder, error)

	// UpdateReminderStatus records the dispatch outcome.
	UpdateReminderStatus(ctx context.Context, id string, status promo.ReminderStatus) error

	CreateBank(ctx context.Context, b promo.Bank) (promo.Bank, error)
	ListBanks(ctx context.Context) ([]promo.Bank, error)

	CreateActivity(ctx context.Context, a promo.Activity) (promo.Activity, error)
	GetActivity(ctx context.Context, id string) (promo.Activity, error)

	// ListRemindersForActivity returns all occurrences for an activity
	// ordered by remind time ascending.
	ListRemindersForActivity(ctx context.Context, activityID string) ([]promo.Reminder, error)

	// MarkActivityCompleted applies the manual sticky override.
	MarkActivityCompleted(ctx context.Context, id string, now time.Time) error

	Close() error
}

// dayBounds returns [start, end) of the calendar day containing t,
// in t's location.
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
