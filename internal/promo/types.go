package promo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRule marks a reminder rule the engine cannot evaluate
// (e.g. a Daily rule without a time of day). The engine treats such a
// rule as non-firing and logs a warning instead of crashing the tick.
var ErrInvalidRule = errors.New("invalid reminder rule")

// ActivityStatus is the lifecycle state of an activity.
//
// NotStarted, InProgress and Expired are derived from wall-clock time by
// the engine. Completed is a manual, sticky override set by a user
// action; the engine never enters or leaves it.
type ActivityStatus int

const (
	StatusNotStarted ActivityStatus = 0
	StatusInProgress ActivityStatus = 1
	StatusCompleted  ActivityStatus = 2
	StatusExpired    ActivityStatus = 3
)

func (s ActivityStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Terminal reports whether the engine may still move this status.
// Completed (manual override) and Expired are terminal from the
// engine's perspective.
func (s ActivityStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// RuleKind tags the recurrence rule variant.
type RuleKind string

const (
	RuleNone    RuleKind = "none"
	RuleDaily   RuleKind = "daily"
	RuleWeekly  RuleKind = "weekly"
	RuleMonthly RuleKind = "monthly"
)

// TimeOfDay is a minute-resolution wall-clock value (no seconds).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" with strict range checks.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MatchesMinute reports whether now, truncated to whole minutes, equals
// this time of day. Seconds and sub-second parts of now are ignored.
func (t TimeOfDay) MatchesMinute(now time.Time) bool {
	return now.Hour() == t.Hour && now.Minute() == t.Minute
}

// ReminderRule is the tagged recurrence variant attached to an activity.
//
// Fields irrelevant to the active kind (e.g. Weekday under RuleMonthly)
// are ignored even if populated.
type ReminderRule struct {
	Kind RuleKind
	// At is the firing time of day. Required for all kinds except RuleNone.
	At TimeOfDay
	// Weekday is 0=Sunday..6=Saturday. Used by RuleWeekly only.
	Weekday int
	// MonthDay is 1..31. Used by RuleMonthly only. Months with fewer
	// days never fire (no rollover).
	MonthDay int
}

// Validate checks the fields the active kind relies on.
// All failures wrap ErrInvalidRule.
func (r ReminderRule) Validate() error {
	switch r.Kind {
	case "", RuleNone:
		return nil
	case RuleDaily:
	case RuleWeekly:
		if r.Weekday < 0 || r.Weekday > 6 {
			return fmt.Errorf("%w: weekday %d out of range 0..6", ErrInvalidRule, r.Weekday)
		}
	case RuleMonthly:
		if r.MonthDay < 1 || r.MonthDay > 31 {
			return fmt.Errorf("%w: month day %d out of range 1..31", ErrInvalidRule, r.MonthDay)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
	}
	if r.At.Hour < 0 || r.At.Hour > 23 || r.At.Minute < 0 || r.At.Minute > 59 {
		return fmt.Errorf("%w: time of day %s out of range", ErrInvalidRule, r.At)
	}
	return nil
}

// None reports whether the rule never fires.
func (r ReminderRule) None() bool { return r.Kind == "" || r.Kind == RuleNone }

// Bank owns activities. Modeled only as far as the store needs it.
type Bank struct {
	ID     string
	Name   string
	Status int
}

// Activity is a bank promotional campaign with a time window and an
// optional recurring reminder rule.
//
// Invariant: EndTime >= StartTime.
type Activity struct {
	ID          string
	BankID      string
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	Status      ActivityStatus
	Rule        ReminderRule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReminderStatus is the delivery state of a reminder occurrence.
type ReminderStatus int

const (
	ReminderPending ReminderStatus = 0
	ReminderSent    ReminderStatus = 1
	ReminderFailed  ReminderStatus = 2
)

func (s ReminderStatus) String() string {
	switch s {
	case ReminderPending:
		return "pending"
	case ReminderSent:
		return "sent"
	case ReminderFailed:
		return "failed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Reminder records a single recognized firing of an activity's rule.
// At most one exists per activity per calendar day.
type Reminder struct {
	ID         string
	ActivityID string
	RemindTime time.Time
	Status     ReminderStatus
	CreatedAt  time.Time
}
