package engine

import (
	"time"

	"promobeat/internal/promo"
)

// ruleFires reports whether the rule fires at the instant now.
//
// The time-of-day comparison is an exact whole-minute equality test, not
// an at-or-after test: a tick must land inside the matching minute.
// Rules must be validated before calling.
func ruleFires(r promo.ReminderRule, now time.Time) bool {
	if r.None() {
		return false
	}
	if !r.At.MatchesMinute(now) {
		return false
	}
	switch r.Kind {
	case promo.RuleDaily:
		return true
	case promo.RuleWeekly:
		return int(now.Weekday()) == r.Weekday
	case promo.RuleMonthly:
		// Months shorter than MonthDay never fire (no rollover).
		return now.Day() == r.MonthDay
	default:
		return false
	}
}
