package engine

import (
	"context"
	"time"
)

// alreadyRemindedToday is the dedup guard: it reports whether a reminder
// for this activity already exists on now's calendar day.
//
// The check tolerates the matcher firing more than once inside the same
// matching minute (overlap-skipped-but-retriggered ticks, sub-minute
// cadence in fast mode, slow persistence causing re-evaluation) without
// double-notifying.
func (e *Engine) alreadyRemindedToday(ctx context.Context, activityID string, now time.Time) (bool, error) {
	_, ok, err := e.store.FindReminderForDay(ctx, activityID, now)
	if err != nil {
		return false, err
	}
	return ok, nil
}
