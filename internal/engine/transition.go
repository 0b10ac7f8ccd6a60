package engine

import (
	"time"

	"promobeat/internal/promo"
)

// nextStatus computes the time-derived status for an activity whose
// stored status is NotStarted or InProgress.
//
// Callers must never pass Completed or Expired activities; the store's
// eligibility filter is the single enforcement point for that.
func nextStatus(a promo.Activity, now time.Time) promo.ActivityStatus {
	if !now.Before(a.EndTime) {
		return promo.StatusExpired
	}
	if !now.Before(a.StartTime) {
		return promo.StatusInProgress
	}
	// Before the window: keep whatever is stored. Transitions only move
	// forward, so a record already marked InProgress whose start was
	// pushed into the future is never demoted back to NotStarted.
	return a.Status
}
