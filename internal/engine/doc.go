// Package engine implements the activity lifecycle and recurring
// reminder sweep.
//
// # Overview
//
// One call to RunTick performs a full pass: fetch eligible activities,
// advance time-derived statuses, evaluate each recurrence rule against
// the tick instant, suppress occurrences already recorded for the
// calendar day, then persist and dispatch the survivors.
//
// The engine keeps no state between ticks. Every tick re-reads current
// truth from the store, which is what makes the per-day existence check
// both necessary and sufficient for at-most-once firing, and what makes
// the process restart-safe.
//
// # Time
//
// All wall-clock comparisons (minute match, day-of-week/month gates,
// calendar-day dedup) happen in one configured IANA zone. Cadence of the
// external trigger only affects how promptly a match is observed, never
// the fired/not-fired decision.
//
// # Concurrency
//
// Ticks are serialized: if a tick is still running when the next trigger
// fires, the new tick is skipped and logged. Within a tick, activities
// are processed sequentially; a failure on one activity never stops the
// rest of the batch.
package engine
