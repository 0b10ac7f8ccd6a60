package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"promobeat/internal/dispatch"
	"promobeat/internal/eventbus"
	"promobeat/internal/promo"
	"promobeat/internal/storage"
	logx "promobeat/pkg/logx"
)

// Config controls the engine.
type Config struct {
	// Timezone is the IANA zone used for minute matching and the
	// calendar-day dedup window (e.g. "Asia/Shanghai").
	// Empty means the process-local zone.
	Timezone string
}

// Deps are the engine's collaborators. Store and Dispatcher are
// required; Bus and Clock fall back to a nop bus and the system clock.
type Deps struct {
	Store      storage.Store
	Dispatcher dispatch.Dispatcher
	Bus        eventbus.Bus
	Clock      Clock
	Log        logx.Logger
}

// StatusEvent is published on the bus when a lifecycle transition is persisted.
type StatusEvent struct {
	ActivityID string               `json:"activity_id"`
	From       promo.ActivityStatus `json:"from"`
	To         promo.ActivityStatus `json:"to"`
	At         time.Time            `json:"at"`
}

// ReminderEvent is published for reminder lifecycle events.
type ReminderEvent struct {
	ReminderID string    `json:"reminder_id,omitempty"`
	ActivityID string    `json:"activity_id"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

type Engine struct {
	log   logx.Logger
	store storage.Store
	disp  dispatch.Dispatcher
	bus   eventbus.Bus
	clock Clock
	loc   *time.Location

	// tickMu serializes ticks. An overlapping trigger firing is skipped,
	// never queued, so the dedup guard's view of "today" stays consistent.
	tickMu sync.Mutex
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("engine: dispatcher is required")
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("engine: invalid timezone %q: %w", tz, err)
		}
		loc = l
	}

	return &Engine{
		log:   log,
		store: deps.Store,
		disp:  deps.Dispatcher,
		bus:   deps.Bus,
		clock: clock,
		loc:   loc,
	}, nil
}

// Location returns the zone all wall-clock decisions are made in.
func (e *Engine) Location() *time.Location { return e.loc }

// Tick runs one sweep at the engine clock's current instant.
func (e *Engine) Tick(ctx context.Context) error {
	return e.RunTick(ctx, e.clock.Now())
}

// RunTick executes one full sweep at the instant now.
//
// A persistence failure fetching the batch is returned; everything past
// the fetch is recovered per activity so one bad record never stops the
// rest of the batch or subsequent ticks.
func (e *Engine) RunTick(ctx context.Context, now time.Time) error {
	if !e.tickMu.TryLock() {
		e.log.Warn("tick still running, skipping overlapping tick", logx.Time("now", now))
		return nil
	}
	defer e.tickMu.Unlock()

	now = now.In(e.loc)

	activities, err := e.store.ListEligibleActivities(ctx)
	if err != nil {
		return fmt.Errorf("list eligible activities: %w", err)
	}
	e.log.Debug("tick started", logx.Time("now", now), logx.Int("eligible", len(activities)))

	for i := range activities {
		e.processOne(ctx, activities[i], now)
	}
	return nil
}

// processOne handles a single activity: status transition, recurrence
// match, dedup, persist, dispatch. All failures are local.
func (e *Engine) processOne(ctx context.Context, a promo.Activity, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic processing activity",
				logx.String("activity", a.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	log := e.log.With(logx.String("activity", a.ID))

	// 1) Status transition.
	if next := nextStatus(a, now); next != a.Status {
		if err := e.store.UpdateActivityStatus(ctx, a.ID, next, now); err != nil {
			log.Warn("status update failed, will retry next tick", logx.Err(err))
			return
		}
		e.publish(eventbus.TypeActivityStatus, now, StatusEvent{ActivityID: a.ID, From: a.Status, To: next, At: now})
		log.Info("activity status changed",
			logx.String("from", a.Status.String()),
			logx.String("to", next.String()))
		a.Status = next
	}
	if a.Status.Terminal() {
		return
	}

	// 2) Recurrence match.
	if a.Rule.None() {
		return
	}
	if err := a.Rule.Validate(); err != nil {
		// Treated as a non-firing rule for this tick.
		log.Warn("reminder rule invalid, skipping", logx.Err(err))
		return
	}
	if !ruleFires(a.Rule, now) {
		return
	}

	// 3) Dedup guard.
	exists, err := e.alreadyRemindedToday(ctx, a.ID, now)
	if err != nil {
		log.Warn("reminder lookup failed, will retry next tick", logx.Err(err))
		return
	}
	if exists {
		e.publish(eventbus.TypeReminderSuppressed, now, ReminderEvent{ActivityID: a.ID, At: now})
		log.Debug("reminder already recorded today, suppressing")
		return
	}

	// 4) Persist, then dispatch.
	r, err := e.store.CreateReminder(ctx, a.ID, now)
	if err != nil {
		log.Warn("reminder create failed, will retry next tick", logx.Err(err))
		return
	}
	e.publish(eventbus.TypeReminderCreated, now, ReminderEvent{ReminderID: r.ID, ActivityID: a.ID, At: now})

	status := promo.ReminderSent
	if err := e.disp.Deliver(ctx, a, r); err != nil {
		status = promo.ReminderFailed
		e.publish(eventbus.TypeReminderFailed, now, ReminderEvent{ReminderID: r.ID, ActivityID: a.ID, At: now, Error: err.Error()})
		log.Warn("reminder delivery failed", logx.String("reminder", r.ID), logx.Err(err))
	} else {
		e.publish(eventbus.TypeReminderSent, now, ReminderEvent{ReminderID: r.ID, ActivityID: a.ID, At: now})
		log.Info("reminder sent", logx.String("reminder", r.ID))
	}

	if err := e.store.UpdateReminderStatus(ctx, r.ID, status); err != nil {
		log.Warn("reminder status update failed",
			logx.String("reminder", r.ID),
			logx.String("status", status.String()),
			logx.Err(err))
	}
}

func (e *Engine) publish(typ string, at time.Time, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: data})
}
