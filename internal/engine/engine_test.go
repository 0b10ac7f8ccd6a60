package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"promobeat/internal/promo"
	"promobeat/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type stubDispatcher struct {
	mu    sync.Mutex
	calls []promo.Reminder
	err   error
}

func (d *stubDispatcher) Deliver(ctx context.Context, a promo.Activity, r promo.Reminder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, r)
	return d.err
}

func (d *stubDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// flakyStore wraps a real store and fails selected operations.
type flakyStore struct {
	storage.Store
	failStatusUpdate bool
	failCreate       bool
}

func (s *flakyStore) UpdateActivityStatus(ctx context.Context, id string, status promo.ActivityStatus, now time.Time) error {
	if s.failStatusUpdate {
		return errors.New("boom")
	}
	return s.Store.UpdateActivityStatus(ctx, id, status, now)
}

func (s *flakyStore) CreateReminder(ctx context.Context, activityID string, remindTime time.Time) (promo.Reminder, error) {
	if s.failCreate {
		return promo.Reminder{}, errors.New("boom")
	}
	return s.Store.CreateReminder(ctx, activityID, remindTime)
}

func newTestEngine(t *testing.T, store storage.Store, disp *stubDispatcher) *Engine {
	t.Helper()
	eng, err := New(Config{Timezone: "UTC"}, Deps{
		Store:      store,
		Dispatcher: disp,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func mustCreate(t *testing.T, store storage.Store, a promo.Activity) promo.Activity {
	t.Helper()
	out, err := store.CreateActivity(context.Background(), a)
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return out
}

func TestRunTickDailyReminderOncePerDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	disp := &stubDispatcher{}
	eng := newTestEngine(t, store, disp)

	a := mustCreate(t, store, promo.Activity{
		Title:     "points redemption",
		StartTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusInProgress,
		Rule:      promo.ReminderRule{Kind: promo.RuleDaily, At: promo.TimeOfDay{Hour: 8}},
	})

	// 2024-06-01 is a Saturday; two ticks inside the matching minute.
	first := time.Date(2024, 6, 1, 8, 0, 5, 0, time.UTC)
	if err := eng.RunTick(ctx, first); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if err := eng.RunTick(ctx, first.Add(30*time.Second)); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	if got := disp.count(); got != 1 {
		t.Fatalf("deliveries = %d, want 1 (same-day dedup)", got)
	}
	rs, err := store.ListRemindersForActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 {
		t.Fatalf("reminders = %d, want 1", len(rs))
	}
	if rs[0].Status != promo.ReminderSent {
		t.Fatalf("reminder status = %v, want sent", rs[0].Status)
	}

	// Next day, same minute: fires again.
	if err := eng.RunTick(ctx, first.AddDate(0, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if got := disp.count(); got != 2 {
		t.Fatalf("deliveries = %d, want 2 after day rollover", got)
	}
}

func TestRunTickWeeklyDoubleTickSingleReminder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	disp := &stubDispatcher{}
	eng := newTestEngine(t, store, disp)

	a := mustCreate(t, store, promo.Activity{
		Title:     "saturday perks",
		StartTime: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusInProgress,
		Rule:      promo.ReminderRule{Kind: promo.RuleWeekly, Weekday: 6, At: promo.TimeOfDay{Hour: 8}},
	})

	// 2024-06-01 is a Saturday; two back-to-back ticks in the minute.
	sat := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for _, now := range []time.Time{sat, sat.Add(10 * time.Second)} {
		if err := eng.RunTick(ctx, now); err != nil {
			t.Fatal(err)
		}
	}
	rs, err := store.ListRemindersForActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 {
		t.Fatalf("reminders = %d, want exactly 1", len(rs))
	}

	// Same time on Sunday: the day gate holds.
	if err := eng.RunTick(ctx, sat.AddDate(0, 0, 1)); err != nil {
		t.Fatal(err)
	}
	if disp.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 (Sunday must not fire)", disp.count())
	}
}

func TestRunTickOutsideMatchingMinute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	disp := &stubDispatcher{}
	eng := newTestEngine(t, store, disp)

	mustCreate(t, store, promo.Activity{
		Title:     "daily",
		StartTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusInProgress,
		Rule:      promo.ReminderRule{Kind: promo.RuleDaily, At: promo.TimeOfDay{Hour: 9, Minute: 45}},
	})

	for _, now := range []time.Time{
		time.Date(2024, 6, 1, 9, 44, 59, 0, time.UTC),
		time.Date(2024, 6, 1, 9, 46, 0, 0, time.UTC),
	} {
		if err := eng.RunTick(ctx, now); err != nil {
			t.Fatal(err)
		}
	}
	if got := disp.count(); got != 0 {
		t.Fatalf("deliveries = %d, want 0 outside the matching minute", got)
	}
}

func TestRunTickStatusTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	disp := &stubDispatcher{}
	eng := newTestEngine(t, store, disp)

	a := mustCreate(t, store, promo.Activity{
		Title:     "window",
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusNotStarted,
		Rule:      promo.ReminderRule{Kind: promo.RuleNone},
	})

	// Inside the window: NotStarted -> InProgress.
	if err := eng.RunTick(ctx, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != promo.StatusInProgress {
		t.Fatalf("status = %v, want in_progress", got.Status)
	}

	// At the end instant: InProgress -> Expired.
	if err := eng.RunTick(ctx, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != promo.StatusExpired {
		t.Fatalf("status = %v, want expired", got.Status)
	}

	// Expired is terminal: later ticks leave it alone and never remind.
	if err := eng.RunTick(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != promo.StatusExpired {
		t.Fatalf("status = %v, want expired to stick", got.Status)
	}
}

func TestRunTickSkipsLateStartedExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	disp := &stubDispatcher{}
	eng := newTestEngine(t, store, disp)

	// Daemon was down across the whole window: NotStarted jumps straight
	// to Expired on the first tick after the end time.
	a := mustCreate(t, store, promo.Activity{
		Title:     "missed window",
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusNotStarted,
		Rule:      promo.ReminderRule{Kind: promo.RuleNone},
	})

	if err := eng.RunTick(ctx, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != promo.StatusExpired {
		t.Fatalf("status = %v, want expired", got.Status)
	}
}

func TestRunTickCompletedIsSticky(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	disp := &stubDispatcher{}
	eng := newTestEngine(t, store, disp)

	a := mustCreate(t, store, promo.Activity{
		Title:     "done",
		StartTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusInProgress,
		Rule:      promo.ReminderRule{Kind: promo.RuleDaily, At: promo.TimeOfDay{Hour: 8}},
	})
	if err := store.MarkActivityCompleted(ctx, a.ID, time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}

	// Ticks inside the window and after it: neither moves the status nor reminds.
	for _, now := range []time.Time{
		time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 8, 1, 8, 0, 0, 0, time.UTC),
	} {
		if err := eng.RunTick(ctx, now); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != promo.StatusCompleted {
		t.Fatalf("status = %v, want completed to stick", got.Status)
	}
	if disp.count() != 0 {
		t.Fatalf("deliveries = %d, want 0 for a completed activity", disp.count())
	}
}

func TestRunTickDeliveryFailureRecordsFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	disp := &stubDispatcher{err: errors.New("channel down")}
	eng := newTestEngine(t, store, disp)

	a := mustCreate(t, store, promo.Activity{
		Title:     "flaky channel",
		StartTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusInProgress,
		Rule:      promo.ReminderRule{Kind: promo.RuleDaily, At: promo.TimeOfDay{Hour: 8}},
	})

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if err := eng.RunTick(ctx, now); err != nil {
		t.Fatal(err)
	}
	rs, err := store.ListRemindersForActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 || rs[0].Status != promo.ReminderFailed {
		t.Fatalf("reminders = %+v, want one failed record", rs)
	}

	// The failed occurrence still counts for dedup: no redelivery today.
	if err := eng.RunTick(ctx, now.Add(30*time.Second)); err != nil {
		t.Fatal(err)
	}
	if disp.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 (failed reminder suppresses retries today)", disp.count())
	}
}

func TestRunTickErrorIsolationAcrossActivities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	disp := &stubDispatcher{}

	// The stale activity needs a NotStarted -> InProgress transition that
	// will fail to persist; its processing must abort without touching
	// the healthy activity's reminder.
	stale := mustCreate(t, mem, promo.Activity{
		Title:     "stale",
		StartTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusNotStarted,
		Rule:      promo.ReminderRule{Kind: promo.RuleDaily, At: promo.TimeOfDay{Hour: 8}},
	})
	good := mustCreate(t, mem, promo.Activity{
		Title:     "good",
		StartTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusInProgress,
		Rule:      promo.ReminderRule{Kind: promo.RuleDaily, At: promo.TimeOfDay{Hour: 8}},
	})

	store := &flakyStore{Store: mem, failStatusUpdate: true}
	eng := newTestEngine(t, store, disp)

	now := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	if err := eng.RunTick(ctx, now); err != nil {
		t.Fatalf("tick must not fail on per-activity errors: %v", err)
	}

	rs, err := mem.ListRemindersForActivity(ctx, stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 0 {
		t.Fatalf("stale activity reminders = %d, want 0 after failed transition", len(rs))
	}
	rs, err = mem.ListRemindersForActivity(ctx, good.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 {
		t.Fatalf("good activity reminders = %d, want 1", len(rs))
	}
}

func TestRunTickReminderCreateFailureRetriesNextTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	disp := &stubDispatcher{}
	store := &flakyStore{Store: mem, failCreate: true}
	eng := newTestEngine(t, store, disp)

	a := mustCreate(t, mem, promo.Activity{
		Title:     "retry",
		StartTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusInProgress,
		Rule:      promo.ReminderRule{Kind: promo.RuleDaily, At: promo.TimeOfDay{Hour: 8}},
	})

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if err := eng.RunTick(ctx, now); err != nil {
		t.Fatal(err)
	}
	if disp.count() != 0 {
		t.Fatal("nothing may be delivered when the reminder record was not persisted")
	}

	// Persistence recovers inside the same minute: the reminder goes out.
	store.failCreate = false
	if err := eng.RunTick(ctx, now.Add(20*time.Second)); err != nil {
		t.Fatal(err)
	}
	if disp.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 after store recovery", disp.count())
	}
	rs, err := mem.ListRemindersForActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 {
		t.Fatalf("reminders = %d, want 1", len(rs))
	}
}

func TestTickUsesClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	disp := &stubDispatcher{}
	clk := &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}

	eng, err := New(Config{Timezone: "UTC"}, Deps{
		Store:      store,
		Dispatcher: disp,
		Clock:      clk,
	})
	if err != nil {
		t.Fatal(err)
	}

	mustCreate(t, store, promo.Activity{
		Title:     "clocked",
		StartTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Status:    promo.StatusInProgress,
		Rule:      promo.ReminderRule{Kind: promo.RuleDaily, At: promo.TimeOfDay{Hour: 8}},
	})

	if err := eng.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if disp.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 at the clock's instant", disp.count())
	}

	clk.Set(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	if err := eng.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	if disp.count() != 1 {
		t.Fatal("no delivery expected once the clock moved past the matching minute")
	}
}

func TestNewRejectsMissingDeps(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, Deps{Dispatcher: &stubDispatcher{}}); err == nil {
		t.Fatal("expected error without a store")
	}
	if _, err := New(Config{}, Deps{Store: storage.NewMemory()}); err == nil {
		t.Fatal("expected error without a dispatcher")
	}
	if _, err := New(Config{Timezone: "Not/AZone"}, Deps{Store: storage.NewMemory(), Dispatcher: &stubDispatcher{}}); err == nil {
		t.Fatal("expected error for an unknown timezone")
	}
}
