package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"promobeat/internal/promo"
)

// memoryStore keeps all records in process. Non-durable; used by tests
// and throwaway dev runs.
type memoryStore struct {
	mu         sync.Mutex
	banks      map[string]promo.Bank
	activities map[string]promo.Activity
	reminders  map[string]promo.Reminder
}

func NewMemory() Store {
	return &memoryStore{
		banks:      map[string]promo.Bank{},
		activities: map[string]promo.Activity{},
		reminders:  map[string]promo.Reminder{},
	}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) ListEligibleActivities(ctx context.Context) ([]promo.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []promo.Activity
	for _, a := range s.activities {
		if a.Status == promo.StatusNotStarted || a.Status == promo.StatusInProgress {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) UpdateActivityStatus(ctx context.Context, id string, status promo.ActivityStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[id]
	if !ok {
		return fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	a.Status = status
	a.UpdatedAt = now
	s.activities[id] = a
	return nil
}

func (s *memoryStore) FindReminderForDay(ctx context.Context, activityID string, day time.Time) (promo.Reminder, bool, error) {
	start, end := dayBounds(day)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reminders {
		if r.ActivityID != activityID {
			continue
		}
		if !r.RemindTime.Before(start) && r.RemindTime.Before(end) {
			return r, true, nil
		}
	}
	return promo.Reminder{}, false, nil
}

func (s *memoryStore) CreateReminder(ctx context.Context, activityID string, remindTime time.Time) (promo.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activities[activityID]; !ok {
		return promo.Reminder{}, fmt.Errorf("activity %s: %w", activityID, ErrNotFound)
	}
	r := promo.Reminder{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		RemindTime: remindTime,
		Status:     promo.ReminderPending,
		CreatedAt:  time.Now(),
	}
	s.reminders[r.ID] = r
	return r, nil
}

func (s *memoryStore) UpdateReminderStatus(ctx context.Context, id string, status promo.ReminderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reminders[id]
	if !ok {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	r.Status = status
	s.reminders[id] = r
	return nil
}

func (s *memoryStore) CreateBank(ctx context.Context, b promo.Bank) (promo.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, exists := s.banks[b.ID]; exists {
		return promo.Bank{}, errors.New("bank id already exists")
	}
	s.banks[b.ID] = b
	return b, nil
}

func (s *memoryStore) ListBanks(ctx context.Context) ([]promo.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]promo.Bank, 0, len(s.banks))
	for _, b := range s.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryStore) CreateActivity(ctx context.Context, a promo.Activity) (promo.Activity, error) {
	if a.EndTime.Before(a.StartTime) {
		return promo.Activity{}, errors.New("activity end time before start time")
	}
	if err := a.Rule.Validate(); err != nil {
		return promo.Activity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.activities[a.ID] = a
	return a, nil
}

func (s *memoryStore) GetActivity(ctx context.Context, id string) (promo.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[id]
	if !ok {
		return promo.Activity{}, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *memoryStore) ListRemindersForActivity(ctx context.Context, activityID string) ([]promo.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []promo.Reminder
	for _, r := range s.reminders {
		if r.ActivityID == activityID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemindTime.Before(out[j].RemindTime) })
	return out, nil
}

func (s *memoryStore) MarkActivityCompleted(ctx context.Context, id string, now time.Time) error {
	return s.UpdateActivityStatus(ctx, id, promo.StatusCompleted, now)
}
