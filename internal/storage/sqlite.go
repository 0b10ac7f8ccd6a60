package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"promobeat/internal/promo"
	logx "promobeat/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const activityCols = `id, bank_id, title, description, start_time, end_time, status,
	rule_kind, rule_at, rule_weekday, rule_month_day, created_at, updated_at`

func (s *sqliteStore) ListEligibleActivities(ctx context.Context) ([]promo.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+activityCols+` FROM activities WHERE status IN (?, ?) ORDER BY created_at`,
		int(promo.StatusNotStarted), int(promo.StatusInProgress),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateActivityStatus(ctx context.Context, id string, status promo.ActivityStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE activities SET status = ?, updated_at = ? WHERE id = ?`,
		int(status), now.UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) FindReminderForDay(ctx context.Context, activityID string, day time.Time) (promo.Reminder, bool, error) {
	start, end := dayBounds(day)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, activity_id, remind_time, status, created_at FROM reminders
		 WHERE activity_id = ? AND remind_time >= ? AND remind_time < ?
		 LIMIT 1`,
		activityID, start.UnixMilli(), end.UnixMilli(),
	)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return promo.Reminder{}, false, nil
	}
	if err != nil {
		return promo.Reminder{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) CreateReminder(ctx context.Context, activityID string, remindTime time.Time) (promo.Reminder, error) {
	r := promo.Reminder{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		RemindTime: remindTime,
		Status:     promo.ReminderPending,
		CreatedAt:  time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, activity_id, remind_time, status, created_at) VALUES(?,?,?,?,?)`,
		r.ID, r.ActivityID, r.RemindTime.UnixMilli(), int(r.Status), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return promo.Reminder{}, err
	}
	return r, nil
}

func (s *sqliteStore) UpdateReminderStatus(ctx context.Context, id string, status promo.ReminderStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = ? WHERE id = ?`, int(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) CreateBank(ctx context.Context, b promo.Bank) (promo.Bank, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO banks(id, name, status) VALUES(?,?,?)`, b.ID, b.Name, b.Status)
	if err != nil {
		return promo.Bank{}, err
	}
	return b, nil
}

func (s *sqliteStore) ListBanks(ctx context.Context) ([]promo.Bank, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, status FROM banks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.Bank
	for rows.Next() {
		var b promo.Bank
		if err := rows.Scan(&b.ID, &b.Name, &b.Status); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateActivity(ctx context.Context, a promo.Activity) (promo.Activity, error) {
	if a.EndTime.Before(a.StartTime) {
		return promo.Activity{}, errors.New("activity end time before start time")
	}
	if err := a.Rule.Validate(); err != nil {
		return promo.Activity{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities(`+activityCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.BankID, a.Title, a.Description,
		a.StartTime.UnixMilli(), a.EndTime.UnixMilli(), int(a.Status),
		string(a.Rule.Kind), ruleAtString(a.Rule), a.Rule.Weekday, a.Rule.MonthDay,
		a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return promo.Activity{}, err
	}
	return a, nil
}

func (s *sqliteStore) GetActivity(ctx context.Context, id string) (promo.Activity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+activityCols+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return promo.Activity{}, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *sqliteStore) ListRemindersForActivity(ctx context.Context, activityID string) ([]promo.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, activity_id, remind_time, status, created_at FROM reminders
		 WHERE activity_id = ? ORDER BY remind_time`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkActivityCompleted(ctx context.Context, id string, now time.Time) error {
	return s.UpdateActivityStatus(ctx, id, promo.StatusCompleted, now)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(sc scanner) (promo.Activity, error) {
	var (
		a                promo.Activity
		startMs, endMs   int64
		createdMs, updMs int64
		status           int
		kind, at         string
	)
	err := sc.Scan(&a.ID, &a.BankID, &a.Title, &a.Description,
		&startMs, &endMs, &status,
		&kind, &at, &a.Rule.Weekday, &a.Rule.MonthDay,
		&createdMs, &updMs)
	if err != nil {
		return promo.Activity{}, err
	}
	a.StartTime = time.UnixMilli(startMs)
	a.EndTime = time.UnixMilli(endMs)
	a.Status = promo.ActivityStatus(status)
	a.Rule.Kind = promo.RuleKind(kind)
	if strings.TrimSpace(at) != "" {
		tod, err := promo.ParseTimeOfDay(at)
		if err != nil {
			return promo.Activity{}, fmt.Errorf("activity %s: stored rule time: %w", a.ID, err)
		}
		a.Rule.At = tod
	}
	a.CreatedAt = time.UnixMilli(createdMs)
	a.UpdatedAt = time.UnixMilli(updMs)
	return a, nil
}

func scanReminder(sc scanner) (promo.Reminder, error) {
	var (
		r                promo.Reminder
		remindMs, crtdMs int64
		status           int
	)
	if err := sc.Scan(&r.ID, &r.ActivityID, &remindMs, &status, &crtdMs); err != nil {
		return promo.Reminder{}, err
	}
	r.RemindTime = time.UnixMilli(remindMs)
	r.Status = promo.ReminderStatus(status)
	r.CreatedAt = time.UnixMilli(crtdMs)
	return r, nil
}

func ruleAtString(r promo.ReminderRule) string {
	if r.None() {
		return ""
	}
	return r.At.String()
}
