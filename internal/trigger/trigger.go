// Package trigger fires the engine's tick on a fixed cadence.
//
// Cadence only affects how promptly a match is observed; the fired/
// not-fired decision belongs entirely to the engine. Production runs at
// 60s; fast-iteration setups can shorten the interval (e.g. 10s).
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "promobeat/pkg/logx"
)

// Config controls the tick trigger.
type Config struct {
	Enabled  bool
	Interval time.Duration // 0 means 60s
	Timezone string        // IANA TZ for the cron location
}

// Service owns the cron instance that periodically invokes the tick job.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	job func(ctx context.Context) error

	parser cron.Parser
	c      *cron.Cron

	// started tracks the Start/Stop lifecycle independently of whether a
	// cron is currently running, so a disabled trigger can be enabled
	// again by a config reload.
	started bool

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, job func(ctx context.Context) error, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		job: job,
		log: log,
		// SecondOptional allows sub-minute "@every" specs in fast mode.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Interval returns the effective tick cadence.
func (s *Service) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return effectiveInterval(s.cfg)
}

func effectiveInterval(cfg Config) time.Duration {
	if cfg.Interval <= 0 {
		return time.Minute
	}
	if cfg.Interval < time.Second {
		return time.Second
	}
	return cfg.Interval
}

func tickSpec(cfg Config) string {
	return fmt.Sprintf("@every %s", effectiveInterval(cfg).String())
}

// Start begins triggering ticks. Idempotent. When the config disables
// the trigger, Start still arms the run context so a later Apply with
// Enabled set can bring the schedule up without a restart.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.started = true

	if !s.cfg.Enabled {
		s.log.Info("trigger disabled by config")
		return nil
	}

	loc := s.loadLocationLocked()
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(tickSpec(s.cfg), s.runTick); err != nil {
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
		s.started = false
		return fmt.Errorf("register tick schedule: %w", err)
	}
	s.c = c
	c.Start()
	s.log.Info("trigger started",
		logx.Duration("interval", effectiveInterval(s.cfg)),
		logx.String("tz", loc.String()))
	return nil
}

// Stop halts the cron and waits for an in-flight tick callback to return.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.started = false
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("trigger stopped")
}

// Apply updates config at runtime. Enabling starts the schedule,
// disabling stops it, and a changed interval or timezone restarts the
// cron with the new schedule.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg

	if !s.started {
		return
	}
	if !cfg.Enabled {
		if s.c == nil {
			return
		}
		c := s.c
		s.c = nil
		s.mu.Unlock()
		<-c.Stop().Done()
		s.mu.Lock()
		s.log.Info("trigger disabled via config reload")
		return
	}
	if s.c == nil {
		s.log.Info("trigger enabled via config reload")
		s.restartLocked()
		return
	}
	if effectiveInterval(old) != effectiveInterval(cfg) ||
		strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone) {
		s.restartLocked()
	}
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(tickSpec(s.cfg), s.runTick); err != nil {
		s.log.Error("re-register tick schedule failed", logx.Err(err))
		return
	}
	s.c = c
	c.Start()
	s.log.Info("trigger restarted",
		logx.Duration("interval", effectiveInterval(s.cfg)),
		logx.String("tz", loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) runTick() {
	s.mu.Lock()
	ctx := s.runCtx
	job := s.job
	s.mu.Unlock()
	if ctx == nil || job == nil {
		return
	}

	start := time.Now()
	err := job(ctx)
	dur := time.Since(start)
	switch {
	case err == nil && dur >= 750*time.Millisecond:
		s.log.Info("tick completed", logx.Duration("dur", dur))
	case err == nil:
		s.log.Debug("tick completed", logx.Duration("dur", dur))
	case errors.Is(err, context.Canceled):
		// shutdown in progress
	default:
		s.log.Warn("tick failed", logx.Err(err), logx.Duration("dur", dur))
	}
}
