package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"promobeat/internal/promo"
	logx "promobeat/pkg/logx"
)

// Service wraps a Channel with rate limiting and retry.
// It is safe for concurrent use.
type Service struct {
	log     logx.Logger
	cfg     Config
	ch      Channel
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	// Defaults
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}

	ch, err := buildChannel(cfg, log)
	if err != nil {
		return nil, err
	}

	return &Service{
		log: log.With(logx.String("channel", ch.Name())),
		cfg: cfg,
		ch:  ch,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}, nil
}

func buildChannel(cfg Config, log logx.Logger) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Channel)) {
	case "", "log":
		return &logChannel{log: log}, nil
	case "webhook":
		return newWebhookChannel(cfg.Webhook)
	case "telegram":
		return newTelegramChannel(cfg.Telegram)
	default:
		return nil, errors.New("unknown dispatch channel: " + cfg.Channel)
	}
}

// Deliver runs one delivery with rate limiting and bounded retry.
// A nil return means the channel accepted the occurrence; any error
// wraps ErrDelivery.
func (s *Service) Deliver(ctx context.Context, a promo.Activity, r promo.Reminder) error {
	if ctx == nil {
		ctx = context.Background()
	}

	maxAttempts := 1 + s.cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrDelivery, err)
		}

		err := s.ch.Send(ctx, a, r)
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Debug("delivery attempt failed",
			logx.String("activity", a.ID),
			logx.String("reminder", r.ID),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
			logx.Err(err))

		if attempt >= maxAttempts {
			break
		}

		delay := retryDelay(s.cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return fmt.Errorf("%w: %v", ErrDelivery, ctx.Err())
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrDelivery, maxAttempts, lastErr)
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	maxD := cfg.RetryMaxDelay

	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}

// logChannel writes the occurrence to the log. Dev fallback channel.
type logChannel struct {
	log logx.Logger
}

func (c *logChannel) Name() string { return "log" }

func (c *logChannel) Send(ctx context.Context, a promo.Activity, r promo.Reminder) error {
	c.log.Info("reminder due",
		logx.String("activity", a.ID),
		logx.String("title", a.Title),
		logx.Time("remind_time", r.RemindTime))
	return nil
}
