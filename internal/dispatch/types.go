package dispatch

import (
	"context"
	"errors"
	"time"

	"promobeat/internal/promo"
)

// ErrDelivery marks a delivery failure after all retries were exhausted.
var ErrDelivery = errors.New("delivery failed")

// Dispatcher attempts delivery of one reminder occurrence.
type Dispatcher interface {
	Deliver(ctx context.Context, a promo.Activity, r promo.Reminder) error
}

// Channel is a single outbound transport. Channels do one attempt;
// retry and rate limiting live in Service.
type Channel interface {
	Name() string
	Send(ctx context.Context, a promo.Activity, r promo.Reminder) error
}

// Config controls the dispatch service.
//
// Channel values: "log", "webhook", "telegram".
type Config struct {
	Channel       string
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	Webhook  WebhookConfig
	Telegram TelegramConfig
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}
