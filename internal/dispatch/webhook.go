package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"promobeat/internal/promo"
)

// webhookChannel POSTs a JSON payload per occurrence. Any 2xx response
// counts as delivered.
type webhookChannel struct {
	url  string
	http *http.Client
}

type webhookPayload struct {
	ReminderID string    `json:"reminder_id"`
	ActivityID string    `json:"activity_id"`
	BankID     string    `json:"bank_id"`
	Title      string    `json:"title"`
	RemindTime time.Time `json:"remind_time"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

func newWebhookChannel(cfg WebhookConfig) (Channel, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &webhookChannel{
		url:  cfg.URL,
		http: &http.Client{Timeout: timeout},
	}, nil
}

func (c *webhookChannel) Name() string { return "webhook" }

func (c *webhookChannel) Send(ctx context.Context, a promo.Activity, r promo.Reminder) error {
	body, err := json.Marshal(webhookPayload{
		ReminderID: r.ID,
		ActivityID: a.ID,
		BankID:     a.BankID,
		Title:      a.Title,
		RemindTime: r.RemindTime,
		StartTime:  a.StartTime,
		EndTime:    a.EndTime,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
