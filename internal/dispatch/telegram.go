package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"promobeat/internal/promo"
)

// telegramChannel pushes the occurrence as a message to a fixed chat.
// The bot is send-only; no poller is started.
type telegramChannel struct {
	bot    *tele.Bot
	chatID int64
}

func newTelegramChannel(cfg TelegramConfig) (Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is not set")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &telegramChannel{bot: b, chatID: cfg.ChatID}, nil
}

func (c *telegramChannel) Name() string { return "telegram" }

func (c *telegramChannel) Send(ctx context.Context, a promo.Activity, r promo.Reminder) error {
	// telebot sends are not context-aware; bail out early if already canceled.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	text := formatTelegramText(a, r)
	_, err := c.bot.Send(tele.ChatID(c.chatID), text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

func formatTelegramText(a promo.Activity, r promo.Reminder) string {
	var b strings.Builder
	b.WriteString("🔔 ")
	b.WriteString(a.Title)
	if desc := strings.TrimSpace(a.Description); desc != "" {
		b.WriteString("\n")
		b.WriteString(desc)
	}
	fmt.Fprintf(&b, "\nruns %s to %s",
		a.StartTime.In(r.RemindTime.Location()).Format("2006-01-02"),
		a.EndTime.In(r.RemindTime.Location()).Format("2006-01-02"))
	fmt.Fprintf(&b, "\nreminded at %s", r.RemindTime.Format(time.Kitchen))
	return b.String()
}
