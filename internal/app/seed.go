package app

import (
	"context"
	"fmt"
	"time"

	"promobeat/internal/promo"
	"promobeat/internal/storage"
)

// Seed fills an empty store with a few banks and sample activities so a
// fresh dev setup has something to tick over.
func Seed(ctx context.Context, store storage.Store, now time.Time) error {
	banks, err := store.ListBanks(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if len(banks) > 0 {
		return fmt.Errorf("seed: store already has %d banks", len(banks))
	}

	icbc, err := store.CreateBank(ctx, promo.Bank{Name: "ICBC", Status: 1})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	ccb, err := store.CreateBank(ctx, promo.Bank{Name: "CCB", Status: 1})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	abc, err := store.CreateBank(ctx, promo.Bank{Name: "ABC", Status: 1})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	seeds := []promo.Activity{
		{
			BankID:      icbc.ID,
			Title:       "Credit card points redemption",
			Description: "Daily points flash redemption, opens at 10:00",
			StartTime:   today,
			EndTime:     today.AddDate(0, 0, 30),
			Status:      promo.StatusInProgress,
			Rule: promo.ReminderRule{
				Kind: promo.RuleDaily,
				At:   promo.TimeOfDay{Hour: 9, Minute: 55},
			},
		},
		{
			BankID:      ccb.ID,
			Title:       "Dragon Card Saturday",
			Description: "Cardholder perks every Saturday",
			StartTime:   today,
			EndTime:     today.AddDate(0, 3, 0),
			Status:      promo.StatusInProgress,
			Rule: promo.ReminderRule{
				Kind:    promo.RuleWeekly,
				Weekday: 6,
				At:      promo.TimeOfDay{Hour: 8, Minute: 0},
			},
		},
		{
			BankID:      abc.ID,
			Title:       "Month-end wealth products",
			Description: "Discounted wealth products on the 25th",
			StartTime:   today.AddDate(0, 1, 0),
			EndTime:     today.AddDate(0, 2, 0),
			Status:      promo.StatusNotStarted,
			Rule: promo.ReminderRule{
				Kind:     promo.RuleMonthly,
				MonthDay: 25,
				At:       promo.TimeOfDay{Hour: 9, Minute: 0},
			},
		},
	}
	for _, a := range seeds {
		if _, err := store.CreateActivity(ctx, a); err != nil {
			return fmt.Errorf("seed %q: %w", a.Title, err)
		}
	}
	return nil
}
