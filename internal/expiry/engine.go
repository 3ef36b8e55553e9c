package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

// Store is the persistence surface for the expiry sweep. Expire must flip the
// subscription to expired and the owning merchant to inactive in one
// transaction, conditionally on the subscription still being active, and
// report whether this caller performed the transition.
type Store interface {
	ListActiveExpiringBefore(ctx context.Context, cutoff time.Time) ([]model.Subscription, error)
	GetMerchant(ctx context.Context, id string) (model.Merchant, error)
	Expire(ctx context.Context, sub model.Subscription, at time.Time) (bool, error)
}

// Notifier sends the merchant-facing expiry notices. Failures are isolated
// per subscription by the engine.
type Notifier interface {
	SubscriptionExpiryEmail(ctx context.Context, merchant model.Merchant, sub model.Subscription) error
	InAppNotice(ctx context.Context, userID, title, message, severity string, data map[string]any) error
}

// Horizon is how far ahead the sweep looks for expiring subscriptions.
const Horizon = 30 * 24 * time.Hour

type Engine struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

func NewEngine(store Store, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{store: store, notifier: notifier, logger: logger}
}

// DaysUntilExpiry is ceil((expiry - now) / 24h). Zero or negative means the
// subscription has passed its expiry date.
func DaysUntilExpiry(expiry, now time.Time) int {
	d := expiry.Sub(now)
	days := int(d / (24 * time.Hour))
	if d > 0 && d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// ShouldNotify implements the tiered warning cadence: daily inside the last
// week, every third day inside two weeks, weekly beyond that. Boundaries are
// <=/> exactly so a given day matches one tier only.
func ShouldNotify(daysUntilExpiry int) bool {
	switch {
	case daysUntilExpiry <= 7:
		return true
	case daysUntilExpiry <= 14:
		return daysUntilExpiry%3 == 0
	default:
		return daysUntilExpiry%7 == 0
	}
}

// Sweep classifies every active subscription expiring within the horizon.
// Past-expiry subscriptions transition to expired with the merchant
// deactivated atomically and get exactly one final notice; the rest get
// warnings on the tier cadence. One subscription's failure is logged and
// skipped, never fatal to the sweep.
func (e *Engine) Sweep(ctx context.Context, now time.Time) error {
	subs, err := e.store.ListActiveExpiringBefore(ctx, now.Add(Horizon))
	if err != nil {
		return err
	}
	e.logger.Info("subscription expiry sweep", "candidates", len(subs))

	for _, sub := range subs {
		if err := e.sweepOne(ctx, sub, now); err != nil {
			e.logger.Error("subscription sweep item failed",
				"subscription_id", sub.ID,
				"merchant_id", sub.MerchantID,
				"err", err,
			)
		}
	}
	return nil
}

func (e *Engine) sweepOne(ctx context.Context, sub model.Subscription, now time.Time) error {
	days := DaysUntilExpiry(sub.ExpiryDate, now)

	if days <= 0 {
		return e.expire(ctx, sub, now)
	}

	if !ShouldNotify(days) {
		return nil
	}

	merchant, err := e.store.GetMerchant(ctx, sub.MerchantID)
	if err != nil {
		// Referenced merchant missing: log and skip, keep the record for
		// investigation.
		return fmt.Errorf("merchant lookup: %w", err)
	}

	if err := e.notifier.SubscriptionExpiryEmail(ctx, merchant, sub); err != nil {
		return fmt.Errorf("expiry warning email: %w", err)
	}
	if err := e.notifier.InAppNotice(ctx, sub.MerchantID,
		"Subscription Expiry Notice",
		fmt.Sprintf("Your subscription expires in %d days. Please renew to avoid service interruption.", days),
		"warning",
		map[string]any{"subscription_id": sub.ID, "days_until_expiry": days},
	); err != nil {
		e.logger.Error("in-app expiry notice failed", "subscription_id", sub.ID, "err", err)
	}
	return nil
}

func (e *Engine) expire(ctx context.Context, sub model.Subscription, now time.Time) error {
	transitioned, err := e.store.Expire(ctx, sub, now)
	if err != nil {
		return fmt.Errorf("expire transition: %w", err)
	}
	if !transitioned {
		// Another sweep already expired it; the final notice went out then.
		return nil
	}

	e.logger.Info("subscription expired, merchant deactivated",
		"subscription_id", sub.ID,
		"merchant_id", sub.MerchantID,
	)

	merchant, err := e.store.GetMerchant(ctx, sub.MerchantID)
	if err != nil {
		return fmt.Errorf("merchant lookup after expire: %w", err)
	}
	if err := e.notifier.SubscriptionExpiryEmail(ctx, merchant, sub); err != nil {
		return fmt.Errorf("final expiry email: %w", err)
	}
	return nil
}
