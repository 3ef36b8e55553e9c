package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/internal/outbox"
	"github.com/zarya-platform/zarya-backend/libs/db"
)

type SubscriptionsRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewSubscriptionsRepository(pool *db.Pool, outboxRepo *outbox.Repository) *SubscriptionsRepository {
	return &SubscriptionsRepository{pool: pool, outbox: outboxRepo}
}

const subscriptionColumns = `
	id, merchant_id, plan, amount, currency, status,
	start_date, expiry_date, expired_at, cancelled_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.ID,
		&s.MerchantID,
		&s.Plan,
		&s.Amount,
		&s.Currency,
		&s.Status,
		&s.StartDate,
		&s.ExpiryDate,
		&s.ExpiredAt,
		&s.CancelledAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (r *SubscriptionsRepository) Create(ctx context.Context, s *model.Subscription) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO subscriptions
			(id, merchant_id, plan, amount, currency, status, start_date, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, s.ID, s.MerchantID, s.Plan, s.Amount, s.Currency, s.Status, s.StartDate, s.ExpiryDate).
		Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *SubscriptionsRepository) GetByID(ctx context.Context, id string) (model.Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = $1
	`, id))
}

// GetActiveByMerchant returns the merchant's current active subscription; a
// merchant has at most one at a time.
func (r *SubscriptionsRepository) GetActiveByMerchant(ctx context.Context, merchantID string) (model.Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE merchant_id = $1 AND status = 'active'
		ORDER BY expiry_date DESC
		LIMIT 1
	`, merchantID))
}

func (r *SubscriptionsRepository) ListByMerchant(ctx context.Context, merchantID string) ([]model.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE merchant_id = $1
		ORDER BY created_at DESC
	`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *SubscriptionsRepository) ListActiveExpiringBefore(ctx context.Context, cutoff time.Time) ([]model.Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = 'active' AND expiry_date <= $1
		ORDER BY expiry_date ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]model.Subscription, error) {
	var out []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Expire transitions the subscription to expired and deactivates the owning
// merchant in one transaction, conditionally on the subscription still
// being active. The emitted event rides the same transaction. Returns false
// when another sweep already made the transition.
func (r *SubscriptionsRepository) Expire(ctx context.Context, sub model.Subscription, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'expired', expired_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, sub.ID, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE merchants
		SET is_active = false, deactivated_at = $2, updated_at = now()
		WHERE id = $1
	`, sub.MerchantID, at); err != nil {
		return false, err
	}

	evt, err := outbox.NewEvent("subscription", sub.ID, outbox.EventSubscriptionExpired, map[string]any{
		"subscription_id": sub.ID,
		"merchant_id":     sub.MerchantID,
		"plan":            sub.Plan,
		"expired_at":      at,
	})
	if err != nil {
		return false, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Renew extends an active or expired subscription and reactivates the
// merchant; the merchant may have been deactivated by an earlier expiry.
func (r *SubscriptionsRepository) Renew(ctx context.Context, id string, newExpiry time.Time) (model.Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Subscription{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub, err := scanSubscription(tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'active', expiry_date = $2, expired_at = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('active', 'expired', 'payment_failed')
		RETURNING `+subscriptionColumns+`
	`, id, newExpiry))
	if err != nil {
		return model.Subscription{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE merchants
		SET is_active = true, deactivated_at = NULL, updated_at = now()
		WHERE id = $1
	`, sub.MerchantID); err != nil {
		return model.Subscription{}, err
	}

	evt, err := outbox.NewEvent("subscription", sub.ID, outbox.EventSubscriptionRenewed, map[string]any{
		"subscription_id": sub.ID,
		"merchant_id":     sub.MerchantID,
		"expiry_date":     newExpiry,
	})
	if err != nil {
		return model.Subscription{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Subscription{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

// MarkPaymentFailed flags an active subscription after a failed renewal
// charge; service stays up until the expiry sweep acts on the date.
func (r *SubscriptionsRepository) MarkPaymentFailed(ctx context.Context, id string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var merchantID string
	err = tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'payment_failed', updated_at = now()
		WHERE id = $1 AND status = 'active'
		RETURNING merchant_id
	`, id).Scan(&merchantID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	evt, err := outbox.NewEvent("subscription", id, outbox.EventPaymentFailed, map[string]any{
		"subscription_id": id,
		"merchant_id":     merchantID,
	})
	if err != nil {
		return false, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// cancellableStatuses are the states an explicit cancellation may act on.
// Expired subscriptions stay cancellable: a merchant who lapsed can still
// close the account instead of renewing. Only cancelled is terminal.
var cancellableStatuses = []string{
	model.SubscriptionActive,
	model.SubscriptionExpired,
	model.SubscriptionPaymentFailed,
}

func (r *SubscriptionsRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled', cancelled_at = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, id, at, cancellableStatuses)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevenueStats aggregates active subscription revenue for the admin
// dashboard.
type RevenueStats struct {
	ActiveCount   int64
	ExpiredCount  int64
	MonthlyAmount float64
}

func (r *SubscriptionsRepository) Stats(ctx context.Context) (RevenueStats, error) {
	var st RevenueStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'active'),
			count(*) FILTER (WHERE status = 'expired'),
			COALESCE(sum(amount) FILTER (WHERE status = 'active'), 0)
		FROM subscriptions
	`).Scan(&st.ActiveCount, &st.ExpiredCount, &st.MonthlyAmount)
	return st, err
}
