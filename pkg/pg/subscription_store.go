package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/subscription"
)

// SubscriptionStore is the PostgreSQL implementation of subscription.Store.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = `
	id, user_id, plan_id,
	price_amount, price_currency, price_type, interval_unit, interval_count,
	status, trial_ends_at, cycle_started_at, cycle_ends_at,
	cancel_at_period_end, canceled_at,
	provider_slug, provider_subscription_id, provider_customer_id, provider_status,
	local_managed, ends_at, discount_code,
	created_at, updated_at`

func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+subscriptionColumns+` FROM billing_subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

func (s *SubscriptionStore) GetByProviderRef(ctx context.Context, providerSlug, providerSubscriptionID string) (*subscription.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, subscription.ErrSubscriptionNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT`+subscriptionColumns+` FROM billing_subscriptions
		WHERE provider_slug = $1 AND provider_subscription_id = $2`,
		providerSlug, providerSubscriptionID)
	return scanSubscription(row)
}

func (s *SubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			price_amount = EXCLUDED.price_amount,
			price_currency = EXCLUDED.price_currency,
			price_type = EXCLUDED.price_type,
			interval_unit = EXCLUDED.interval_unit,
			interval_count = EXCLUDED.interval_count,
			status = EXCLUDED.status,
			trial_ends_at = EXCLUDED.trial_ends_at,
			cycle_started_at = EXCLUDED.cycle_started_at,
			cycle_ends_at = EXCLUDED.cycle_ends_at,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			provider_slug = EXCLUDED.provider_slug,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			provider_customer_id = EXCLUDED.provider_customer_id,
			provider_status = EXCLUDED.provider_status,
			local_managed = EXCLUDED.local_managed,
			ends_at = EXCLUDED.ends_at,
			discount_code = EXCLUDED.discount_code,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.PlanID,
		sub.Price.Amount, sub.Price.Currency, string(sub.PriceType),
		string(sub.Interval.Unit), sub.Interval.Count,
		string(sub.Status), sub.TrialEndsAt, sub.CycleStartedAt, sub.CycleEndsAt,
		sub.CancelAtPeriodEnd, sub.CanceledAt,
		sub.ProviderSlug, sub.ProviderSubscriptionID, sub.ProviderCustomerID, sub.ProviderStatus,
		sub.LocalManaged, sub.EndsAt, sub.DiscountCode,
		sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (s *SubscriptionStore) HasActiveLocal(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM billing_subscriptions
			WHERE user_id = $1 AND local_managed AND status NOT IN ('canceled', 'inactive')
		)`, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *SubscriptionStore) ListExpiredLocal(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+subscriptionColumns+` FROM billing_subscriptions
		WHERE local_managed
			AND status NOT IN ('canceled', 'inactive')
			AND ends_at IS NOT NULL AND ends_at < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *SubscriptionStore) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*subscription.Subscription, error) {
	// Locally managed subscriptions expire at ends_at when it is set;
	// everything else expires at the end of the current billing cycle.
	rows, err := s.pool.Query(ctx,
		`SELECT`+subscriptionColumns+` FROM billing_subscriptions
		WHERE status NOT IN ('canceled', 'inactive')
			AND CASE WHEN local_managed THEN COALESCE(ends_at, cycle_ends_at) ELSE cycle_ends_at END >= $1
			AND CASE WHEN local_managed THEN COALESCE(ends_at, cycle_ends_at) ELSE cycle_ends_at END < $2`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub                             subscription.Subscription
		priceType, intervalUnit, status string
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID,
		&sub.Price.Amount, &sub.Price.Currency, &priceType,
		&intervalUnit, &sub.Interval.Count,
		&status, &sub.TrialEndsAt, &sub.CycleStartedAt, &sub.CycleEndsAt,
		&sub.CancelAtPeriodEnd, &sub.CanceledAt,
		&sub.ProviderSlug, &sub.ProviderSubscriptionID, &sub.ProviderCustomerID, &sub.ProviderStatus,
		&sub.LocalManaged, &sub.EndsAt, &sub.DiscountCode,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, err
	}

	sub.PriceType = pricing.PriceType(priceType)
	sub.Interval.Unit = pricing.IntervalUnit(intervalUnit)
	sub.Status = subscription.Status(status)
	return &sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*subscription.Subscription, error) {
	var subs []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}
