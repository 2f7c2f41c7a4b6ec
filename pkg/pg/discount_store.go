package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billforge/billforge/pkg/discount"
	"github.com/billforge/billforge/pkg/pricing"
)

// DiscountStore is the PostgreSQL implementation of discount.Store.
type DiscountStore struct {
	pool *pgxpool.Pool
}

func NewDiscountStore(pool *pgxpool.Pool) *DiscountStore {
	return &DiscountStore{pool: pool}
}

func (s *DiscountStore) ResolveCode(ctx context.Context, code string) (*discount.Discount, *discount.RedemptionCode, error) {
	var (
		d           discount.Discount
		rc          discount.RedemptionCode
		kind, scope string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT d.id, d.name, d.kind, d.value, d.scope, d.active, d.created_at,
			c.code, c.discount_id, c.redemptions, c.max_redemptions
		FROM billing_discount_codes c
		JOIN billing_discounts d ON d.id = c.discount_id
		WHERE c.code = $1`,
		normalizeCode(code)).Scan(
		&d.ID, &d.Name, &kind, &d.Value, &scope, &d.Active, &d.CreatedAt,
		&rc.Code, &rc.DiscountID, &rc.Redemptions, &rc.MaxRedemptions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, discount.ErrCodeNotFound
		}
		return nil, nil, err
	}

	d.Kind = pricing.DiscountKind(kind)
	d.Scope = discount.Scope(scope)
	return &d, &rc, nil
}

// Redeem increments the redemption counter with the limit check folded into
// the UPDATE predicate, so concurrent redeems of the last remaining use race
// on the row lock and exactly one wins.
func (s *DiscountStore) Redeem(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE billing_discount_codes
		SET redemptions = redemptions + 1
		WHERE code = $1 AND (max_redemptions = 0 OR redemptions < max_redemptions)`,
		normalizeCode(code))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the code does not exist or its limit is reached.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM billing_discount_codes WHERE code = $1)`,
			normalizeCode(code)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return discount.ErrCodeNotFound
		}
		return discount.ErrRedemptionExceeded
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
