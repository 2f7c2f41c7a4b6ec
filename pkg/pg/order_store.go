package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billforge/billforge/pkg/order"
	"github.com/billforge/billforge/pkg/pricing"
)

// OrderStore is the PostgreSQL implementation of order.Store. Line items and
// the transaction ledger are stored as JSONB documents: they are written and
// read as a whole with the order and never queried individually.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, user_id, items,
	subtotal_amount, currency, discount_amount, amount_due, discount_code,
	status, is_local, provider_slug, provider_order_id, transactions,
	created_at, updated_at`

func (s *OrderStore) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+orderColumns+` FROM billing_orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (s *OrderStore) GetByProviderRef(ctx context.Context, providerSlug, providerOrderID string) (*order.Order, error) {
	if providerOrderID == "" {
		return nil, order.ErrOrderNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT`+orderColumns+` FROM billing_orders
		WHERE provider_slug = $1 AND provider_order_id = $2`,
		providerSlug, providerOrderID)
	return scanOrder(row)
}

func (s *OrderStore) Save(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal line items: %w", err)
	}
	transactions, err := json.Marshal(o.Transactions)
	if err != nil {
		return fmt.Errorf("marshal transactions: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO billing_orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			items = EXCLUDED.items,
			subtotal_amount = EXCLUDED.subtotal_amount,
			currency = EXCLUDED.currency,
			discount_amount = EXCLUDED.discount_amount,
			amount_due = EXCLUDED.amount_due,
			discount_code = EXCLUDED.discount_code,
			status = EXCLUDED.status,
			provider_slug = EXCLUDED.provider_slug,
			provider_order_id = EXCLUDED.provider_order_id,
			transactions = EXCLUDED.transactions,
			updated_at = EXCLUDED.updated_at`,
		o.ID, o.UserID, items,
		o.Subtotal.Amount, o.Subtotal.Currency, o.DiscountAmount.Amount, o.AmountDue.Amount, o.DiscountCode,
		string(o.Status), o.IsLocal, o.ProviderSlug, o.ProviderOrderID, transactions,
		o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o                   order.Order
		items, transactions []byte
		currency, status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &items,
		&o.Subtotal.Amount, &currency, &o.DiscountAmount.Amount, &o.AmountDue.Amount, &o.DiscountCode,
		&status, &o.IsLocal, &o.ProviderSlug, &o.ProviderOrderID, &transactions,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal line items: %w", err)
	}
	if err := json.Unmarshal(transactions, &o.Transactions); err != nil {
		return nil, fmt.Errorf("unmarshal transactions: %w", err)
	}

	o.Status = order.Status(status)
	o.Subtotal.Currency = currency
	o.DiscountAmount = pricing.Money{Amount: o.DiscountAmount.Amount, Currency: currency}
	o.AmountDue = pricing.Money{Amount: o.AmountDue.Amount, Currency: currency}
	return &o, nil
}
