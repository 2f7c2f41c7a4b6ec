package discount_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/discount"
	"github.com/billforge/billforge/pkg/pricing"
)

func usd(amount int64) pricing.Money {
	return pricing.Money{Amount: amount, Currency: "USD"}
}

func newStoreWith(d discount.Discount, codes ...discount.RedemptionCode) *discount.MemoryStore {
	store := discount.NewMemoryStore()
	store.AddDiscount(d, codes...)
	return store
}

func TestEngine_Apply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("percentage discount", func(t *testing.T) {
		t.Parallel()

		store := newStoreWith(
			discount.Discount{ID: uuid.New(), Kind: pricing.DiscountPercentage, Value: 20, Scope: discount.ScopeAny, Active: true},
			discount.RedemptionCode{Code: "SAVE20", MaxRedemptions: 10},
		)
		engine := discount.NewEngine(store)

		app, err := engine.Apply(ctx, "SAVE20", discount.ActionPurchase, usd(10000))
		require.NoError(t, err)

		assert.Equal(t, usd(2000), app.Amount)
		assert.Equal(t, "SAVE20", app.Spec.Code)
		assert.Equal(t, pricing.DiscountPercentage, app.Spec.Kind)
	})

	t.Run("fixed discount clamped to subtotal", func(t *testing.T) {
		t.Parallel()

		store := newStoreWith(
			discount.Discount{ID: uuid.New(), Kind: pricing.DiscountFixed, Value: 5000, Scope: discount.ScopeAny, Active: true},
			discount.RedemptionCode{Code: "OFF50"},
		)
		engine := discount.NewEngine(store)

		app, err := engine.Apply(ctx, "OFF50", discount.ActionPurchase, usd(3000))
		require.NoError(t, err)
		assert.Equal(t, usd(3000), app.Amount)
	})

	t.Run("renewal-only code rejects a first purchase", func(t *testing.T) {
		t.Parallel()

		store := newStoreWith(
			discount.Discount{ID: uuid.New(), Kind: pricing.DiscountPercentage, Value: 10, Scope: discount.ScopeRenewal, Active: true},
			discount.RedemptionCode{Code: "LOYAL10"},
		)
		engine := discount.NewEngine(store)

		_, err := engine.Apply(ctx, "LOYAL10", discount.ActionPurchase, usd(10000))
		require.ErrorIs(t, err, discount.ErrScopeMismatch)

		// The rejected attempt must not consume a redemption.
		app, err := engine.Apply(ctx, "LOYAL10", discount.ActionRenewal, usd(10000))
		require.NoError(t, err)
		assert.Equal(t, usd(1000), app.Amount)
	})

	t.Run("inactive discount rejected", func(t *testing.T) {
		t.Parallel()

		store := newStoreWith(
			discount.Discount{ID: uuid.New(), Kind: pricing.DiscountPercentage, Value: 10, Scope: discount.ScopeAny, Active: false},
			discount.RedemptionCode{Code: "OLD"},
		)
		engine := discount.NewEngine(store)

		_, err := engine.Apply(ctx, "OLD", discount.ActionPurchase, usd(10000))
		require.ErrorIs(t, err, discount.ErrDiscountInactive)
	})

	t.Run("unknown code rejected", func(t *testing.T) {
		t.Parallel()

		engine := discount.NewEngine(discount.NewMemoryStore())
		_, err := engine.Apply(ctx, "NOPE", discount.ActionPurchase, usd(10000))
		require.ErrorIs(t, err, discount.ErrCodeNotFound)
	})

	t.Run("code lookup is case-insensitive", func(t *testing.T) {
		t.Parallel()

		store := newStoreWith(
			discount.Discount{ID: uuid.New(), Kind: pricing.DiscountPercentage, Value: 20, Scope: discount.ScopeAny, Active: true},
			discount.RedemptionCode{Code: "Spring20"},
		)
		engine := discount.NewEngine(store)

		_, err := engine.Apply(ctx, "spring20", discount.ActionPurchase, usd(10000))
		require.NoError(t, err)
	})

	t.Run("redemption limit enforced", func(t *testing.T) {
		t.Parallel()

		store := newStoreWith(
			discount.Discount{ID: uuid.New(), Kind: pricing.DiscountPercentage, Value: 20, Scope: discount.ScopeAny, Active: true},
			discount.RedemptionCode{Code: "TWICE", MaxRedemptions: 2},
		)
		engine := discount.NewEngine(store)

		_, err := engine.Apply(ctx, "TWICE", discount.ActionPurchase, usd(10000))
		require.NoError(t, err)
		_, err = engine.Apply(ctx, "TWICE", discount.ActionPurchase, usd(10000))
		require.NoError(t, err)
		_, err = engine.Apply(ctx, "TWICE", discount.ActionPurchase, usd(10000))
		require.ErrorIs(t, err, discount.ErrRedemptionExceeded)
	})
}

func TestEngine_ConcurrentRedemption(t *testing.T) {
	t.Parallel()

	const limit = 5
	const attempts = 50

	store := newStoreWith(
		discount.Discount{ID: uuid.New(), Kind: pricing.DiscountPercentage, Value: 20, Scope: discount.ScopeAny, Active: true},
		discount.RedemptionCode{Code: "RACE", MaxRedemptions: limit},
	)
	engine := discount.NewEngine(store)

	var granted atomic.Int32
	var exceeded atomic.Int32
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Apply(context.Background(), "RACE", discount.ActionPurchase, usd(10000))
			switch {
			case err == nil:
				granted.Add(1)
			default:
				exceeded.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly the configured number of redemptions succeed, never more.
	assert.Equal(t, int32(limit), granted.Load())
	assert.Equal(t, int32(attempts-limit), exceeded.Load())
}

func TestEngine_Preview(t *testing.T) {
	t.Parallel()

	store := newStoreWith(
		discount.Discount{ID: uuid.New(), Kind: pricing.DiscountPercentage, Value: 20, Scope: discount.ScopeAny, Active: true},
		discount.RedemptionCode{Code: "PEEK", MaxRedemptions: 1},
	)
	engine := discount.NewEngine(store)
	ctx := context.Background()

	amount, err := engine.Preview(ctx, "PEEK", discount.ActionPurchase, usd(10000))
	require.NoError(t, err)
	assert.Equal(t, usd(2000), amount)

	// Preview does not consume the code.
	_, err = engine.Apply(ctx, "PEEK", discount.ActionPurchase, usd(10000))
	require.NoError(t, err)

	// Once exhausted, preview reports it.
	_, err = engine.Preview(ctx, "PEEK", discount.ActionPurchase, usd(10000))
	require.ErrorIs(t, err, discount.ErrRedemptionExceeded)
}
