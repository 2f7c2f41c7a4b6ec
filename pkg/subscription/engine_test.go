package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/provider"
	"github.com/billforge/billforge/pkg/subscription"
	"github.com/billforge/billforge/pkg/webhook"
)

// fakeStrategy is a configurable in-memory payment backend recording every
// outbound call.
type fakeStrategy struct {
	desc      provider.Descriptor
	planTypes []pricing.PriceType
	skipTrial bool
	checkout  provider.CheckoutResult
	failWith  error
	cancels   int
	discards  int
	changes   []provider.PlanChangeRequest
	usage     []provider.UsageReport
	discounts []provider.DiscountSpec
	checkouts int
}

func newFakeStrategy() *fakeStrategy {
	return &fakeStrategy{
		desc: provider.Descriptor{
			Slug:                  "fakepay",
			DisplayName:           "FakePay",
			Active:                true,
			EnabledForNewPayments: true,
			SortOrder:             1,
		},
		planTypes: []pricing.PriceType{
			pricing.PriceTypeFlatRate,
			pricing.PriceTypePerUnit,
			pricing.PriceTypeTieredVolume,
			pricing.PriceTypeTieredGraduated,
		},
		skipTrial: true,
		checkout:  provider.CheckoutResult{RedirectURL: "https://fakepay.test/checkout/cs_1"},
	}
}

func (f *fakeStrategy) Descriptor() provider.Descriptor         { return f.desc }
func (f *fakeStrategy) SupportedPlanTypes() []pricing.PriceType { return f.planTypes }
func (f *fakeStrategy) SupportsSkippingTrial() bool             { return f.skipTrial }
func (f *fakeStrategy) IsRedirectProvider() bool                { return true }
func (f *fakeStrategy) IsOverlayProvider() bool                 { return false }

func (f *fakeStrategy) CreateSubscriptionCheckout(_ context.Context, _ provider.SubscriptionCheckoutRequest) (*provider.CheckoutResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.checkouts++
	result := f.checkout
	return &result, nil
}

func (f *fakeStrategy) CreateProductCheckout(_ context.Context, _ provider.ProductCheckoutRequest) (*provider.CheckoutResult, error) {
	result := f.checkout
	return &result, nil
}

func (f *fakeStrategy) ChangePlan(_ context.Context, req provider.PlanChangeRequest) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.changes = append(f.changes, req)
	return nil
}

func (f *fakeStrategy) CancelSubscription(context.Context, provider.SubscriptionRef) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.cancels++
	return nil
}

func (f *fakeStrategy) DiscardCancellation(context.Context, provider.SubscriptionRef) error {
	f.discards++
	return nil
}

func (f *fakeStrategy) ChangePaymentMethodLink(context.Context, provider.SubscriptionRef) (string, error) {
	return "https://fakepay.test/portal", nil
}

func (f *fakeStrategy) AddDiscountToSubscription(_ context.Context, _ provider.SubscriptionRef, discount provider.DiscountSpec) error {
	f.discounts = append(f.discounts, discount)
	return nil
}

func (f *fakeStrategy) ReportUsage(_ context.Context, report provider.UsageReport) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.usage = append(f.usage, report)
	return nil
}

var testPlans = subscription.StaticPlans{
	{
		ID:        "pro-monthly",
		Name:      "Pro",
		Price:     pricing.Money{Amount: 2900, Currency: "USD"},
		PriceType: pricing.PriceTypeFlatRate,
		Interval:  pricing.Interval{Unit: pricing.IntervalMonth, Count: 1},
		ProviderPriceIDs: map[string]string{
			"fakepay": "price_pro_m",
		},
		Active: true,
		Public: true,
	},
	{
		ID:        "scale-monthly",
		Name:      "Scale",
		Price:     pricing.Money{Amount: 9900, Currency: "USD"},
		PriceType: pricing.PriceTypeFlatRate,
		Interval:  pricing.Interval{Unit: pricing.IntervalMonth, Count: 1},
		ProviderPriceIDs: map[string]string{
			"fakepay": "price_scale_m",
		},
		Active: true,
		Public: true,
	},
	{
		ID:        "metered-api",
		Name:      "API usage",
		Price:     pricing.Money{Currency: "USD"},
		PriceType: pricing.PriceTypePerUnit,
		UnitPrice: 10,
		Meter:     "api_calls",
		Interval:  pricing.Interval{Unit: pricing.IntervalMonth, Count: 1},
		ProviderPriceIDs: map[string]string{
			"fakepay": "price_api",
		},
		Active: true,
	},
}

type engineFixture struct {
	engine   *subscription.Engine
	strategy *fakeStrategy
	store    *subscription.MemoryStore
	now      time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		strategy: newFakeStrategy(),
		store:    subscription.NewMemoryStore(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	registry, err := provider.NewRegistry(provider.NewLocalStrategy(), f.strategy)
	require.NoError(t, err)

	f.engine, err = subscription.NewEngine(
		context.Background(),
		testPlans,
		registry,
		f.store,
		subscription.WithClock(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	return f
}

func (f *engineFixture) createActive(t *testing.T, planID string) *subscription.Subscription {
	t.Helper()

	sub, _, err := f.engine.Create(context.Background(), subscription.CreateParams{
		UserID:       uuid.New(),
		PlanID:       planID,
		ProviderSlug: "fakepay",
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.HandleBillingEvent(context.Background(), webhook.Event{
		ProviderSlug:           "fakepay",
		EventID:                "evt_" + uuid.NewString(),
		Type:                   webhook.EventPaymentSucceeded,
		SubscriptionID:         sub.ID,
		ProviderSubscriptionID: "psub_" + sub.ID.String()[:8],
	}))

	sub, err = f.engine.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, subscription.StatusActive, sub.Status)
	return sub
}

func TestEngine_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("provider checkout leaves subscription pending", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		sub, checkout, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			ProviderSlug: "fakepay",
		})
		require.NoError(t, err)
		require.NotNil(t, checkout)

		assert.Equal(t, subscription.StatusPending, sub.Status)
		assert.True(t, checkout.IsRedirect())
		assert.Equal(t, pricing.Money{Amount: 2900, Currency: "USD"}, sub.Price)
		assert.Equal(t, f.now.AddDate(0, 1, 0), sub.CycleEndsAt)
		assert.Equal(t, 1, f.strategy.checkouts)
	})

	t.Run("local managed activates immediately without provider", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		endsAt := f.now.AddDate(1, 0, 0)
		sub, checkout, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			LocalManaged: true,
			EndsAt:       &endsAt,
			Checkout:     subscription.CheckoutOptions{SuccessURL: "/billing/done"},
		})
		require.NoError(t, err)

		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.True(t, sub.LocalManaged)
		assert.Equal(t, "local", sub.ProviderSlug)
		assert.Equal(t, "/billing/done", checkout.RedirectURL)
		assert.Zero(t, f.strategy.checkouts)
	})

	t.Run("duplicate active local subscription rejected", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		userID := uuid.New()
		endsAt := f.now.AddDate(1, 0, 0)
		_, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       userID,
			PlanID:       "pro-monthly",
			LocalManaged: true,
			EndsAt:       &endsAt,
		})
		require.NoError(t, err)

		_, _, err = f.engine.Create(ctx, subscription.CreateParams{
			UserID:       userID,
			PlanID:       "pro-monthly",
			ProviderSlug: "fakepay",
		})
		require.ErrorIs(t, err, subscription.ErrCreationNotAllowed)
	})

	t.Run("unsupported plan type rejected", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		f.strategy.planTypes = []pricing.PriceType{pricing.PriceTypePerUnit}

		_, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			ProviderSlug: "fakepay",
		})
		require.ErrorIs(t, err, provider.ErrUnsupportedPlanType)
		assert.Zero(t, f.strategy.checkouts)
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		_, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			ProviderSlug: "stripe",
		})
		require.ErrorIs(t, err, provider.ErrProviderNotFound)
	})

	t.Run("unknown plan rejected", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		_, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "enterprise",
			ProviderSlug: "fakepay",
		})
		require.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})
}

func TestEngine_ChangePlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("prorated upgrade mid-cycle", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		// Move to the midpoint of the cycle: half the price difference
		// remains to be charged.
		f.now = sub.CycleStartedAt.Add(sub.CycleEndsAt.Sub(sub.CycleStartedAt) / 2)

		updated, err := f.engine.ChangePlan(ctx, sub.ID, "scale-monthly", true)
		require.NoError(t, err)

		assert.Equal(t, "scale-monthly", updated.PlanID)
		assert.Equal(t, pricing.Money{Amount: 9900, Currency: "USD"}, updated.Price)

		require.Len(t, f.strategy.changes, 1)
		change := f.strategy.changes[0]
		assert.Equal(t, "price_scale_m", change.NewPlanPriceID)
		assert.True(t, change.WithProration)
		assert.Equal(t, int64(3500), change.ProratedAmount.Amount) // (9900-2900)/2
	})

	t.Run("change without proration passes zero delta", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		_, err := f.engine.ChangePlan(ctx, sub.ID, "scale-monthly", false)
		require.NoError(t, err)

		require.Len(t, f.strategy.changes, 1)
		assert.False(t, f.strategy.changes[0].WithProration)
		assert.Zero(t, f.strategy.changes[0].ProratedAmount.Amount)
	})

	t.Run("provider cannot bill new price type", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")
		f.strategy.planTypes = []pricing.PriceType{pricing.PriceTypeFlatRate}

		_, err := f.engine.ChangePlan(ctx, sub.ID, "metered-api", true)
		require.ErrorIs(t, err, provider.ErrUnsupportedPlanType)
		assert.Empty(t, f.strategy.changes)
	})

	t.Run("terminal subscription cannot change plan", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		_, err := f.engine.Cancel(ctx, sub.ID, true)
		require.NoError(t, err)

		_, err = f.engine.ChangePlan(ctx, sub.ID, "scale-monthly", false)
		require.ErrorIs(t, err, subscription.ErrInvalidTransition)
	})
}

func TestEngine_Cancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("immediate cancel is terminal and idempotent", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		canceled, err := f.engine.Cancel(ctx, sub.ID, true)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, canceled.Status)
		assert.NotNil(t, canceled.CanceledAt)
		assert.Equal(t, 1, f.strategy.cancels)

		// Second cancel returns the canceled state without another
		// provider call.
		again, err := f.engine.Cancel(ctx, sub.ID, true)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, again.Status)
		assert.Equal(t, 1, f.strategy.cancels)
	})

	t.Run("period-end cancel keeps subscription active", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		scheduled, err := f.engine.Cancel(ctx, sub.ID, false)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, scheduled.Status)
		assert.True(t, scheduled.CancelAtPeriodEnd)
		assert.Equal(t, 1, f.strategy.cancels)

		// Re-requesting the scheduled cancel is a no-op.
		_, err = f.engine.Cancel(ctx, sub.ID, false)
		require.NoError(t, err)
		assert.Equal(t, 1, f.strategy.cancels)
	})

	t.Run("discard cancellation restores the active state", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		_, err := f.engine.Cancel(ctx, sub.ID, false)
		require.NoError(t, err)

		restored, err := f.engine.DiscardCancellation(ctx, sub.ID)
		require.NoError(t, err)
		assert.False(t, restored.CancelAtPeriodEnd)
		assert.Nil(t, restored.CanceledAt)
		assert.Equal(t, 1, f.strategy.discards)

		// Discarding again is a no-op without a provider call.
		_, err = f.engine.DiscardCancellation(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, f.strategy.discards)
	})

	t.Run("discard on canceled subscription fails", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		_, err := f.engine.Cancel(ctx, sub.ID, true)
		require.NoError(t, err)

		_, err = f.engine.DiscardCancellation(ctx, sub.ID)
		require.ErrorIs(t, err, subscription.ErrInvalidTransition)
	})
}

func TestEngine_ReportUsage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("usage report carries a per-period idempotency key", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "metered-api")

		require.NoError(t, f.engine.ReportUsage(ctx, sub.ID, 150))
		require.NoError(t, f.engine.ReportUsage(ctx, sub.ID, 150))

		require.Len(t, f.strategy.usage, 2)
		assert.Equal(t, int64(150), f.strategy.usage[0].Units)
		assert.NotEmpty(t, f.strategy.usage[0].IdempotencyKey)
		// Same billing period, same key: the provider deduplicates retries.
		assert.Equal(t, f.strategy.usage[0].IdempotencyKey, f.strategy.usage[1].IdempotencyKey)
	})

	t.Run("flat rate plan rejects usage", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		err := f.engine.ReportUsage(ctx, sub.ID, 10)
		require.ErrorIs(t, err, provider.ErrUnsupportedPlanType)
	})

	t.Run("non-positive unit count rejected", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "metered-api")

		require.ErrorIs(t, f.engine.ReportUsage(ctx, sub.ID, 0), subscription.ErrNegativeUnitCount)
		require.ErrorIs(t, f.engine.ReportUsage(ctx, sub.ID, -5), subscription.ErrNegativeUnitCount)
	})
}

func TestEngine_HandleBillingEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("payment succeeded activates pending subscription", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		sub, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			ProviderSlug: "fakepay",
		})
		require.NoError(t, err)

		event := webhook.Event{
			ProviderSlug:           "fakepay",
			EventID:                "evt_1",
			Type:                   webhook.EventPaymentSucceeded,
			SubscriptionID:         sub.ID,
			ProviderSubscriptionID: "psub_1",
		}
		require.NoError(t, f.engine.HandleBillingEvent(ctx, event))

		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
		assert.Equal(t, "psub_1", got.ProviderSubscriptionID)

		// Replaying the identical event leaves the same final state.
		require.NoError(t, f.engine.HandleBillingEvent(ctx, event))
		again, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, got.Status, again.Status)
		assert.Equal(t, got.CycleEndsAt, again.CycleEndsAt)
	})

	t.Run("payment failed on pending deactivates", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		sub, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			ProviderSlug: "fakepay",
		})
		require.NoError(t, err)

		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventPaymentFailed,
			SubscriptionID: sub.ID,
		}))

		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusInactive, got.Status)
	})

	t.Run("recurring charge failure and recovery", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventPaymentFailed,
			SubscriptionID: sub.ID,
		}))
		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPastDue, got.Status)

		// Recovery: advance past the cycle end and deliver the successful
		// renewal charge.
		f.now = sub.CycleEndsAt.Add(time.Hour)
		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventPaymentSucceeded,
			SubscriptionID: sub.ID,
		}))
		got, err = f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
		assert.True(t, got.CycleEndsAt.After(f.now))
	})

	t.Run("renewal advances the billing cycle", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")
		firstCycleEnd := sub.CycleEndsAt

		f.now = firstCycleEnd.Add(time.Minute)
		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventPaymentSucceeded,
			SubscriptionID: sub.ID,
		}))

		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, firstCycleEnd, got.CycleStartedAt)
		assert.Equal(t, firstCycleEnd.AddDate(0, 1, 0), got.CycleEndsAt)
	})

	t.Run("provider cancellation is terminal", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		event := webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventSubscriptionCanceled,
			SubscriptionID: sub.ID,
		}
		require.NoError(t, f.engine.HandleBillingEvent(ctx, event))

		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, got.Status)
		assert.NotNil(t, got.CanceledAt)

		// Replay changes nothing.
		require.NoError(t, f.engine.HandleBillingEvent(ctx, event))
	})

	t.Run("cancel event outrunning the checkout is acknowledged", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		// Seed a subscription the engine has not heard back about yet;
		// the cancel arrives before any event that would move it along.
		sub := &subscription.Subscription{
			ID:           uuid.New(),
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			Status:       subscription.StatusNew,
			ProviderSlug: "fakepay",
			CreatedAt:    f.now,
			UpdatedAt:    f.now,
		}
		require.NoError(t, f.store.Save(ctx, sub))

		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			EventID:        "evt_early_cancel",
			Type:           webhook.EventSubscriptionCanceled,
			SubscriptionID: sub.ID,
		}))

		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusNew, got.Status)
		assert.Nil(t, got.CanceledAt)
	})

	t.Run("subscription updated mirrors provider pause", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)
		sub := f.createActive(t, "pro-monthly")

		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventSubscriptionUpdated,
			SubscriptionID: sub.ID,
			ProviderStatus: "paused",
		}))
		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPaused, got.Status)

		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventSubscriptionUpdated,
			SubscriptionID: sub.ID,
			ProviderStatus: "active",
		}))
		got, err = f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
	})

	t.Run("identity verification releases held subscription", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		sub, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			ProviderSlug: "fakepay",
		})
		require.NoError(t, err)

		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventSubscriptionUpdated,
			SubscriptionID: sub.ID,
			ProviderStatus: "pending_verification",
		}))
		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		require.Equal(t, subscription.StatusPendingUserVerification, got.Status)

		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:   "fakepay",
			Type:           webhook.EventIdentityVerified,
			SubscriptionID: sub.ID,
		}))
		got, err = f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
	})

	t.Run("event for unknown subscription is acknowledged", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		require.NoError(t, f.engine.HandleBillingEvent(ctx, webhook.Event{
			ProviderSlug:           "fakepay",
			Type:                   webhook.EventPaymentSucceeded,
			ProviderSubscriptionID: "psub_unknown",
		}))
	})
}

func TestEngine_Scheduled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("cleanup flips expired local subscriptions to inactive", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		endsAt := f.now.AddDate(0, 0, 7)
		sub, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID:       uuid.New(),
			PlanID:       "pro-monthly",
			LocalManaged: true,
			EndsAt:       &endsAt,
		})
		require.NoError(t, err)

		// Before expiry the sweep does nothing.
		flipped, err := f.engine.CleanupLocalSubscriptionStatuses(ctx)
		require.NoError(t, err)
		assert.Zero(t, flipped)

		f.now = endsAt.Add(time.Hour)
		flipped, err = f.engine.CleanupLocalSubscriptionStatuses(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, flipped)

		got, err := f.engine.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusInactive, got.Status)

		// A second sweep finds nothing left to flip.
		flipped, err = f.engine.CleanupLocalSubscriptionStatuses(ctx)
		require.NoError(t, err)
		assert.Zero(t, flipped)
	})

	t.Run("expiring query selects the reminder window", func(t *testing.T) {
		t.Parallel()
		f := newEngineFixture(t)

		soon := f.now.AddDate(0, 0, 2)
		later := f.now.AddDate(0, 0, 30)
		userA, userB := uuid.New(), uuid.New()

		subSoon, _, err := f.engine.Create(ctx, subscription.CreateParams{
			UserID: userA, PlanID: "pro-monthly", LocalManaged: true, EndsAt: &soon,
		})
		require.NoError(t, err)
		_, _, err = f.engine.Create(ctx, subscription.CreateParams{
			UserID: userB, PlanID: "pro-monthly", LocalManaged: true, EndsAt: &later,
		})
		require.NoError(t, err)

		expiring, err := f.engine.GetExpiringIn(ctx, 3)
		require.NoError(t, err)
		require.Len(t, expiring, 1)
		assert.Equal(t, subSoon.ID, expiring[0].ID)
	})
}

func TestEngine_ApplyDiscount(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	sub := f.createActive(t, "pro-monthly")

	spec := provider.DiscountSpec{Code: "SPRING20", Kind: pricing.DiscountPercentage, Value: 20}
	updated, err := f.engine.ApplyDiscount(context.Background(), sub.ID, spec)
	require.NoError(t, err)

	assert.Equal(t, "SPRING20", updated.DiscountCode)
	require.Len(t, f.strategy.discounts, 1)
	assert.Equal(t, spec, f.strategy.discounts[0])
}

func TestEngine_ProviderFailureSurfaces(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	sub := f.createActive(t, "pro-monthly")

	f.strategy.failWith = errors.New("provider unavailable")
	_, err := f.engine.Cancel(context.Background(), sub.ID, true)
	require.Error(t, err)

	// The failed provider call must not have moved the status.
	got, err := f.engine.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
}
