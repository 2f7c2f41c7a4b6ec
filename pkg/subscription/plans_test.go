package subscription_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/subscription"
)

func TestYAMLPlans_Load(t *testing.T) {
	t.Parallel()

	catalog := `
plans:
  - id: starter-monthly
    name: Starter
    price:
      amount: 990
      currency: USD
    price_type: flat_rate
    interval:
      unit: month
      count: 1
    trial:
      unit: day
      count: 14
    provider_price_ids:
      paddle: pri_starter_m
    active: true
    public: true
  - id: metered-api
    name: API usage
    price:
      amount: 0
      currency: USD
    price_type: usage_based_tiered_graduated
    interval:
      unit: month
      count: 1
    meter: api_calls
    tiers:
      - from: 0
        up_to: 100
        unit_price: 100
      - from: 100
        up_to: -1
        unit_price: 50
    provider_price_ids:
      cardlink: cl_price_api
    active: true
    public: false
`
	path := filepath.Join(t.TempDir(), "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))

	plans, err := subscription.YAMLPlans{Path: path}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)

	starter := plans["starter-monthly"]
	assert.Equal(t, "Starter", starter.Name)
	assert.Equal(t, pricing.Money{Amount: 990, Currency: "USD"}, starter.Price)
	assert.Equal(t, pricing.PriceTypeFlatRate, starter.PriceType)
	assert.Equal(t, pricing.Interval{Unit: pricing.IntervalMonth, Count: 1}, starter.Interval)
	require.NotNil(t, starter.Trial)
	assert.Equal(t, pricing.Interval{Unit: pricing.IntervalDay, Count: 14}, *starter.Trial)
	assert.Equal(t, "pri_starter_m", starter.PriceIDFor("paddle"))
	assert.Empty(t, starter.PriceIDFor("cardlink"))
	require.NoError(t, starter.Validate())

	metered := plans["metered-api"]
	assert.Equal(t, "api_calls", metered.Meter)
	require.Len(t, metered.Tiers, 2)
	assert.Equal(t, pricing.UnboundedTier, metered.Tiers[1].UpTo)
	require.NoError(t, metered.Validate())
}

func TestYAMLPlans_LoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := subscription.YAMLPlans{Path: "/nonexistent/plans.yml"}.Load(context.Background())
	require.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
}

func TestPlanValidate(t *testing.T) {
	t.Parallel()

	valid := subscription.Plan{
		ID:        "p1",
		Price:     pricing.Money{Amount: 1000, Currency: "USD"},
		PriceType: pricing.PriceTypeFlatRate,
		Interval:  pricing.Interval{Unit: pricing.IntervalMonth, Count: 1},
		Active:    true,
	}
	require.NoError(t, valid.Validate())

	t.Run("usage-based without meter", func(t *testing.T) {
		t.Parallel()

		plan := valid
		plan.PriceType = pricing.PriceTypePerUnit
		plan.UnitPrice = 50
		require.ErrorIs(t, plan.Validate(), subscription.ErrInvalidPlanConfiguration)
	})

	t.Run("tiered with gap", func(t *testing.T) {
		t.Parallel()

		plan := valid
		plan.PriceType = pricing.PriceTypeTieredVolume
		plan.Meter = "seats"
		plan.Tiers = []pricing.Tier{
			{From: 0, UpTo: 100, UnitPrice: 100},
			{From: 150, UpTo: pricing.UnboundedTier, UnitPrice: 50},
		}
		require.ErrorIs(t, plan.Validate(), subscription.ErrInvalidPlanConfiguration)
	})

	t.Run("invalid interval", func(t *testing.T) {
		t.Parallel()

		plan := valid
		plan.Interval = pricing.Interval{Unit: "fortnight", Count: 1}
		require.ErrorIs(t, plan.Validate(), subscription.ErrInvalidPlanConfiguration)
	})

	t.Run("trial window", func(t *testing.T) {
		t.Parallel()

		plan := valid
		plan.Trial = &pricing.Interval{Unit: pricing.IntervalDay, Count: 14}
		assert.True(t, plan.HasTrial())
		assert.Equal(t, 14, plan.TrialDays())
	})
}
