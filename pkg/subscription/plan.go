package subscription

import (
	"fmt"
	"time"

	"github.com/billforge/billforge/pkg/pricing"
)

// Plan describes a recurring offering. Price, price type and interval are
// snapshotted onto each subscription at creation, so later plan edits never
// change what a live subscriber pays.
type Plan struct {
	ID          string
	Name        string
	Description string
	Price       pricing.Money
	PriceType   pricing.PriceType
	Interval    pricing.Interval
	Trial       *pricing.Interval // nil when the plan has no trial
	Meter       string            // metered-unit reference, set for usage-based plans
	UnitPrice   int64             // per-unit rate for usage_based_per_unit
	Tiers       []pricing.Tier    // tier bands for tiered price types

	// ProviderPriceIDs maps a provider slug to that provider's price
	// identifier for this plan. A plan is only offerable through providers
	// it has a price ID for (the locally managed provider needs none).
	ProviderPriceIDs map[string]string

	Active bool
	Public bool // available for self-service signup
}

// Validate catches plan configuration errors at load time so they never
// reach billing.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: plan has empty ID", ErrInvalidPlanConfiguration)
	}
	if !p.PriceType.Valid() {
		return fmt.Errorf("%w: plan %s has unknown price type %q", ErrInvalidPlanConfiguration, p.ID, p.PriceType)
	}
	if err := p.Interval.Validate(); err != nil {
		return fmt.Errorf("%w: plan %s: %v", ErrInvalidPlanConfiguration, p.ID, err)
	}
	if p.Trial != nil {
		if err := p.Trial.Validate(); err != nil {
			return fmt.Errorf("%w: plan %s trial: %v", ErrInvalidPlanConfiguration, p.ID, err)
		}
	}
	if p.PriceType.IsUsageBased() && p.Meter == "" {
		return fmt.Errorf("%w: plan %s is usage-based but has no meter", ErrInvalidPlanConfiguration, p.ID)
	}
	switch p.PriceType {
	case pricing.PriceTypeTieredVolume, pricing.PriceTypeTieredGraduated:
		if err := pricing.ValidateTiers(p.Tiers); err != nil {
			return fmt.Errorf("%w: plan %s: %v", ErrInvalidPlanConfiguration, p.ID, err)
		}
	case pricing.PriceTypePerUnit:
		if p.UnitPrice <= 0 {
			return fmt.Errorf("%w: plan %s has no per-unit price", ErrInvalidPlanConfiguration, p.ID)
		}
	}
	return nil
}

// HasTrial reports whether new subscriptions to this plan start with a trial.
func (p Plan) HasTrial() bool {
	return p.Trial != nil
}

// TrialEndsAt returns when a trial starting at startedAt ends. Returns
// startedAt unchanged for plans without a trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.Trial == nil {
		return startedAt
	}
	endsAt, err := p.Trial.AddTo(startedAt)
	if err != nil {
		return startedAt
	}
	return endsAt.UTC()
}

// TrialDays returns the trial length in whole days, rounded up. Providers
// that express trials as day counts consume this.
func (p Plan) TrialDays() int {
	if p.Trial == nil {
		return 0
	}
	start := time.Now().UTC()
	hours := p.TrialEndsAt(start).Sub(start).Hours()
	return int((hours + 23) / 24)
}

// PriceIDFor returns the provider-side price identifier for the given
// provider slug, or "" when the plan is not configured for that provider.
func (p Plan) PriceIDFor(providerSlug string) string {
	return p.ProviderPriceIDs[providerSlug]
}
