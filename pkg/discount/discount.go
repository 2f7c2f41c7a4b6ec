// Package discount resolves redemption codes to their parent discount,
// enforces the action-type scope, and counts redemptions atomically so a
// code can never be redeemed past its limit, even under concurrent
// attempts.
package discount

import (
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/pricing"
)

// Scope controls which billing actions a discount may apply to.
type Scope string

const (
	// ScopeAny applies to every billing action.
	ScopeAny Scope = "any"
	// ScopeRenewal applies only to recurring renewal charges, never to a
	// first purchase.
	ScopeRenewal Scope = "renewal"
	// ScopeUpgrade applies only to plan upgrades.
	ScopeUpgrade Scope = "upgrade"
)

// Action is the billing event a discount is being applied to.
type Action string

const (
	ActionPurchase Action = "purchase"
	ActionRenewal  Action = "renewal"
	ActionUpgrade  Action = "upgrade"
)

// Allows reports whether the scope covers the given billing action.
func (s Scope) Allows(action Action) bool {
	switch s {
	case ScopeAny:
		return true
	case ScopeRenewal:
		return action == ActionRenewal
	case ScopeUpgrade:
		return action == ActionUpgrade
	default:
		return false
	}
}

// Discount is a reduction rule. Codes reference it; the rule itself carries
// the kind, value and scope.
type Discount struct {
	ID        uuid.UUID
	Name      string
	Kind      pricing.DiscountKind
	Value     int64 // cents for fixed, whole percent for percentage
	Scope     Scope
	Active    bool
	CreatedAt time.Time
}

// RedemptionCode is one redeemable code of a discount with its own usage
// counter and limit.
type RedemptionCode struct {
	Code           string
	DiscountID     uuid.UUID
	Redemptions    int
	MaxRedemptions int // 0 means unlimited
}

// Exhausted reports whether the code has reached its redemption limit.
func (c RedemptionCode) Exhausted() bool {
	return c.MaxRedemptions > 0 && c.Redemptions >= c.MaxRedemptions
}
