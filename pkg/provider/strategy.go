package provider

import (
	"context"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/pricing"
)

// Descriptor is the registry-visible description of a payment provider.
type Descriptor struct {
	Slug                  string
	DisplayName           string
	Active                bool // usable at all (webhooks, existing subscriptions)
	EnabledForNewPayments bool // offered for brand-new checkouts
	SortOrder             int  // ascending; ties keep registration order
}

// CheckoutResult carries the provider's checkout step. Exactly one channel
// is populated: redirect-style providers set RedirectURL, overlay-style
// providers set InlinePayload consumed by the caller's client-side code.
type CheckoutResult struct {
	RedirectURL   string
	InlinePayload map[string]string
}

// IsRedirect reports whether the caller should redirect the user.
func (r CheckoutResult) IsRedirect() bool {
	return r.RedirectURL != ""
}

// SubscriptionRef identifies a subscription on both sides of the provider
// boundary.
type SubscriptionRef struct {
	SubscriptionID         uuid.UUID // our identifier
	ProviderSubscriptionID string    // provider-side identifier
	ProviderCustomerID     string    // provider-side customer, when known
}

// DiscountSpec is the provider-facing shape of a discount grant.
type DiscountSpec struct {
	Code  string
	Kind  pricing.DiscountKind
	Value int64
}

// SubscriptionCheckoutRequest contains everything a strategy needs to build
// a subscription checkout.
type SubscriptionCheckoutRequest struct {
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	Email          string
	PlanPriceID    string // provider's price identifier for the plan
	PriceType      pricing.PriceType
	Price          pricing.Money
	TrialDays      int
	SkipTrial      bool
	Discount       *DiscountSpec
	SuccessURL     string
	CancelURL      string
}

// CheckoutItem is one line of a one-time purchase checkout.
type CheckoutItem struct {
	ProductPriceID string
	Quantity       int
}

// ProductCheckoutRequest contains everything a strategy needs to build a
// one-time purchase checkout.
type ProductCheckoutRequest struct {
	OrderID    uuid.UUID
	UserID     uuid.UUID
	Email      string
	Items      []CheckoutItem
	AmountDue  pricing.Money
	Discount   *DiscountSpec
	SuccessURL string
	CancelURL  string
}

// PlanChangeRequest asks the provider to move a subscription to a new plan.
type PlanChangeRequest struct {
	Ref            SubscriptionRef
	NewPlanPriceID string
	NewPriceType   pricing.PriceType
	WithProration  bool
	ProratedAmount pricing.Money // precomputed delta when WithProration is set
}

// UsageReport carries a metered unit count for the current billing period.
// IdempotencyKey is stable per subscription and period so a retried report
// is never double-counted by the provider.
type UsageReport struct {
	Ref            SubscriptionRef
	Units          int64
	IdempotencyKey string
}

// Strategy is the capability contract every payment backend implements.
// Side effects are confined to outbound provider calls; persistence of the
// resulting linkage and all status decisions stay with the engines.
type Strategy interface {
	Descriptor() Descriptor
	SupportedPlanTypes() []pricing.PriceType
	SupportsSkippingTrial() bool
	IsRedirectProvider() bool
	IsOverlayProvider() bool

	CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (*CheckoutResult, error)
	CreateProductCheckout(ctx context.Context, req ProductCheckoutRequest) (*CheckoutResult, error)

	// ChangePlan must fail loudly when the provider cannot represent the new
	// plan's price type, never silently no-op.
	ChangePlan(ctx context.Context, req PlanChangeRequest) error

	// CancelSubscription and DiscardCancellation are idempotent: repeating
	// either call must not leave inconsistent provider-side state.
	CancelSubscription(ctx context.Context, ref SubscriptionRef) error
	DiscardCancellation(ctx context.Context, ref SubscriptionRef) error

	ChangePaymentMethodLink(ctx context.Context, ref SubscriptionRef) (string, error)
	AddDiscountToSubscription(ctx context.Context, ref SubscriptionRef, discount DiscountSpec) error

	// ReportUsage is only valid when SupportedPlanTypes includes a
	// usage-based type.
	ReportUsage(ctx context.Context, report UsageReport) error
}

// SupportsPlanType reports whether the strategy can bill the given price type.
func SupportsPlanType(s Strategy, t pricing.PriceType) bool {
	for _, supported := range s.SupportedPlanTypes() {
		if supported == t {
			return true
		}
	}
	return false
}
