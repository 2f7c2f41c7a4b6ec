package provider

import (
	"context"

	"github.com/billforge/billforge/pkg/pricing"
)

// LocalSlug is the slug of the built-in locally managed backend.
const LocalSlug = "local"

// LocalStrategy is the no-op backend used when billing is handled manually
// (bank transfer, comped accounts). There is no external system to call, so
// checkout completes immediately and lifecycle operations succeed without
// side effects; the engines own all resulting state.
type LocalStrategy struct {
	descriptor Descriptor
}

// NewLocalStrategy returns the locally managed backend. Sort order places it
// last by default so real providers are offered first.
func NewLocalStrategy() *LocalStrategy {
	return &LocalStrategy{
		descriptor: Descriptor{
			Slug:                  LocalSlug,
			DisplayName:           "Locally managed",
			Active:                true,
			EnabledForNewPayments: true,
			SortOrder:             1000,
		},
	}
}

func (s *LocalStrategy) Descriptor() Descriptor { return s.descriptor }

// SupportedPlanTypes covers every price type: with no external processor
// there is nothing that could fail to represent a price.
func (s *LocalStrategy) SupportedPlanTypes() []pricing.PriceType {
	return []pricing.PriceType{
		pricing.PriceTypeFlatRate,
		pricing.PriceTypePerUnit,
		pricing.PriceTypeTieredVolume,
		pricing.PriceTypeTieredGraduated,
	}
}

func (s *LocalStrategy) SupportsSkippingTrial() bool { return true }
func (s *LocalStrategy) IsRedirectProvider() bool    { return true }
func (s *LocalStrategy) IsOverlayProvider() bool     { return false }

// CreateSubscriptionCheckout has no checkout step; the caller lands straight
// on the success URL and the engine activates the subscription.
func (s *LocalStrategy) CreateSubscriptionCheckout(_ context.Context, req SubscriptionCheckoutRequest) (*CheckoutResult, error) {
	return &CheckoutResult{RedirectURL: req.SuccessURL}, nil
}

func (s *LocalStrategy) CreateProductCheckout(_ context.Context, req ProductCheckoutRequest) (*CheckoutResult, error) {
	return &CheckoutResult{RedirectURL: req.SuccessURL}, nil
}

func (s *LocalStrategy) ChangePlan(context.Context, PlanChangeRequest) error { return nil }

func (s *LocalStrategy) CancelSubscription(context.Context, SubscriptionRef) error { return nil }

func (s *LocalStrategy) DiscardCancellation(context.Context, SubscriptionRef) error { return nil }

// ChangePaymentMethodLink has nothing to link to; locally managed billing
// has no stored payment method.
func (s *LocalStrategy) ChangePaymentMethodLink(context.Context, SubscriptionRef) (string, error) {
	return "", nil
}

func (s *LocalStrategy) AddDiscountToSubscription(context.Context, SubscriptionRef, DiscountSpec) error {
	return nil
}

// ReportUsage succeeds without side effects; usage amounts for local
// subscriptions are computed at invoicing time from recorded counters.
func (s *LocalStrategy) ReportUsage(context.Context, UsageReport) error { return nil }
