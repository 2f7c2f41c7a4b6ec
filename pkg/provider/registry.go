package provider

import (
	"fmt"
	"sort"

	"github.com/billforge/billforge/pkg/pricing"
)

// Registry holds all payment strategies keyed by slug and answers capability
// queries for the billing engines. Strategies are injected explicitly at
// construction; the registry is immutable afterwards and safe for concurrent
// use.
type Registry struct {
	bySlug  map[string]Strategy
	ordered []Strategy // registration order, for stable sort ties
}

// NewRegistry builds a registry from the given strategies. Duplicate slugs
// are a wiring bug and rejected.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	if len(strategies) == 0 {
		return nil, ErrNoProvidersRegistered
	}

	r := &Registry{
		bySlug:  make(map[string]Strategy, len(strategies)),
		ordered: make([]Strategy, 0, len(strategies)),
	}
	for _, s := range strategies {
		slug := s.Descriptor().Slug
		if _, exists := r.bySlug[slug]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSlug, slug)
		}
		r.bySlug[slug] = s
		r.ordered = append(r.ordered, s)
	}
	return r, nil
}

// BySlug returns the strategy registered under slug.
func (r *Registry) BySlug(slug string) (Strategy, error) {
	s, ok := r.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, slug)
	}
	return s, nil
}

// ActiveProviders returns active strategies sorted by configured sort order
// ascending. When forNewPayment is set, providers disabled for new payments
// are excluded but stay reachable through BySlug for servicing existing
// subscriptions and webhooks.
func (r *Registry) ActiveProviders(forNewPayment bool) []Strategy {
	result := make([]Strategy, 0, len(r.ordered))
	for _, s := range r.ordered {
		desc := s.Descriptor()
		if !desc.Active {
			continue
		}
		if forNewPayment && !desc.EnabledForNewPayments {
			continue
		}
		result = append(result, s)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Descriptor().SortOrder < result[j].Descriptor().SortOrder
	})
	return result
}

// ActiveProvidersForPlan narrows ActiveProviders to strategies that can bill
// the plan's price type. When the plan has a trial and the caller requires
// trial skipping, providers without trial-skip support are excluded too.
func (r *Registry) ActiveProvidersForPlan(priceType pricing.PriceType, planHasTrial, requireTrialSkip, forNewPayment bool) []Strategy {
	candidates := r.ActiveProviders(forNewPayment)
	result := make([]Strategy, 0, len(candidates))
	for _, s := range candidates {
		if !SupportsPlanType(s, priceType) {
			continue
		}
		if planHasTrial && requireTrialSkip && !s.SupportsSkippingTrial() {
			continue
		}
		result = append(result, s)
	}
	return result
}

// Slugs returns all registered slugs in registration order. Used for
// mounting webhook routes.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.ordered))
	for _, s := range r.ordered {
		slugs = append(slugs, s.Descriptor().Slug)
	}
	return slugs
}
