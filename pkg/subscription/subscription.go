package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/provider"
)

// Subscription is the central billing entity. Price, price type and interval
// are copied from the plan at creation and never re-read, so plan edits do
// not retroactively change what a subscriber pays. Rows are never deleted;
// terminal statuses preserve history.
type Subscription struct {
	ID     uuid.UUID
	UserID uuid.UUID
	PlanID string

	Price     pricing.Money
	PriceType pricing.PriceType
	Interval  pricing.Interval

	Status            Status
	TrialEndsAt       *time.Time
	CycleStartedAt    time.Time
	CycleEndsAt       time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time

	// Exactly one provider reference per subscription. LocalManaged
	// subscriptions use the offline provider and carry an EndsAt instead of
	// provider-driven renewals.
	ProviderSlug           string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderStatus         string
	LocalManaged           bool
	EndsAt                 *time.Time

	DiscountCode string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the subscription is in the billable steady state.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsTerminal reports whether no further billing transitions are possible.
func (s *Subscription) IsTerminal() bool {
	return s.Status.Terminal()
}

// IsTrialing reports whether the subscription is inside its trial window.
func (s *Subscription) IsTrialing() bool {
	return s.TrialEndsAt != nil && time.Now().UTC().Before(*s.TrialEndsAt)
}

// CancelPending reports whether a period-end cancellation is scheduled but
// has not taken effect yet.
func (s *Subscription) CancelPending() bool {
	return s.CancelAtPeriodEnd && !s.Status.Terminal()
}

// Ref builds the provider-facing reference for outbound strategy calls.
func (s *Subscription) Ref() provider.SubscriptionRef {
	return provider.SubscriptionRef{
		SubscriptionID:         s.ID,
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		ProviderCustomerID:     s.ProviderCustomerID,
	}
}

// transitionTo moves the subscription along a permitted state machine edge.
// Transitioning to the current status is a no-op returning false, which is
// what makes webhook replays idempotent.
func (s *Subscription) transitionTo(status Status, now time.Time) (changed bool, err error) {
	if s.Status == status {
		return false, nil
	}
	if !CanTransition(s.Status, status) {
		return false, transitionError(s.Status, status)
	}
	s.Status = status
	s.UpdatedAt = now
	return true, nil
}
