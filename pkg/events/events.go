// Package events carries typed billing domain events from the engines to
// independent consumers (notification sender, analytics). Engines publish
// and move on; consumers subscribe without the engines depending on them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the domain event type.
type Kind string

const (
	SubscriptionCreated      Kind = "subscription.created"
	SubscriptionActivated    Kind = "subscription.activated"
	SubscriptionPastDue      Kind = "subscription.past_due"
	SubscriptionCanceled     Kind = "subscription.canceled"
	SubscriptionDeactivated  Kind = "subscription.deactivated"
	SubscriptionPlanChanged  Kind = "subscription.plan_changed"
	SubscriptionExpiringSoon Kind = "subscription.expiring_soon"
	UsageReported            Kind = "subscription.usage_reported"

	OrderCreated   Kind = "order.created"
	OrderCompleted Kind = "order.completed"
	OrderFailed    Kind = "order.failed"
	OrderRefunded  Kind = "order.refunded"
	OrderDisputed  Kind = "order.disputed"

	DiscountRedeemed Kind = "discount.redeemed"
)

// Event is a single billing domain event. Exactly one of SubscriptionID and
// OrderID is set depending on the entity kind.
type Event struct {
	Kind           Kind
	OccurredAt     time.Time
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	OrderID        uuid.UUID
	ProviderSlug   string
	Meta           map[string]string
}
