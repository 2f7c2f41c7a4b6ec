package webhook

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/pricing"
)

// EventType is the canonical billing event type every provider payload is
// normalized into.
type EventType string

const (
	EventPaymentSucceeded     EventType = "payment_succeeded"
	EventPaymentFailed        EventType = "payment_failed"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventDisputeOpened        EventType = "dispute_opened"
	EventRefundIssued         EventType = "refund_issued"
	EventIdentityVerified     EventType = "identity_verified"
)

// Event is a verified, normalized provider callback. EventID is the
// provider's own event identifier and serves as the deduplication key
// together with the provider slug.
type Event struct {
	ProviderSlug  string
	EventID       string
	Type          EventType
	ProviderEvent string // original provider event name, for diagnostics
	OccurredAt    time.Time

	// Correlation back to our entities, extracted from checkout metadata.
	// Zero UUIDs mean the payload carried no such reference.
	SubscriptionID uuid.UUID
	OrderID        uuid.UUID
	UserID         uuid.UUID

	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderStatus         string

	Amount *pricing.Money // set for payment/refund events when known
}

// Adapter verifies and normalizes one provider's webhook requests.
type Adapter interface {
	// Slug is the provider this adapter serves.
	Slug() string

	// VerifyAndParse authenticates the request and translates its payload.
	// Returns ErrInvalidSignature before reading any business data when
	// authentication fails, and ErrEventIgnored for provider events that
	// have no canonical mapping.
	VerifyAndParse(r *http.Request) (*Event, error)
}
