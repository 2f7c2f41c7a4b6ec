package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/provider"
)

// Status is the lifecycle state of an order. Success, refunded and disputed
// are terminal: once reached, no further transition is permitted.
type Status string

const (
	StatusNew      Status = "new"
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
	StatusDisputed Status = "disputed"
)

// Terminal reports whether the status forbids any further transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusRefunded, StatusDisputed:
		return true
	default:
		return false
	}
}

// orderTransitions is the permitted edge set. Failed orders may be retried
// (back to pending). The success -> refunded/disputed edges exist only for
// provider-driven money movements: UpdateOrder refuses to touch a terminal
// order at all, so callers can never walk them.
var orderTransitions = map[Status][]Status{
	StatusNew:      {StatusPending, StatusSuccess, StatusFailed},
	StatusPending:  {StatusSuccess, StatusFailed, StatusDisputed},
	StatusFailed:   {StatusPending, StatusSuccess},
	StatusSuccess:  {StatusRefunded, StatusDisputed},
	StatusRefunded: {},
	StatusDisputed: {},
}

// CanTransition reports whether the order state machine permits the edge.
// Self transitions are permitted no-ops, keeping webhook replays idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransactionStatus tracks an individual financial event against an order.
type TransactionStatus string

const (
	TransactionNotStarted TransactionStatus = "not_started"
	TransactionPending    TransactionStatus = "pending"
	TransactionSuccess    TransactionStatus = "success"
	TransactionFailed     TransactionStatus = "failed"
	TransactionRefunded   TransactionStatus = "refunded"
	TransactionDisputed   TransactionStatus = "disputed"
)

// TransactionKind classifies the financial event.
type TransactionKind string

const (
	TransactionCharge  TransactionKind = "charge"
	TransactionRefund  TransactionKind = "refund"
	TransactionDispute TransactionKind = "dispute"
)

// Transaction is one financial event tied to an order. An order accrues
// several over its life, e.g. a charge and a later refund.
type Transaction struct {
	ID          uuid.UUID
	Kind        TransactionKind
	Status      TransactionStatus
	Amount      pricing.Money
	Fee         pricing.Money // provider fee portion, when reported
	ProviderRef string        // provider-side transaction/event ID
	CreatedAt   time.Time
}

// LineItem is one purchasable row of an order.
type LineItem struct {
	ProductID          string
	Description        string
	Quantity           int
	UnitPrice          pricing.Money
	ProviderProductIDs map[string]string // provider slug -> product price ID
}

// Order is a one-time purchase. Totals are computed once at creation;
// amount due never goes below zero regardless of the discount.
type Order struct {
	ID     uuid.UUID
	UserID uuid.UUID

	Items          []LineItem
	Subtotal       pricing.Money
	DiscountAmount pricing.Money
	AmountDue      pricing.Money
	DiscountCode   string

	Status  Status
	IsLocal bool

	ProviderSlug    string
	ProviderOrderID string

	Transactions []Transaction

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the order accepts no further updates.
func (o *Order) IsTerminal() bool {
	return o.Status.Terminal()
}

// Ref builds the provider-facing reference for outbound strategy calls.
func (o *Order) Ref() provider.SubscriptionRef {
	return provider.SubscriptionRef{
		SubscriptionID:         o.ID,
		ProviderSubscriptionID: o.ProviderOrderID,
	}
}

// transitionTo moves the order along a permitted edge. Moving to the
// current status is a no-op returning false.
func (o *Order) transitionTo(status Status, now time.Time) (changed bool, err error) {
	if o.Status == status {
		return false, nil
	}
	if !CanTransition(o.Status, status) {
		return false, transitionError(o.Status, status)
	}
	o.Status = status
	o.UpdatedAt = now
	return true, nil
}
