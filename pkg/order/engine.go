package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/events"
	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/provider"
	"github.com/billforge/billforge/pkg/webhook"
)

// Engine owns the one-time purchase lifecycle: totals computation at
// creation, the single guarded mutation path, and webhook-driven
// transitions. Mutations serialize per order ID.
type Engine struct {
	registry *provider.Registry
	store    Store
	events   events.Publisher
	log      *slog.Logger
	locks    *keyedMutex
	now      func() time.Time
}

// EngineOption configures optional Engine settings.
type EngineOption func(*Engine)

// WithEventPublisher sets the bus domain events are published to.
func WithEventPublisher(pub events.Publisher) EngineOption {
	return func(e *Engine) {
		if pub != nil {
			e.events = pub
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires the order engine. Panics on nil required dependencies.
func NewEngine(registry *provider.Registry, store Store, opts ...EngineOption) *Engine {
	if registry == nil {
		panic("order: provider registry is required")
	}
	if store == nil {
		panic("order: Store is required")
	}

	e := &Engine{
		registry: registry,
		store:    store,
		events:   events.NopPublisher{},
		log:      slog.Default(),
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns an order by ID.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return e.store.Get(ctx, id)
}

// CheckoutOptions carry the caller-side parameters of a checkout.
type CheckoutOptions struct {
	Email      string
	SuccessURL string
	CancelURL  string
}

// CreateParams describe a new one-time purchase.
type CreateParams struct {
	UserID       uuid.UUID
	Currency     string
	Items        []LineItem
	Discount     *provider.DiscountSpec
	ProviderSlug string
	IsLocal      bool
	Checkout     CheckoutOptions
}

// Create computes the order totals and initiates checkout. Subtotal is the
// sum of item price times quantity, the discount reduction is clamped so the
// amount due never goes negative, and local orders complete immediately
// without any provider involvement.
func (e *Engine) Create(ctx context.Context, params CreateParams) (*Order, *provider.CheckoutResult, error) {
	if len(params.Items) == 0 {
		return nil, nil, ErrNoLineItems
	}

	subtotal := pricing.Money{Currency: params.Currency}
	for _, item := range params.Items {
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: product %s has quantity %d", ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
		if item.UnitPrice.Amount < 0 {
			return nil, nil, fmt.Errorf("%w: product %s", ErrInvalidUnitPrice, item.ProductID)
		}
		line, err := subtotal.Add(pricing.Money{
			Amount:   item.UnitPrice.Amount * int64(item.Quantity),
			Currency: item.UnitPrice.Currency,
		})
		if err != nil {
			return nil, nil, err
		}
		subtotal = line
	}

	discountAmount := pricing.Money{Currency: params.Currency}
	if params.Discount != nil {
		var err error
		discountAmount, err = pricing.DiscountAmount(subtotal, params.Discount.Kind, params.Discount.Value)
		if err != nil {
			return nil, nil, err
		}
	}
	amountDue, err := subtotal.Sub(discountAmount)
	if err != nil {
		return nil, nil, err
	}

	now := e.now()
	o := &Order{
		ID:             uuid.New(),
		UserID:         params.UserID,
		Items:          params.Items,
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		AmountDue:      amountDue,
		Status:         StatusNew,
		IsLocal:        params.IsLocal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.Discount != nil {
		o.DiscountCode = params.Discount.Code
	}

	if params.IsLocal {
		o.ProviderSlug = provider.LocalSlug
		if _, err := o.transitionTo(StatusSuccess, now); err != nil {
			return nil, nil, err
		}
		if err := e.store.Save(ctx, o); err != nil {
			return nil, nil, err
		}
		e.publish(ctx, events.OrderCreated, o, nil)
		e.publish(ctx, events.OrderCompleted, o, nil)
		return o, &provider.CheckoutResult{RedirectURL: params.Checkout.SuccessURL}, nil
	}

	strategy, err := e.registry.BySlug(params.ProviderSlug)
	if err != nil {
		return nil, nil, err
	}
	desc := strategy.Descriptor()
	if !desc.Active || !desc.EnabledForNewPayments {
		return nil, nil, fmt.Errorf("%w: provider %s is not accepting new payments", provider.ErrProviderRejected, params.ProviderSlug)
	}
	o.ProviderSlug = params.ProviderSlug

	checkoutItems := make([]provider.CheckoutItem, 0, len(params.Items))
	for _, item := range params.Items {
		priceID := item.ProviderProductIDs[params.ProviderSlug]
		if priceID == "" {
			return nil, nil, fmt.Errorf("%w: product %s has no price ID for provider %s",
				provider.ErrProviderRejected, item.ProductID, params.ProviderSlug)
		}
		checkoutItems = append(checkoutItems, provider.CheckoutItem{
			ProductPriceID: priceID,
			Quantity:       item.Quantity,
		})
	}

	// Persist before the provider call so the racing webhook finds the row.
	if err := e.store.Save(ctx, o); err != nil {
		return nil, nil, err
	}

	checkout, err := strategy.CreateProductCheckout(ctx, provider.ProductCheckoutRequest{
		OrderID:    o.ID,
		UserID:     params.UserID,
		Email:      params.Checkout.Email,
		Items:      checkoutItems,
		AmountDue:  amountDue,
		Discount:   params.Discount,
		SuccessURL: params.Checkout.SuccessURL,
		CancelURL:  params.Checkout.CancelURL,
	})
	if err != nil {
		return nil, nil, err
	}

	if _, err := o.transitionTo(StatusPending, e.now()); err != nil {
		return nil, nil, err
	}
	if err := e.store.Save(ctx, o); err != nil {
		return nil, nil, err
	}
	e.publish(ctx, events.OrderCreated, o, nil)
	return o, checkout, nil
}

// UpdateParams are the caller-mutable order fields. Nil fields are left
// untouched.
type UpdateParams struct {
	Status          *Status
	ProviderOrderID *string
}

// Update is the only caller-facing mutation path. It refuses to touch an
// order in a terminal status and only moves the status along permitted
// edges.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Order, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	o, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrOrderFinalized, o.Status)
	}

	now := e.now()
	if params.Status != nil {
		if _, err := o.transitionTo(*params.Status, now); err != nil {
			return nil, err
		}
	}
	if params.ProviderOrderID != nil {
		o.ProviderOrderID = *params.ProviderOrderID
	}
	o.UpdatedAt = now

	if err := e.store.Save(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// HandleBillingEvent applies a verified provider event to the order it
// references. Implements webhook.Sink. Events that do not resolve to an
// order are not ours and are acknowledged without effect; replays no-op via
// the transaction ledger keyed on the provider event ID.
func (e *Engine) HandleBillingEvent(ctx context.Context, event webhook.Event) error {
	o, err := e.resolve(ctx, event)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil
		}
		return err
	}

	unlock := e.locks.Lock(o.ID)
	defer unlock()

	o, err = e.store.Get(ctx, o.ID)
	if err != nil {
		return err
	}

	// The transaction ledger doubles as replay protection: the same
	// provider event never books twice.
	for _, txn := range o.Transactions {
		if txn.ProviderRef != "" && txn.ProviderRef == event.EventID {
			return nil
		}
	}

	now := e.now()
	amount := o.AmountDue
	if event.Amount != nil {
		amount = *event.Amount
	}
	if event.ProviderSubscriptionID != "" && o.ProviderOrderID == "" {
		o.ProviderOrderID = event.ProviderSubscriptionID
	}

	var publishKind events.Kind

	switch event.Type {
	case webhook.EventPaymentSucceeded:
		if o.Status == StatusSuccess {
			return nil
		}
		if applied, err := e.applyWebhookTransition(ctx, o, StatusSuccess, event, now); !applied {
			return err
		}
		o.Transactions = append(o.Transactions, Transaction{
			ID:          uuid.New(),
			Kind:        TransactionCharge,
			Status:      TransactionSuccess,
			Amount:      amount,
			ProviderRef: event.EventID,
			CreatedAt:   now,
		})
		publishKind = events.OrderCompleted

	case webhook.EventPaymentFailed:
		if o.Status == StatusFailed {
			return nil
		}
		if applied, err := e.applyWebhookTransition(ctx, o, StatusFailed, event, now); !applied {
			return err
		}
		o.Transactions = append(o.Transactions, Transaction{
			ID:          uuid.New(),
			Kind:        TransactionCharge,
			Status:      TransactionFailed,
			Amount:      amount,
			ProviderRef: event.EventID,
			CreatedAt:   now,
		})
		publishKind = events.OrderFailed

	case webhook.EventRefundIssued:
		if o.Status == StatusRefunded {
			return nil
		}
		if applied, err := e.applyWebhookTransition(ctx, o, StatusRefunded, event, now); !applied {
			return err
		}
		o.Transactions = append(o.Transactions, Transaction{
			ID:          uuid.New(),
			Kind:        TransactionRefund,
			Status:      TransactionRefunded,
			Amount:      amount,
			ProviderRef: event.EventID,
			CreatedAt:   now,
		})
		publishKind = events.OrderRefunded

	case webhook.EventDisputeOpened:
		if o.Status == StatusDisputed {
			return nil
		}
		if applied, err := e.applyWebhookTransition(ctx, o, StatusDisputed, event, now); !applied {
			return err
		}
		o.Transactions = append(o.Transactions, Transaction{
			ID:          uuid.New(),
			Kind:        TransactionDispute,
			Status:      TransactionDisputed,
			Amount:      amount,
			ProviderRef: event.EventID,
			CreatedAt:   now,
		})
		publishKind = events.OrderDisputed

	default:
		// Subscription lifecycle events are the subscription engine's
		// concern.
		return nil
	}

	if err := e.store.Save(ctx, o); err != nil {
		return err
	}
	e.publish(ctx, publishKind, o, map[string]string{
		"provider_event": event.ProviderEvent,
	})
	return nil
}

// applyWebhookTransition moves the order toward the status an event demands.
// Providers deliver events out of order, so a late event can land on an
// order already finalized in a different terminal state; it cannot be
// applied and never will be, so it is acknowledged (applied=false, nil
// error) rather than errored, which would keep the provider redelivering
// it forever. Illegal transitions on non-terminal orders stay errors: the
// provider retries until the prerequisite event arrives.
func (e *Engine) applyWebhookTransition(ctx context.Context, o *Order, target Status, event webhook.Event, now time.Time) (bool, error) {
	if _, err := o.transitionTo(target, now); err != nil {
		if o.Status.Terminal() {
			e.log.WarnContext(ctx, "ignoring late event for finalized order",
				slog.String("order_id", o.ID.String()),
				slog.String("status", string(o.Status)),
				slog.String("event_type", string(event.Type)),
				slog.String("event_id", event.EventID),
			)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// resolve finds the order a webhook event refers to, preferring our own ID
// from checkout metadata over the provider-side reference.
func (e *Engine) resolve(ctx context.Context, event webhook.Event) (*Order, error) {
	if event.OrderID != uuid.Nil {
		return e.store.Get(ctx, event.OrderID)
	}
	return e.store.GetByProviderRef(ctx, event.ProviderSlug, event.ProviderSubscriptionID)
}

func (e *Engine) publish(ctx context.Context, kind events.Kind, o *Order, meta map[string]string) {
	e.events.Publish(ctx, events.Event{
		Kind:         kind,
		OccurredAt:   e.now(),
		UserID:       o.UserID,
		OrderID:      o.ID,
		ProviderSlug: o.ProviderSlug,
		Meta:         meta,
	})
}
