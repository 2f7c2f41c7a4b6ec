package discount

import (
	"context"
	"time"

	"github.com/billforge/billforge/pkg/events"
	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/provider"
)

// Engine resolves and redeems discount codes.
type Engine struct {
	store  Store
	events events.Publisher
	now    func() time.Time
}

// EngineOption configures optional Engine settings.
type EngineOption func(*Engine)

// WithEventPublisher sets the bus redemption events are published to.
func WithEventPublisher(pub events.Publisher) EngineOption {
	return func(e *Engine) {
		if pub != nil {
			e.events = pub
		}
	}
}

// NewEngine wires the discount engine. Panics on a nil store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	if store == nil {
		panic("discount: Store is required")
	}
	e := &Engine{
		store:  store,
		events: events.NopPublisher{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Application is a granted discount: the computed reduction plus the
// provider-facing spec the billing engines forward to the payment backend.
type Application struct {
	Discount *Discount
	Amount   pricing.Money
	Spec     provider.DiscountSpec
}

// Apply resolves a redemption code, validates that its scope covers the
// billing action, computes the reduction off the subtotal and redeems the
// code. The redemption counter increment is atomic with the limit check, so
// two concurrent redemptions can never both pass a one-use-left code.
//
// The amount is computed before the code is consumed; any validation
// failure leaves the counter untouched.
func (e *Engine) Apply(ctx context.Context, code string, action Action, subtotal pricing.Money) (*Application, error) {
	d, _, err := e.store.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, ErrDiscountInactive
	}
	if !d.Scope.Allows(action) {
		return nil, ErrScopeMismatch
	}

	amount, err := pricing.DiscountAmount(subtotal, d.Kind, d.Value)
	if err != nil {
		return nil, err
	}

	if err := e.store.Redeem(ctx, code); err != nil {
		return nil, err
	}

	e.events.Publish(ctx, events.Event{
		Kind:       events.DiscountRedeemed,
		OccurredAt: e.now(),
		Meta: map[string]string{
			"code":   code,
			"action": string(action),
			"amount": amount.String(),
		},
	})

	return &Application{
		Discount: d,
		Amount:   amount,
		Spec: provider.DiscountSpec{
			Code:  code,
			Kind:  d.Kind,
			Value: d.Value,
		},
	}, nil
}

// Preview computes the reduction a code would grant without redeeming it.
// Carts call this while the user is still editing.
func (e *Engine) Preview(ctx context.Context, code string, action Action, subtotal pricing.Money) (pricing.Money, error) {
	d, rc, err := e.store.ResolveCode(ctx, code)
	if err != nil {
		return pricing.Money{}, err
	}
	if !d.Active {
		return pricing.Money{}, ErrDiscountInactive
	}
	if !d.Scope.Allows(action) {
		return pricing.Money{}, ErrScopeMismatch
	}
	if rc.Exhausted() {
		return pricing.Money{}, ErrRedemptionExceeded
	}
	return pricing.DiscountAmount(subtotal, d.Kind, d.Value)
}
