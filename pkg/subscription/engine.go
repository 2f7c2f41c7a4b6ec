package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/events"
	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/provider"
	"github.com/billforge/billforge/pkg/webhook"
)

// Engine owns the subscription lifecycle. All mutating operations serialize
// per subscription ID, so a user action and a webhook racing on the same
// subscription never produce a lost update, while unrelated subscriptions
// proceed in parallel. Strategies perform provider I/O; the engine alone
// decides status.
type Engine struct {
	plans    map[string]Plan
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

// WithClock overrides the time source; tests pin it to fixed instants.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine loads and validates the plan catalog and wires the engine.
// Panics on nil required dependencies to fail fast at startup.
func NewEngine(ctx context.Context, src PlansSource, registry *provider.Registry, store Store, opts ...EngineOption) (*Engine, error) {
	if src == nil {
		panic("subscription: PlansSource is required")
	}
	if registry == nil {
		panic("subscription: provider registry is required")
	}
	if store == nil {
		panic("subscription: Store is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	e := &Engine{
		plans:    plans,
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
	return e, nil
}

// Plan returns a plan from the catalog.
func (e *Engine) Plan(planID string) (Plan, error) {
	plan, ok := e.plans[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// PublicPlans returns the active, self-service plans sorted by ID for a
// stable listing.
func (e *Engine) PublicPlans() []Plan {
	var plans []Plan
	for _, plan := range e.plans {
		if plan.Active && plan.Public {
			plans = append(plans, plan)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans
}

// Get returns a subscription by ID.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return e.store.Get(ctx, id)
}

// CheckoutOptions carry the caller-side parameters of a checkout.
type CheckoutOptions struct {
	Email      string
	SuccessURL string
	CancelURL  string
	SkipTrial  bool
}

// CreateParams describe a new subscription. LocalManaged subscriptions skip
// the payment provider entirely and expire at EndsAt; everything else binds
// to the strategy named by ProviderSlug.
type CreateParams struct {
	UserID       uuid.UUID
	PlanID       string
	ProviderSlug string
	Discount     *provider.DiscountSpec
	LocalManaged bool
	EndsAt       *time.Time
	Checkout     CheckoutOptions
}

// Create initiates a subscription checkout. Locally managed subscriptions
// activate immediately; provider-bound ones are saved as pending and the
// returned CheckoutResult carries the provider's redirect URL or inline
// payload for the caller's UI to continue with.
//
// Rejects with ErrCreationNotAllowed when the user already holds an active
// locally managed subscription: a recoverable business-rule rejection, not
// a fault.
func (e *Engine) Create(ctx context.Context, params CreateParams) (*Subscription, *provider.CheckoutResult, error) {
	plan, ok := e.plans[params.PlanID]
	if !ok {
		return nil, nil, ErrPlanNotFound
	}
	if !plan.Active {
		return nil, nil, ErrPlanInactive
	}

	hasLocal, err := e.store.HasActiveLocal(ctx, params.UserID)
	if err != nil {
		return nil, nil, err
	}
	if hasLocal {
		return nil, nil, fmt.Errorf("%w: user already has an active locally managed subscription", ErrCreationNotAllowed)
	}

	slug := params.ProviderSlug
	if params.LocalManaged {
		slug = provider.LocalSlug
	}
	strategy, err := e.registry.BySlug(slug)
	if err != nil {
		return nil, nil, err
	}

	desc := strategy.Descriptor()
	if !desc.Active || !desc.EnabledForNewPayments {
		return nil, nil, fmt.Errorf("%w: provider %s is not accepting new payments", ErrCreationNotAllowed, slug)
	}
	if !provider.SupportsPlanType(strategy, plan.PriceType) {
		return nil, nil, fmt.Errorf("%w: provider %s cannot bill %s plans", provider.ErrUnsupportedPlanType, slug, plan.PriceType)
	}
	if plan.HasTrial() && params.Checkout.SkipTrial && !strategy.SupportsSkippingTrial() {
		return nil, nil, fmt.Errorf("%w: provider %s cannot skip trials", ErrCreationNotAllowed, slug)
	}

	now := e.now()
	sub := &Subscription{
		ID:             uuid.New(),
		UserID:         params.UserID,
		PlanID:         plan.ID,
		Price:          plan.Price,
		PriceType:      plan.PriceType,
		Interval:       plan.Interval,
		Status:         StatusNew,
		CycleStartedAt: now,
		ProviderSlug:   slug,
		LocalManaged:   params.LocalManaged,
		EndsAt:         params.EndsAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.Discount != nil {
		sub.DiscountCode = params.Discount.Code
	}

	cycleAnchor := now
	if plan.HasTrial() && !params.Checkout.SkipTrial {
		trialEnd := plan.TrialEndsAt(now)
		sub.TrialEndsAt = &trialEnd
		cycleAnchor = trialEnd
	}
	cycleEnd, err := plan.Interval.AddTo(cycleAnchor)
	if err != nil {
		return nil, nil, errors.Join(ErrInvalidPlanConfiguration, err)
	}
	sub.CycleEndsAt = cycleEnd.UTC()

	if params.LocalManaged {
		if _, err := sub.transitionTo(StatusActive, now); err != nil {
			return nil, nil, err
		}
		if err := e.store.Save(ctx, sub); err != nil {
			return nil, nil, err
		}
		e.publish(ctx, events.SubscriptionCreated, sub, nil)
		e.publish(ctx, events.SubscriptionActivated, sub, nil)
		return sub, &provider.CheckoutResult{RedirectURL: params.Checkout.SuccessURL}, nil
	}

	priceID := plan.PriceIDFor(slug)
	if priceID == "" {
		return nil, nil, fmt.Errorf("%w: plan %s has no price ID for provider %s", ErrInvalidPlanConfiguration, plan.ID, slug)
	}

	// Persist before the provider call so the webhook that races the
	// checkout response still finds the row.
	if err := e.store.Save(ctx, sub); err != nil {
		return nil, nil, err
	}

	checkout, err := strategy.CreateSubscriptionCheckout(ctx, provider.SubscriptionCheckoutRequest{
		SubscriptionID: sub.ID,
		UserID:         params.UserID,
		Email:          params.Checkout.Email,
		PlanPriceID:    priceID,
		PriceType:      plan.PriceType,
		Price:          plan.Price,
		TrialDays:      plan.TrialDays(),
		SkipTrial:      params.Checkout.SkipTrial,
		Discount:       params.Discount,
		SuccessURL:     params.Checkout.SuccessURL,
		CancelURL:      params.Checkout.CancelURL,
	})
	if err != nil {
		return nil, nil, err
	}

	if _, err := sub.transitionTo(StatusPending, e.now()); err != nil {
		return nil, nil, err
	}
	if err := e.store.Save(ctx, sub); err != nil {
		return nil, nil, err
	}
	e.publish(ctx, events.SubscriptionCreated, sub, nil)
	return sub, checkout, nil
}

// ChangePlan moves a subscription to a new plan, optionally charging a
// prorated delta for the remainder of the current cycle. A proration
// calculation failure halts the change; billing a wrong amount is worse
// than billing late.
func (e *Engine) ChangePlan(ctx context.Context, id uuid.UUID, newPlanID string, withProration bool) (*Subscription, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	sub, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, transitionError(sub.Status, sub.Status)
	}

	newPlan, ok := e.plans[newPlanID]
	if !ok {
		return nil, ErrPlanNotFound
	}
	if !newPlan.Active {
		return nil, ErrPlanInactive
	}

	strategy, err := e.registry.BySlug(sub.ProviderSlug)
	if err != nil {
		return nil, err
	}
	if !provider.SupportsPlanType(strategy, newPlan.PriceType) {
		return nil, fmt.Errorf("%w: provider %s cannot bill %s plans", provider.ErrUnsupportedPlanType, sub.ProviderSlug, newPlan.PriceType)
	}

	now := e.now()
	var prorated pricing.Money
	if withProration {
		prorated, err = pricing.Prorate(sub.Price, newPlan.Price, sub.CycleStartedAt, sub.CycleEndsAt, now)
		if err != nil {
			return nil, err
		}
	}

	if !sub.LocalManaged {
		priceID := newPlan.PriceIDFor(sub.ProviderSlug)
		if priceID == "" {
			return nil, fmt.Errorf("%w: plan %s has no price ID for provider %s", ErrInvalidPlanConfiguration, newPlan.ID, sub.ProviderSlug)
		}
		if err := strategy.ChangePlan(ctx, provider.PlanChangeRequest{
			Ref:            sub.Ref(),
			NewPlanPriceID: priceID,
			NewPriceType:   newPlan.PriceType,
			WithProration:  withProration,
			ProratedAmount: prorated,
		}); err != nil {
			return nil, err
		}
	}

	oldPlanID := sub.PlanID
	sub.PlanID = newPlan.ID
	sub.Price = newPlan.Price
	sub.PriceType = newPlan.PriceType
	sub.Interval = newPlan.Interval
	sub.UpdatedAt = now
	if err := e.store.Save(ctx, sub); err != nil {
		return nil, err
	}

	e.publish(ctx, events.SubscriptionPlanChanged, sub, map[string]string{
		"old_plan": oldPlanID,
		"new_plan": newPlan.ID,
		"prorated": prorated.String(),
	})
	return sub, nil
}

// Cancel cancels the subscription, immediately or at the end of the current
// period. Idempotent: canceling an already-canceled subscription (or
// re-requesting a pending period-end cancel) returns the current state
// without another provider call.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, immediately bool) (*Subscription, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	sub, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return sub, nil
	}
	if !immediately && sub.CancelAtPeriodEnd {
		return sub, nil
	}

	if !sub.LocalManaged {
		strategy, err := e.registry.BySlug(sub.ProviderSlug)
		if err != nil {
			return nil, err
		}
		if err := strategy.CancelSubscription(ctx, sub.Ref()); err != nil {
			return nil, err
		}
	}

	now := e.now()
	sub.CanceledAt = &now
	if immediately {
		if _, err := sub.transitionTo(StatusCanceled, now); err != nil {
			return nil, err
		}
	} else {
		sub.CancelAtPeriodEnd = true
		sub.UpdatedAt = now
	}
	if err := e.store.Save(ctx, sub); err != nil {
		return nil, err
	}

	if immediately {
		e.publish(ctx, events.SubscriptionCanceled, sub, nil)
	}
	return sub, nil
}

// DiscardCancellation clears a pending period-end cancellation. Idempotent:
// a subscription with no pending cancel is returned as-is. A subscription
// already in a terminal state cannot be resurrected.
func (e *Engine) DiscardCancellation(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	sub, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, transitionError(sub.Status, StatusActive)
	}
	if !sub.CancelAtPeriodEnd {
		return sub, nil
	}

	if !sub.LocalManaged {
		strategy, err := e.registry.BySlug(sub.ProviderSlug)
		if err != nil {
			return nil, err
		}
		if err := strategy.DiscardCancellation(ctx, sub.Ref()); err != nil {
			return nil, err
		}
	}

	sub.CancelAtPeriodEnd = false
	sub.CanceledAt = nil
	sub.UpdatedAt = e.now()
	if err := e.store.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ReportUsage forwards a metered unit count to the bound provider. The
// idempotency key is stable per subscription and billing period, so a
// report retried after a transient failure is never double-counted.
func (e *Engine) ReportUsage(ctx context.Context, id uuid.UUID, units int64) error {
	if units <= 0 {
		return ErrNegativeUnitCount
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	sub, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sub.IsTerminal() {
		return transitionError(sub.Status, sub.Status)
	}
	if !sub.PriceType.IsUsageBased() {
		return fmt.Errorf("%w: plan price type %s is not usage-based", provider.ErrUnsupportedPlanType, sub.PriceType)
	}

	strategy, err := e.registry.BySlug(sub.ProviderSlug)
	if err != nil {
		return err
	}
	if !provider.SupportsPlanType(strategy, sub.PriceType) {
		return fmt.Errorf("%w: provider %s cannot bill %s plans", provider.ErrUnsupportedPlanType, sub.ProviderSlug, sub.PriceType)
	}

	if err := strategy.ReportUsage(ctx, provider.UsageReport{
		Ref:            sub.Ref(),
		Units:          units,
		IdempotencyKey: fmt.Sprintf("%s:%d", sub.ID, sub.CycleEndsAt.Unix()),
	}); err != nil {
		return err
	}

	e.publish(ctx, events.UsageReported, sub, map[string]string{
		"units": fmt.Sprintf("%d", units),
	})
	return nil
}

// ChangePaymentMethodLink returns the provider's payment-method update URL.
func (e *Engine) ChangePaymentMethodLink(ctx context.Context, id uuid.UUID) (string, error) {
	sub, err := e.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if sub.LocalManaged {
		return "", ErrNoPaymentMethodPortal
	}
	strategy, err := e.registry.BySlug(sub.ProviderSlug)
	if err != nil {
		return "", err
	}
	return strategy.ChangePaymentMethodLink(ctx, sub.Ref())
}

// ApplyDiscount grants a resolved discount on the provider side and records
// the code on the subscription. Code resolution and redemption accounting
// belong to the discount engine; by the time this runs the redemption is
// already counted.
func (e *Engine) ApplyDiscount(ctx context.Context, id uuid.UUID, spec provider.DiscountSpec) (*Subscription, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	sub, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsTerminal() {
		return nil, transitionError(sub.Status, sub.Status)
	}

	if !sub.LocalManaged {
		strategy, err := e.registry.BySlug(sub.ProviderSlug)
		if err != nil {
			return nil, err
		}
		if err := strategy.AddDiscountToSubscription(ctx, sub.Ref(), spec); err != nil {
			return nil, err
		}
	}

	sub.DiscountCode = spec.Code
	sub.UpdatedAt = e.now()
	if err := e.store.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CleanupLocalSubscriptionStatuses flips locally managed subscriptions whose
// EndsAt has passed into inactive. Runs on a schedule; the sweep interval
// bounds how long an expired local subscription still reads as active.
func (e *Engine) CleanupLocalSubscriptionStatuses(ctx context.Context) (int, error) {
	expired, err := e.store.ListExpiredLocal(ctx, e.now())
	if err != nil {
		return 0, err
	}

	var flipped int
	for _, stale := range expired {
		unlock := e.locks.Lock(stale.ID)

		// Reload under the lock: a concurrent action may have already moved
		// the subscription since the sweep listed it.
		sub, err := e.store.Get(ctx, stale.ID)
		if err != nil {
			unlock()
			continue
		}
		if sub.IsTerminal() || !sub.LocalManaged || sub.EndsAt == nil || !sub.EndsAt.Before(e.now()) {
			unlock()
			continue
		}

		if _, err := sub.transitionTo(StatusInactive, e.now()); err != nil {
			unlock()
			e.log.WarnContext(ctx, "skipping local subscription cleanup",
				slog.String("subscription_id", sub.ID.String()), slog.Any("error", err))
			continue
		}
		if err := e.store.Save(ctx, sub); err != nil {
			unlock()
			return flipped, err
		}
		unlock()

		e.publish(ctx, events.SubscriptionDeactivated, sub, nil)
		flipped++
	}
	return flipped, nil
}

// GetExpiringIn returns non-terminal subscriptions whose cycle or local end
// falls within the next given number of days. Pure selection, no mutation;
// feeds the expiring-soon reminder job.
func (e *Engine) GetExpiringIn(ctx context.Context, days int) ([]*Subscription, error) {
	now := e.now()
	return e.store.ListExpiringBetween(ctx, now, now.AddDate(0, 0, days))
}

// HandleBillingEvent applies a verified provider event to the subscription
// it references. Implements webhook.Sink. Events that do not resolve to a
// subscription are not ours (one-time orders, unknown references) and are
// acknowledged without effect. Transitions that would repeat the current
// status no-op, which is what makes duplicate deliveries harmless.
func (e *Engine) HandleBillingEvent(ctx context.Context, event webhook.Event) error {
	sub, err := e.resolve(ctx, event)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		return err
	}

	unlock := e.locks.Lock(sub.ID)
	defer unlock()

	// Reload under the lock; the resolve read raced other writers.
	sub, err = e.store.Get(ctx, sub.ID)
	if err != nil {
		return err
	}

	now := e.now()
	changed := false

	// Record the provider-side linkage as soon as any event carries it.
	if event.ProviderSubscriptionID != "" && sub.ProviderSubscriptionID == "" {
		sub.ProviderSubscriptionID = event.ProviderSubscriptionID
		changed = true
	}
	if event.ProviderCustomerID != "" && sub.ProviderCustomerID == "" {
		sub.ProviderCustomerID = event.ProviderCustomerID
		changed = true
	}
	if event.ProviderStatus != "" && event.ProviderStatus != sub.ProviderStatus {
		sub.ProviderStatus = event.ProviderStatus
		changed = true
	}

	var publishKind events.Kind

	switch event.Type {
	case webhook.EventPaymentSucceeded:
		switch sub.Status {
		case StatusNew, StatusPending:
			if _, err := sub.transitionTo(StatusActive, now); err != nil {
				return err
			}
			changed = true
			publishKind = events.SubscriptionActivated
		case StatusPastDue:
			if _, err := sub.transitionTo(StatusActive, now); err != nil {
				return err
			}
			if err := e.advanceCycle(sub); err != nil {
				return err
			}
			changed = true
			publishKind = events.SubscriptionActivated
		case StatusActive:
			// Renewal charge for the next cycle
			if err := e.advanceCycle(sub); err != nil {
				return err
			}
			sub.UpdatedAt = now
			changed = true
		}

	case webhook.EventPaymentFailed:
		switch sub.Status {
		case StatusActive:
			if _, err := sub.transitionTo(StatusPastDue, now); err != nil {
				return err
			}
			changed = true
			publishKind = events.SubscriptionPastDue
		case StatusNew, StatusPending:
			if _, err := sub.transitionTo(StatusInactive, now); err != nil {
				return err
			}
			changed = true
			publishKind = events.SubscriptionDeactivated
		}

	case webhook.EventSubscriptionUpdated:
		if target, ok := statusFromProvider(event.ProviderStatus); ok && target != sub.Status {
			// Mirror provider-side pauses and resumes, but never let a
			// provider status walk an edge the state machine forbids.
			if CanTransition(sub.Status, target) {
				if _, err := sub.transitionTo(target, now); err != nil {
					return err
				}
				changed = true
				if target == StatusActive {
					publishKind = events.SubscriptionActivated
				}
			} else {
				e.log.WarnContext(ctx, "ignoring provider status outside state machine",
					slog.String("subscription_id", sub.ID.String()),
					slog.String("from", string(sub.Status)),
					slog.String("provider_status", event.ProviderStatus))
			}
		}

	case webhook.EventSubscriptionCanceled:
		// A cancel can outrun the event that would have made the edge
		// legal, e.g. landing while the checkout is still in new. It
		// will never become applicable, so acknowledge instead of
		// erroring into the provider's redelivery loop.
		if !sub.IsTerminal() {
			if !CanTransition(sub.Status, StatusCanceled) {
				e.log.WarnContext(ctx, "ignoring cancel event outside state machine",
					slog.String("subscription_id", sub.ID.String()),
					slog.String("status", string(sub.Status)),
					slog.String("event_id", event.EventID))
				break
			}
			if _, err := sub.transitionTo(StatusCanceled, now); err != nil {
				return err
			}
			sub.CanceledAt = &now
			changed = true
			publishKind = events.SubscriptionCanceled
		}

	case webhook.EventIdentityVerified:
		if sub.Status == StatusPendingUserVerification {
			if _, err := sub.transitionTo(StatusActive, now); err != nil {
				return err
			}
			changed = true
			publishKind = events.SubscriptionActivated
		}

	default:
		// Dispute and refund events belong to the order engine.
		return nil
	}

	if !changed {
		return nil
	}
	if err := e.store.Save(ctx, sub); err != nil {
		return err
	}
	if publishKind != "" {
		e.publish(ctx, publishKind, sub, map[string]string{
			"provider_event": event.ProviderEvent,
		})
	}
	return nil
}

// advanceCycle moves the billing cycle forward until it covers now.
func (e *Engine) advanceCycle(sub *Subscription) error {
	now := e.now()
	for !sub.CycleEndsAt.After(now) {
		next, err := sub.Interval.AddTo(sub.CycleEndsAt)
		if err != nil {
			return err
		}
		sub.CycleStartedAt = sub.CycleEndsAt
		sub.CycleEndsAt = next.UTC()
	}
	return nil
}

// resolve finds the subscription a webhook event refers to, preferring our
// own ID from checkout metadata over the provider-side reference.
func (e *Engine) resolve(ctx context.Context, event webhook.Event) (*Subscription, error) {
	if event.SubscriptionID != uuid.Nil {
		return e.store.Get(ctx, event.SubscriptionID)
	}
	return e.store.GetByProviderRef(ctx, event.ProviderSlug, event.ProviderSubscriptionID)
}

// statusFromProvider maps a provider's subscription status mirror onto our
// lifecycle, for the statuses providers report on subscription_updated.
func statusFromProvider(providerStatus string) (Status, bool) {
	switch providerStatus {
	case "active":
		return StatusActive, true
	case "paused":
		return StatusPaused, true
	case "past_due":
		return StatusPastDue, true
	case "pending_verification":
		return StatusPendingUserVerification, true
	default:
		return "", false
	}
}

func (e *Engine) publish(ctx context.Context, kind events.Kind, sub *Subscription, meta map[string]string) {
	e.events.Publish(ctx, events.Event{
		Kind:           kind,
		OccurredAt:     e.now(),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		ProviderSlug:   sub.ProviderSlug,
		Meta:           meta,
	})
}
