// Package subscription implements the subscription lifecycle engine.
//
// A subscription moves through a fixed state machine: new -> pending ->
// active, with past_due/paused side states and the terminal canceled and
// inactive states. Synchronous user actions (create, change plan, cancel)
// and asynchronous webhook events both drive transitions, and the engine
// serializes them per subscription so races never lose updates.
//
// # Plans
//
// Plans are loaded once at engine construction from a PlansSource (an
// in-code catalog or a YAML file) and validated up front. Each subscription
// snapshots its plan's price, price type and interval at creation, so later
// plan edits never change what an existing subscriber pays.
//
// # Providers
//
// The engine never talks to a payment backend directly. It selects a
// provider.Strategy through the registry, delegates checkout construction,
// plan changes, cancellations and usage reports to it, and alone decides
// the resulting subscription status. Locally managed subscriptions use the
// offline strategy: they activate instantly, expire at their EndsAt, and a
// scheduled sweep (CleanupLocalSubscriptionStatuses) flips expired ones to
// inactive.
//
// # Webhooks
//
// The engine implements webhook.Sink. Provider events resolve to a
// subscription via checkout metadata or the provider-side subscription ID,
// and replayed events no-op because a transition to the current status
// changes nothing.
//
// Usage example:
//
//	registry, _ := provider.NewRegistry(provider.NewLocalStrategy())
//	engine, err := subscription.NewEngine(ctx, subscription.StaticPlans{plan}, registry, subscription.NewMemoryStore())
//	if err != nil {
//		return err
//	}
//	sub, checkout, err := engine.Create(ctx, subscription.CreateParams{
//		UserID:       userID,
//		PlanID:       plan.ID,
//		ProviderSlug: provider.LocalSlug,
//		Checkout:     subscription.CheckoutOptions{SuccessURL: "/billing/done"},
//	})
package subscription
