// Package provider abstracts interchangeable payment backends behind one
// capability contract and dispatches to them through a registry.
//
// Every backend, including the no-op locally managed one, implements
// Strategy. Strategies perform provider-specific I/O only; they never decide
// subscription status, which belongs to the engines. The Registry holds all
// strategies keyed by slug and answers capability queries: which providers
// are active, which can bill a given plan's price type, and which can skip a
// trial at checkout.
//
// Checkout construction returns a CheckoutResult whose populated channel
// tells the caller how to continue: redirect-style providers fill
// RedirectURL, overlay-style providers fill InlinePayload for client-side
// initialization.
package provider
