// Package webhook ingests asynchronous billing callbacks from payment
// providers. One adapter per provider verifies request authenticity with
// the provider's signing scheme and translates the native payload into a
// small set of canonical events consumed by the billing engines.
//
// Delivery is at-least-once and may arrive out of order, so processing is
// idempotent: events are deduplicated on the provider's event identifier
// before any engine sees them, and the engines' transitions no-op when the
// target state already holds. A failed signature check rejects the request
// before any state is touched.
package webhook
