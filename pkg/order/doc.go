// Package order implements the one-time purchase lifecycle.
//
// An order is structurally parallel to a subscription but has no billing
// interval: totals are computed once at creation (subtotal from line items,
// discount clamped so the amount due never goes negative) and the status
// then moves through new -> pending -> success/failed, with refunded and
// disputed reached only through provider money movements. Success, refunded
// and disputed are terminal: Update refuses to touch such an order.
//
// Every financial event against an order (charge, refund, dispute) is
// recorded as a Transaction keyed on the provider's event ID, which doubles
// as replay protection for duplicate webhook deliveries.
package order
