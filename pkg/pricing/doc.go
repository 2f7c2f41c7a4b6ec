// Package pricing provides pure billing math: proration of mid-cycle plan
// changes, usage-based tier evaluation, and discount application.
//
// All functions are side-effect free and operate on integer amounts in the
// smallest currency unit (cents for USD) to avoid floating point drift in
// money calculations. Callers are responsible for persistence and for
// deciding what to do with the computed amounts.
//
// Proration uses the literal calendar length of the current billing cycle
// rather than assuming 30-day months:
//
//	delta, err := pricing.Prorate(oldPrice, newPrice, cycleStart, cycleEnd, time.Now())
//
// Usage evaluation supports per-unit, volume-tiered and graduated-tiered
// price types. Tier configurations are validated for gaps and overlaps
// before any amount is computed; a malformed configuration is a hard error,
// never a silently wrong invoice.
package pricing
