package pricing

import (
	"fmt"
	"time"
)

// Prorate computes the amount due when switching from oldPrice to newPrice
// partway through the current billing cycle:
//
//	delta = (newPrice - oldPrice) * remainingFractionOfCycle
//
// The remaining fraction is derived from the actual cycle boundaries, so a
// cycle spanning a 28-day February and one spanning a 31-day January prorate
// differently. The result is floored at zero (downgrades are not refunded
// through proration) and capped at the full new price.
//
// Returns ErrProrationCalculation for malformed input: the caller must halt
// the plan change rather than bill a wrong amount.
func Prorate(oldPrice, newPrice Money, cycleStart, cycleEnd, now time.Time) (Money, error) {
	if oldPrice.Currency != newPrice.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, oldPrice.Currency, newPrice.Currency)
	}
	if oldPrice.Amount < 0 || newPrice.Amount < 0 {
		return Money{}, fmt.Errorf("%w: negative plan price", ErrProrationCalculation)
	}
	if !cycleEnd.After(cycleStart) {
		return Money{}, fmt.Errorf("%w: cycle end %s not after start %s",
			ErrProrationCalculation, cycleEnd.Format(time.RFC3339), cycleStart.Format(time.RFC3339))
	}
	if now.Before(cycleStart) || now.After(cycleEnd) {
		return Money{}, fmt.Errorf("%w: reference time outside current cycle", ErrProrationCalculation)
	}

	remaining := RemainingCycleFraction(cycleStart, cycleEnd, now)

	delta := float64(newPrice.Amount-oldPrice.Amount) * remaining
	amount := int64(delta)
	if amount < 0 {
		amount = 0
	}
	if amount > newPrice.Amount {
		amount = newPrice.Amount
	}

	return Money{Amount: amount, Currency: newPrice.Currency}, nil
}

// RemainingCycleFraction returns the unelapsed share of the cycle in [0, 1].
func RemainingCycleFraction(cycleStart, cycleEnd, now time.Time) float64 {
	total := cycleEnd.Sub(cycleStart)
	remaining := cycleEnd.Sub(now)
	if total <= 0 {
		return 0
	}
	fraction := float64(remaining) / float64(total)
	if fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}

// CycleEnd computes the end of a billing cycle that started at cycleStart.
func CycleEnd(cycleStart time.Time, interval Interval) (time.Time, error) {
	end, err := interval.AddTo(cycleStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrProrationCalculation, err)
	}
	return end, nil
}
