package pricing

import "fmt"

// UnboundedTier marks a tier with no upper limit. Only the last tier in a
// configuration may be unbounded.
const UnboundedTier int64 = -1

// Tier is one volume band of a tiered price. From is the exclusive lower
// cumulative unit bound, UpTo the inclusive upper bound: the first tier of
// [0–100 @ $1] covers units 1 through 100.
type Tier struct {
	From      int64 // exclusive lower bound in cumulative units
	UpTo      int64 // inclusive upper bound, or UnboundedTier
	UnitPrice int64 // price per unit in smallest currency unit
	FlatFee   int64 // fixed fee charged when the tier is used
}

// contains reports whether the cumulative unit count falls into this tier.
func (t Tier) contains(units int64) bool {
	return units > t.From && (t.UpTo == UnboundedTier || units <= t.UpTo)
}

// ValidateTiers checks that tiers form an ordered, contiguous, non-overlapping
// cover starting at zero. Gaps and overlaps are configuration errors: billing
// against them would silently charge the wrong amount.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: no tiers configured", ErrInvalidTierConfiguration)
	}
	if tiers[0].From != 0 {
		return fmt.Errorf("%w: first tier must start at 0, got %d", ErrInvalidTierConfiguration, tiers[0].From)
	}
	for i, tier := range tiers {
		if tier.UnitPrice < 0 || tier.FlatFee < 0 {
			return fmt.Errorf("%w: tier %d has negative pricing", ErrInvalidTierConfiguration, i)
		}
		if tier.UpTo == UnboundedTier {
			if i != len(tiers)-1 {
				return fmt.Errorf("%w: only the last tier may be unbounded", ErrInvalidTierConfiguration)
			}
			continue
		}
		if tier.UpTo <= tier.From {
			return fmt.Errorf("%w: tier %d is empty (%d..%d)", ErrInvalidTierConfiguration, i, tier.From, tier.UpTo)
		}
		if i < len(tiers)-1 && tiers[i+1].From != tier.UpTo {
			return fmt.Errorf("%w: gap or overlap between tier %d (up to %d) and tier %d (from %d)",
				ErrInvalidTierConfiguration, i, tier.UpTo, i+1, tiers[i+1].From)
		}
	}
	return nil
}

// EvaluateUsage computes the amount owed for a reported unit count under the
// given price type.
//
//   - PriceTypePerUnit: units × unitPrice; tiers are ignored.
//   - PriceTypeTieredVolume: the whole quantity is priced at the single tier
//     it falls into, plus that tier's flat fee.
//   - PriceTypeTieredGraduated: the quantity is priced incrementally across
//     every tier it spans, adding each touched tier's flat fee.
func EvaluateUsage(priceType PriceType, unitPrice int64, tiers []Tier, units int64, currency string) (Money, error) {
	if units < 0 {
		return Money{}, fmt.Errorf("%w: %d", ErrNegativeUnitCount, units)
	}

	switch priceType {
	case PriceTypePerUnit:
		if unitPrice < 0 {
			return Money{}, fmt.Errorf("%w: negative unit price", ErrInvalidTierConfiguration)
		}
		return Money{Amount: units * unitPrice, Currency: currency}, nil

	case PriceTypeTieredVolume:
		if err := ValidateTiers(tiers); err != nil {
			return Money{}, err
		}
		if units == 0 {
			return Money{Amount: 0, Currency: currency}, nil
		}
		for _, tier := range tiers {
			if tier.contains(units) {
				return Money{Amount: units*tier.UnitPrice + tier.FlatFee, Currency: currency}, nil
			}
		}
		return Money{}, fmt.Errorf("%w: %d units, last tier ends at %d",
			ErrUnitsExceedTiers, units, tiers[len(tiers)-1].UpTo)

	case PriceTypeTieredGraduated:
		if err := ValidateTiers(tiers); err != nil {
			return Money{}, err
		}
		var amount int64
		remaining := units
		for _, tier := range tiers {
			if remaining <= 0 {
				break
			}
			span := remaining
			if tier.UpTo != UnboundedTier {
				width := tier.UpTo - tier.From
				if span > width {
					span = width
				}
			}
			amount += span*tier.UnitPrice + tier.FlatFee
			remaining -= span
		}
		if remaining > 0 {
			return Money{}, fmt.Errorf("%w: %d units left unpriced", ErrUnitsExceedTiers, remaining)
		}
		return Money{Amount: amount, Currency: currency}, nil

	default:
		return Money{}, fmt.Errorf("%w: %q is not usage-based", ErrUnsupportedPriceType, priceType)
	}
}
