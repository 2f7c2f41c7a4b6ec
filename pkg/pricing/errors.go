package pricing

import "errors"

var (
	ErrProrationCalculation = errors.New("proration calculation failed")
	ErrCurrencyMismatch     = errors.New("currency mismatch between amounts")

	ErrInvalidTierConfiguration = errors.New("invalid tier configuration")
	ErrUnsupportedPriceType     = errors.New("unsupported price type")
	ErrNegativeUnitCount        = errors.New("unit count cannot be negative")
	ErrUnitsExceedTiers         = errors.New("unit count exceeds configured tiers")

	ErrInvalidDiscountValue = errors.New("invalid discount value")
	ErrInvalidInterval      = errors.New("invalid billing interval")
)
