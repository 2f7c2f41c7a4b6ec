package pricing

import "fmt"

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  // Amount in smallest currency unit (cents for USD)
	Currency string // ISO 4217 currency code
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// String renders the amount as "<units>.<cents> <currency>" for logs and errors.
// Display formatting for end users is out of scope here.
func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}

// Add returns the sum of two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m minus other, floored at zero. Billing amounts never go negative;
// refunds are modelled as separate transactions, not negative charges.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	amount := m.Amount - other.Amount
	if amount < 0 {
		amount = 0
	}
	return Money{Amount: amount, Currency: m.Currency}, nil
}

// PriceType classifies how a plan's price is computed.
type PriceType string

const (
	PriceTypeFlatRate        PriceType = "flat_rate"
	PriceTypePerUnit         PriceType = "usage_based_per_unit"
	PriceTypeTieredVolume    PriceType = "usage_based_tiered_volume"
	PriceTypeTieredGraduated PriceType = "usage_based_tiered_graduated"
)

// IsUsageBased reports whether the price type bills on reported unit counts.
func (t PriceType) IsUsageBased() bool {
	switch t {
	case PriceTypePerUnit, PriceTypeTieredVolume, PriceTypeTieredGraduated:
		return true
	default:
		return false
	}
}

// Valid reports whether the price type is one of the known values.
func (t PriceType) Valid() bool {
	switch t {
	case PriceTypeFlatRate, PriceTypePerUnit, PriceTypeTieredVolume, PriceTypeTieredGraduated:
		return true
	default:
		return false
	}
}
