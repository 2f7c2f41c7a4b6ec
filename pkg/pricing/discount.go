package pricing

import "fmt"

// DiscountKind determines how a discount value reduces an amount.
type DiscountKind string

const (
	DiscountFixed      DiscountKind = "fixed"      // value in smallest currency unit
	DiscountPercentage DiscountKind = "percentage" // value in whole percent, 0-100
)

// DiscountAmount computes the reduction a discount takes off a subtotal.
// The result is clamped to the subtotal so the amount due never goes
// negative. Percentage values are whole percents; fractional cents round
// down in the customer's favour.
func DiscountAmount(subtotal Money, kind DiscountKind, value int64) (Money, error) {
	if subtotal.Amount < 0 {
		return Money{}, fmt.Errorf("%w: negative subtotal", ErrInvalidDiscountValue)
	}

	var amount int64
	switch kind {
	case DiscountFixed:
		if value < 0 {
			return Money{}, fmt.Errorf("%w: negative fixed discount %d", ErrInvalidDiscountValue, value)
		}
		amount = value
	case DiscountPercentage:
		if value < 0 || value > 100 {
			return Money{}, fmt.Errorf("%w: percentage %d out of range", ErrInvalidDiscountValue, value)
		}
		amount = subtotal.Amount * value / 100
	default:
		return Money{}, fmt.Errorf("%w: unknown discount kind %q", ErrInvalidDiscountValue, kind)
	}

	if amount > subtotal.Amount {
		amount = subtotal.Amount
	}
	return Money{Amount: amount, Currency: subtotal.Currency}, nil
}
