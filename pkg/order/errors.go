package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderFinalized    = errors.New("order is in a terminal status")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNoLineItems       = errors.New("order has no line items")
	ErrInvalidQuantity   = errors.New("line item quantity must be positive")
	ErrInvalidUnitPrice  = errors.New("line item unit price must not be negative")
)

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
