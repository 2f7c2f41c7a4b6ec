package discount

import "errors"

var (
	ErrCodeNotFound       = errors.New("discount code not found")
	ErrDiscountNotFound   = errors.New("discount not found")
	ErrDiscountInactive   = errors.New("discount is not active")
	ErrRedemptionExceeded = errors.New("discount code redemption limit exceeded")
	ErrScopeMismatch      = errors.New("discount does not apply to this billing action")
)
