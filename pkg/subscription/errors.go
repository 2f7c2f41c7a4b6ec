package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCreationNotAllowed   = errors.New("subscription creation not allowed")
	ErrInvalidTransition    = errors.New("invalid subscription status transition")
	ErrNotLocalManaged      = errors.New("subscription is not locally managed")

	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrPlanInactive             = errors.New("subscription plan is not active")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrNoPaymentMethodPortal = errors.New("no payment method portal for this subscription")
	ErrNegativeUnitCount     = errors.New("usage unit count must be positive")
)
