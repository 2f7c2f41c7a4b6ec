package provider

import "errors"

var (
	ErrProviderNotFound      = errors.New("payment provider not found")
	ErrDuplicateSlug         = errors.New("payment provider slug already registered")
	ErrNoProvidersRegistered = errors.New("no payment providers registered")

	ErrUnsupportedPlanType = errors.New("plan price type not supported by provider")
	ErrNoCheckoutURL       = errors.New("no checkout URL returned from provider")

	ErrMissingAPIKey        = errors.New("provider API key is required")
	ErrMissingWebhookSecret = errors.New("provider webhook secret is required")
	ErrInvalidEnvironment   = errors.New("invalid provider environment")

	ErrProviderRejected = errors.New("provider rejected the request")
)
