package webhook

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrEventIgnored     = errors.New("webhook event type not handled")
	ErrUnknownProvider  = errors.New("no webhook adapter for provider")
)
