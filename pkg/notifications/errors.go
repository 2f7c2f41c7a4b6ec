package notifications

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrFailedToRender  = errors.New("failed to render email template")
	ErrFailedToDeliver = errors.New("failed to deliver notification")
)
