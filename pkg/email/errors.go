package email

import "errors"

var (
	ErrFailedToSend  = errors.New("failed to send email")
	ErrInvalidParams = errors.New("invalid email parameters")
	ErrInvalidConfig = errors.New("invalid email configuration")
)
