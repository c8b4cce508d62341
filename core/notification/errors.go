package notification

import "errors"

var (
	ErrStoreNil          = errors.New("notification: store is nil")
	ErrEnqueuerNil       = errors.New("notification: enqueuer is nil")
	ErrUserIDRequired    = errors.New("notification: user id is required")
	ErrMessageRequired   = errors.New("notification: message is required")
	ErrUserNotFound      = errors.New("notification: user not found")
	ErrNoDirectory       = errors.New("notification: no user directory configured")
	ErrNoMailer          = errors.New("notification: no mailer configured")
	ErrNoEmailAddress    = errors.New("notification: user has no email address")
	ErrDeadLetterPayload = errors.New("notification: malformed dead-letter payload")
)
