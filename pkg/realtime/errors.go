package realtime

import "errors"

var (
	ErrUserIDRequired = errors.New("realtime: user id is required")
	ErrEventRequired  = errors.New("realtime: event name is required")
	ErrHubClosed      = errors.New("realtime: hub is closed")
)
