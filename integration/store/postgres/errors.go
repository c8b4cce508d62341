package postgres

import "errors"

var (
	ErrPoolNil         = errors.New("store: pool cannot be nil")
	ErrAppointmentNil  = errors.New("store: appointment cannot be nil")
	ErrNotificationNil = errors.New("store: notification cannot be nil")
	ErrEmptyPatch      = errors.New("store: patch changes nothing")
)
