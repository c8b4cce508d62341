package ratelimiter

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidTokenCount = errors.New("invalid token count")
	ErrStoreNil          = errors.New("store cannot be nil")
	ErrCleanupDisabled   = errors.New("cleanup is disabled")
	ErrAlreadyRunning    = errors.New("cleanup already running")
)
