package redis

import "errors"

var (
	ErrClientNil       = errors.New("redis broker: client cannot be nil")
	ErrMalformedEntry  = errors.New("redis broker: stream entry has no data field")
	ErrPublishFailed   = errors.New("redis broker: failed to publish")
	ErrGroupCreateFail = errors.New("redis broker: failed to create consumer group")
)
