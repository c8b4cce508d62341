package kafka

import "errors"

var (
	ErrNoBrokers       = errors.New("kafka: no broker addresses configured")
	ErrProducerNil     = errors.New("kafka: producer cannot be nil")
	ErrPublishFailed   = errors.New("kafka: failed to publish")
	ErrGroupFailed     = errors.New("kafka: failed to create consumer group")
	ErrInvalidVersion  = errors.New("kafka: invalid protocol version")
	ErrProducerFailure = errors.New("kafka: failed to create producer")
)
