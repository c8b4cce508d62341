package broker

import "errors"

var (
	// ErrBrokerClosed is returned when publishing to or subscribing on a closed broker.
	ErrBrokerClosed = errors.New("broker is closed")

	// ErrBufferFull is returned by the memory broker when a topic buffer is full.
	ErrBufferFull = errors.New("topic buffer is full")

	// ErrTopicRequired is returned when an empty topic name is used.
	ErrTopicRequired = errors.New("topic name is required")
)
