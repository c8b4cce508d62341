package command

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned when no handler is registered for an envelope action.
	ErrUnknownAction = errors.New("unknown command action")

	// ErrMalformedEnvelope is returned when a message cannot be decoded as an envelope.
	ErrMalformedEnvelope = errors.New("malformed command envelope")

	// ErrHandlerPanic is wrapped by HandlerError when a handler panics.
	ErrHandlerPanic = errors.New("command handler panicked")

	// ErrDuplicateHandler is used when registering a second handler for an action.
	ErrDuplicateHandler = errors.New("handler already registered for action")
)

// HandlerError wraps a retryable handler failure.
type HandlerError struct {
	Action  Action
	TraceID string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("command %s (trace %s) failed: %v", e.Action, e.TraceID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// TransportError reports a failed publish of a retry or dead letter.
type TransportError struct {
	Topic   string
	Op      string
	TraceID string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("publish %s to %s (trace %s) failed: %v", e.Op, e.Topic, e.TraceID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// permanent is implemented by errors that must not be retried.
type permanent interface {
	Permanent() bool
}

// IsRetryable reports whether err should go through the retry path.
// Errors anywhere in the chain that report Permanent() == true are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var p permanent
	if errors.As(err, &p) && p.Permanent() {
		return false
	}
	return true
}
