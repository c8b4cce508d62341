package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrForbiddenTransition = errors.New("forbidden transition")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrReasonRequired      = errors.New("cancellation reason is required")

	ErrNotFound       = errors.New("appointment not found")
	ErrAlreadyExists  = errors.New("appointment already exists")
	ErrInvalidPayload = errors.New("invalid appointment payload")

	ErrRepositoryNil = errors.New("appointment repository is nil")
	ErrCommandsNil   = errors.New("command publisher is nil")
	ErrNotifierNil   = errors.New("notifier is nil")
	ErrSchedulerNil  = errors.New("job scheduler is nil")
)

// TransitionError is a domain rejection of a requested status change.
// Kind is one of ErrForbiddenTransition, ErrInvalidTransition or ErrReasonRequired.
type TransitionError struct {
	Kind          error
	From          Status
	To            Status
	Role          Role
	AppointmentID string
}

func (e *TransitionError) Error() string {
	if e.AppointmentID != "" {
		return fmt.Sprintf("%s: %s -> %s by %s (appointment %s)", e.Kind, e.From, e.To, e.Role, e.AppointmentID)
	}
	return fmt.Sprintf("%s: %s -> %s by %s", e.Kind, e.From, e.To, e.Role)
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}

// Permanent marks domain rejections as non-retryable.
func (e *TransitionError) Permanent() bool {
	return true
}

// PayloadError is a command or job payload that cannot be decoded or is
// incomplete. Retrying it cannot succeed.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInvalidPayload, e.Err)
}

func (e *PayloadError) Unwrap() []error {
	return []error{ErrInvalidPayload, e.Err}
}

func (e *PayloadError) Permanent() bool {
	return true
}
