package escalation

import (
	"errors"
	"fmt"
)

var (
	ErrNoSender    = errors.New("escalation email sender is not configured")
	ErrNoRecipient = errors.New("escalation recipient is not configured")
)

// Error records a failed escalation. It is only ever logged.
type Error struct {
	Alert Alert
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("escalation %q (%s) failed: %v", e.Alert.Subject, e.Alert.Severity, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
