package queue

import "errors"

var (
	ErrRepositoryNil      = errors.New("repository cannot be nil")
	ErrPayloadNil         = errors.New("payload cannot be nil")
	ErrInvalidPriority    = errors.New("priority must be between 0 and 100")
	ErrInvalidMaxAttempts = errors.New("max attempts must be at least 1")
	ErrNoHandlers         = errors.New("no task handlers registered")
	ErrHandlerNotFound    = errors.New("no handler registered for task type")
	ErrNoTaskToClaim      = errors.New("no task available to claim")
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskNotProcessing  = errors.New("task is not in processing state")
	ErrTaskExists         = errors.New("task already exists")
	ErrLockExpired        = errors.New("task lock expired before the attempt finished")

	ErrWorkerAlreadyStarted = errors.New("worker already started")
	ErrWorkerNotStarted     = errors.New("worker not started")
	ErrShutdownTimeout      = errors.New("shutdown timeout exceeded")

	ErrHealthcheckFailed = errors.New("healthcheck failed")
	ErrWorkerNotRunning  = errors.New("worker not running")
	ErrWorkerOverloaded  = errors.New("worker overloaded")
	ErrStorageNotRunning = errors.New("lock expiration manager is not running")
)

// IsPermanent reports whether err, or any error in its chain, declares itself
// non-retryable through a Permanent() bool method.
func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}
